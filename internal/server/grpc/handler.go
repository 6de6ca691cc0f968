package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/applock/internal/common"
	"github.com/dmitrijs2005/applock/internal/server/models"
	"github.com/dmitrijs2005/applock/internal/wire"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) Ping(ctx context.Context, req *wire.Empty) (*wire.Empty, error) {
	return &wire.Empty{}, nil
}

func (s *GRPCServer) GetCredential(ctx context.Context, req *wire.PrincipalRequest) (*wire.Credential, error) {
	if err := authorize(ctx, req.PrincipalID); err != nil {
		return nil, err
	}

	c, err := s.records.GetCredential(ctx, req.PrincipalID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &wire.Credential{
		PrincipalID:   c.PrincipalID,
		Hash:          c.Hash,
		Salt:          c.Salt,
		SchemeVersion: c.SchemeVersion,
	}, nil
}

func (s *GRPCServer) UpsertCredential(ctx context.Context, req *wire.Credential) (*wire.Empty, error) {
	if err := authorize(ctx, req.PrincipalID); err != nil {
		return nil, err
	}

	err := s.records.UpsertCredential(ctx, &models.Credential{
		PrincipalID:   req.PrincipalID,
		Hash:          req.Hash,
		Salt:          req.Salt,
		SchemeVersion: req.SchemeVersion,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &wire.Empty{}, nil
}

func (s *GRPCServer) GetLockRecord(ctx context.Context, req *wire.PrincipalRequest) (*wire.LockRecord, error) {
	if err := authorize(ctx, req.PrincipalID); err != nil {
		return nil, err
	}

	r, err := s.records.GetLockRecord(ctx, req.PrincipalID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &wire.LockRecord{
		PrincipalID:               r.PrincipalID,
		FailedAttempts:            r.FailedAttempts,
		LockedUntil:               r.LockedUntil,
		LastUnlockAt:              r.LastUnlockAt,
		BiometricEnabled:          r.BiometricEnabled,
		RequireOnSensitiveActions: r.RequireOnSensitiveActions,
		IdleTimeoutMinutes:        r.IdleTimeoutMinutes,
		UpdatedAt:                 r.UpdatedAt,
	}, nil
}

func (s *GRPCServer) UpsertLockRecord(ctx context.Context, req *wire.LockRecord) (*wire.Empty, error) {
	if err := authorize(ctx, req.PrincipalID); err != nil {
		return nil, err
	}

	err := s.records.UpsertLockRecord(ctx, &models.LockRecord{
		PrincipalID:               req.PrincipalID,
		FailedAttempts:            req.FailedAttempts,
		LockedUntil:               req.LockedUntil,
		LastUnlockAt:              req.LastUnlockAt,
		BiometricEnabled:          req.BiometricEnabled,
		RequireOnSensitiveActions: req.RequireOnSensitiveActions,
		IdleTimeoutMinutes:        req.IdleTimeoutMinutes,
		UpdatedAt:                 req.UpdatedAt,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &wire.Empty{}, nil
}

func (s *GRPCServer) RefreshSession(ctx context.Context, req *wire.RefreshRequest) (*wire.Session, error) {
	if req.RefreshToken == "" {
		return nil, status.Error(codes.InvalidArgument, "missing refresh token")
	}

	pair, err := s.sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return &wire.Session{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}, nil
}

// authorize checks the request acts on the authenticated principal.
func authorize(ctx context.Context, principalID string) error {
	p, ok := principalFromContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "unauthenticated")
	}
	if principalID == "" {
		return status.Error(codes.InvalidArgument, "missing principal")
	}
	if principalID != p {
		return status.Error(codes.PermissionDenied, "principal mismatch")
	}
	return nil
}

func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrSchemeDowngrade):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, err.Error())
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}
