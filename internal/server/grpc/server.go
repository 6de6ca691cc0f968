// Package grpc exposes the SecurityRecords service over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/applock/internal/logging"
	"github.com/dmitrijs2005/applock/internal/server/models"
	"github.com/dmitrijs2005/applock/internal/server/services"
	"github.com/dmitrijs2005/applock/internal/wire"
	"google.golang.org/grpc"
)

// RecordsService is the record storage the handlers delegate to.
type RecordsService interface {
	GetCredential(ctx context.Context, principalID string) (*models.Credential, error)
	UpsertCredential(ctx context.Context, c *models.Credential) error
	GetLockRecord(ctx context.Context, principalID string) (*models.LockRecord, error)
	UpsertLockRecord(ctx context.Context, r *models.LockRecord) error
}

// SessionService rotates refresh tokens.
type SessionService interface {
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

type GRPCServer struct {
	address   string
	records   RecordsService
	sessions  SessionService
	logger    logging.Logger
	jwtSecret []byte
}

var _ wire.SecurityRecordsServer = (*GRPCServer)(nil)

func NewGRPCServer(address string, l logging.Logger, rs RecordsService, ss SessionService, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   address,
		logger:    l.With("module", "grpc_server"),
		records:   rs,
		sessions:  ss,
		jwtSecret: []byte(secretKey),
	}
}

// NewServer builds a grpc.Server with the auth interceptor and the
// SecurityRecords service registered.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(s.accessTokenInterceptor)}, opts...)
	srv := grpc.NewServer(opts...)
	wire.RegisterSecurityRecordsServer(srv, s)
	return srv
}

// Run listens on the configured address until ctx is cancelled, then
// stops gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	return srv.Serve(listen)
}
