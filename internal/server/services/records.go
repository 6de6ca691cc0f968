package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/applock/internal/common"
	"github.com/dmitrijs2005/applock/internal/logging"
	"github.com/dmitrijs2005/applock/internal/pinhash"
	"github.com/dmitrijs2005/applock/internal/server/models"
	"github.com/dmitrijs2005/applock/internal/server/repositories/repomanager"
)

// RecordsService serves the credential and lock record of each principal.
type RecordsService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewRecordsService(db *sql.DB, m repomanager.RepositoryManager, l logging.Logger) *RecordsService {
	return &RecordsService{db: db, repomanager: m, logger: l.With("module", "records")}
}

// GetCredential returns common.ErrorNotFound when none is stored.
func (s *RecordsService) GetCredential(ctx context.Context, principalID string) (*models.Credential, error) {
	return s.repomanager.Credentials(s.db).Get(ctx, principalID)
}

// UpsertCredential validates c and stores it. Scheme downgrades are
// rejected by the repository.
func (s *RecordsService) UpsertCredential(ctx context.Context, c *models.Credential) error {
	if len(c.Hash) == 0 {
		return fmt.Errorf("%w: empty hash", common.ErrorValidation)
	}
	switch c.SchemeVersion {
	case pinhash.SchemeCurrent:
		if len(c.Salt) == 0 {
			return fmt.Errorf("%w: missing salt", common.ErrorValidation)
		}
	case pinhash.SchemeLegacy:
	default:
		return fmt.Errorf("%w: scheme %d", common.ErrorValidation, c.SchemeVersion)
	}

	if err := s.repomanager.Credentials(s.db).Upsert(ctx, c); err != nil {
		return err
	}
	s.logger.Info(ctx, "credential stored", "principal", c.PrincipalID, "scheme", c.SchemeVersion)
	return nil
}

// GetLockRecord returns common.ErrorNotFound when none is stored.
func (s *RecordsService) GetLockRecord(ctx context.Context, principalID string) (*models.LockRecord, error) {
	return s.repomanager.LockRecords(s.db).Get(ctx, principalID)
}

// UpsertLockRecord stores r unless a newer record is already present.
// A stale write is not an error.
func (s *RecordsService) UpsertLockRecord(ctx context.Context, r *models.LockRecord) error {
	if r.FailedAttempts < 0 || r.IdleTimeoutMinutes <= 0 || r.UpdatedAt.IsZero() {
		return common.ErrorValidation
	}

	applied, err := s.repomanager.LockRecords(s.db).Upsert(ctx, r)
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Info(ctx, "stale lock record ignored", "principal", r.PrincipalID, "updated_at", r.UpdatedAt)
	}
	return nil
}
