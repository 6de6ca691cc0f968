package lockrecords

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/applock/internal/common"
	"github.com/dmitrijs2005/applock/internal/dbx"
	"github.com/dmitrijs2005/applock/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, principalID string) (*models.LockRecord, error) {
	query := `
		SELECT principal_id, failed_attempts, locked_until, last_unlock_at,
		       biometric_enabled, require_on_sensitive_actions, idle_timeout_minutes, updated_at
		FROM lock_records
		WHERE principal_id = $1
	`
	var (
		rec                       models.LockRecord
		lockedUntil, lastUnlockAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, principalID).Scan(
		&rec.PrincipalID, &rec.FailedAttempts, &lockedUntil, &lastUnlockAt,
		&rec.BiometricEnabled, &rec.RequireOnSensitiveActions, &rec.IdleTimeoutMinutes, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	rec.LockedUntil = timePtr(lockedUntil)
	rec.LastUnlockAt = timePtr(lastUnlockAt)
	return &rec, nil
}

// Upsert applies last-writer-wins on updated_at.
func (r *PostgresRepository) Upsert(ctx context.Context, rec *models.LockRecord) (bool, error) {
	query := `
		INSERT INTO lock_records (principal_id, failed_attempts, locked_until, last_unlock_at,
		       biometric_enabled, require_on_sensitive_actions, idle_timeout_minutes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (principal_id) DO UPDATE
		SET failed_attempts = EXCLUDED.failed_attempts,
		    locked_until = EXCLUDED.locked_until,
		    last_unlock_at = EXCLUDED.last_unlock_at,
		    biometric_enabled = EXCLUDED.biometric_enabled,
		    require_on_sensitive_actions = EXCLUDED.require_on_sensitive_actions,
		    idle_timeout_minutes = EXCLUDED.idle_timeout_minutes,
		    updated_at = EXCLUDED.updated_at
		WHERE lock_records.updated_at <= EXCLUDED.updated_at
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.PrincipalID, rec.FailedAttempts, nullTime(rec.LockedUntil), nullTime(rec.LastUnlockAt),
		rec.BiometricEnabled, rec.RequireOnSensitiveActions, rec.IdleTimeoutMinutes, rec.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
