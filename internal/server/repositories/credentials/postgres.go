package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) Get(ctx context.Context, principalID string) (*models.Credential, error) {
	query := `
		SELECT principal_id, hash, salt, scheme_version, updated_at
		FROM credentials
		WHERE principal_id = $1
	`
	c := &models.Credential{}
	err := r.db.QueryRowContext(ctx, query, principalID).
		Scan(&c.PrincipalID, &c.Hash, &c.Salt, &c.SchemeVersion, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

// Upsert only overwrites a row whose scheme version is not newer than the
// incoming one, so zero affected rows means a downgrade was attempted.
func (r *PostgresRepository) Upsert(ctx context.Context, c *models.Credential) error {
	query := `
		INSERT INTO credentials (principal_id, hash, salt, scheme_version, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (principal_id) DO UPDATE
		SET hash = EXCLUDED.hash,
		    salt = EXCLUDED.salt,
		    scheme_version = EXCLUDED.scheme_version,
		    updated_at = EXCLUDED.updated_at
		WHERE credentials.scheme_version <= EXCLUDED.scheme_version
	`
	res, err := r.db.ExecContext(ctx, query, c.PrincipalID, c.Hash, c.Salt, c.SchemeVersion)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrSchemeDowngrade
	}
	return nil
}
