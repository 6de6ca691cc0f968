package refreshtokens

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

const (
	insertToken = `INSERT INTO refresh_tokens (token, principal_id, expires_at) VALUES ($1, $2, $3)`
	selectToken = `SELECT principal_id, expires_at FROM refresh_tokens WHERE token = $1`
	deleteToken = `DELETE FROM refresh_tokens WHERE token = $1`
	deleteOwned = `DELETE FROM refresh_tokens WHERE principal_id = $1`
)

// PostgresRepository stores refresh tokens in PostgreSQL. Pass a *sql.Tx as
// db to take part in a rotation transaction.
type PostgresRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

func (r *PostgresRepository) Create(ctx context.Context, principalID string, token string, validity time.Duration) error {
	expires := r.now().Add(validity)
	if _, err := r.db.ExecContext(ctx, insertToken, token, principalID, expires); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	err := r.db.QueryRowContext(ctx, selectToken, token).Scan(&rt.PrincipalID, &rt.Expires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, common.ErrorNotFound
	case err != nil:
		return nil, fmt.Errorf("select refresh token: %w", err)
	}
	return &rt, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	return r.exec(ctx, "delete refresh token", deleteToken, token)
}

func (r *PostgresRepository) DeleteByPrincipal(ctx context.Context, principalID string) error {
	return r.exec(ctx, "revoke refresh tokens", deleteOwned, principalID)
}

func (r *PostgresRepository) exec(ctx context.Context, op, query string, arg string) error {
	if _, err := r.db.ExecContext(ctx, query, arg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
