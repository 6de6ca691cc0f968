// Package lockstate persists the lock state of one principal on the device.
package lockstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/applock/internal/dbx"
	"github.com/dmitrijs2005/applock/internal/lock"
)

// Repository implements lock.LocalPersistence for a single principal. The
// state is stored as a JSON payload so new fields need no migration.
type Repository struct {
	db        dbx.DBTX
	principal string
}

func NewSQLiteRepository(db dbx.DBTX, principal string) *Repository {
	return &Repository{db: db, principal: principal}
}

func (r *Repository) Load(ctx context.Context) (*lock.State, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM lock_state WHERE principal_id = ?`, r.principal).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lock state: %w", err)
	}

	var st lock.State
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("failed to decode lock state: %w", err)
	}
	return &st, nil
}

func (r *Repository) Save(ctx context.Context, st lock.State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode lock state: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lock_state (principal_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(principal_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, r.principal, payload, st.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save lock state: %w", err)
	}
	return nil
}

func (r *Repository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM lock_state WHERE principal_id = ?`, r.principal)
	if err != nil {
		return fmt.Errorf("failed to clear lock state: %w", err)
	}
	return nil
}
