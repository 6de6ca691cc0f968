// Package local opens the device database that holds the lock state and the
// device-side PIN stores.
package local

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/applock/internal/client/local/migrations"
	"github.com/dmitrijs2005/applock/internal/client/repositories/credentials"
	"github.com/dmitrijs2005/applock/internal/client/repositories/lockstate"
	"github.com/dmitrijs2005/applock/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/applock/internal/client/repositories/sessions"
	"github.com/dmitrijs2005/applock/internal/filex"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Repositories groups the device stores opened over one database.
type Repositories struct {
	DB        *sql.DB
	Metadata  metadata.Repository
	Legacy    *credentials.Repository
	LocalOnly *credentials.Repository
	Sessions  *sessions.Repository
}

// LockState returns the lock state repository bound to principal.
func (r *Repositories) LockState(principal string) *lockstate.Repository {
	return lockstate.NewSQLiteRepository(r.DB, principal)
}

func (r *Repositories) Close() error {
	return r.DB.Close()
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if needed) the SQLite file at path and
// applies migrations.
func InitDatabase(ctx context.Context, path string) (*Repositories, error) {
	dsn := path
	if path != ":memory:" {
		abs, err := filex.EnsureParentDir(path)
		if err != nil {
			return nil, err
		}
		dsn = abs
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one connection keeps :memory: databases and write ordering consistent
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	meta := metadata.NewSQLiteRepository(db)
	return &Repositories{
		DB:        db,
		Metadata:  meta,
		Legacy:    credentials.NewLegacyRepository(meta),
		LocalOnly: credentials.NewLocalOnlyRepository(meta),
		Sessions:  sessions.NewRepository(meta),
	}, nil
}
