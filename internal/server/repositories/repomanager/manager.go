package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/applock/internal/dbx"
	"github.com/dmitrijs2005/applock/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/applock/internal/server/repositories/lockrecords"
	"github.com/dmitrijs2005/applock/internal/server/repositories/refreshtokens"
)

// RepositoryManager vends repositories bound to a DBTX, so services can
// run them against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Credentials(db dbx.DBTX) credentials.Repository
	LockRecords(db dbx.DBTX) lockrecords.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
