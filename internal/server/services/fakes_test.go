package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/applock/internal/common"
	"github.com/dmitrijs2005/applock/internal/dbx"
	"github.com/dmitrijs2005/applock/internal/server/models"
	"github.com/dmitrijs2005/applock/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/applock/internal/server/repositories/lockrecords"
	"github.com/dmitrijs2005/applock/internal/server/repositories/refreshtokens"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type fakeCredentials struct {
	stored    map[string]*models.Credential
	getErr    error
	upsertErr error
}

func (f *fakeCredentials) Get(_ context.Context, id string) (*models.Credential, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.stored[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return c, nil
}

func (f *fakeCredentials) Upsert(_ context.Context, c *models.Credential) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if old, ok := f.stored[c.PrincipalID]; ok && old.SchemeVersion > c.SchemeVersion {
		return common.ErrSchemeDowngrade
	}
	f.stored[c.PrincipalID] = c
	return nil
}

type fakeLockRecords struct {
	stored    map[string]*models.LockRecord
	upsertErr error
}

func (f *fakeLockRecords) Get(_ context.Context, id string) (*models.LockRecord, error) {
	r, ok := f.stored[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r, nil
}

func (f *fakeLockRecords) Upsert(_ context.Context, r *models.LockRecord) (bool, error) {
	if f.upsertErr != nil {
		return false, f.upsertErr
	}
	if old, ok := f.stored[r.PrincipalID]; ok && old.UpdatedAt.After(r.UpdatedAt) {
		return false, nil
	}
	f.stored[r.PrincipalID] = r
	return true, nil
}

type fakeRefreshTokens struct {
	tokens    map[string]*models.RefreshToken
	findErr   error
	deleteErr error
	revokeErr error
	createErr error
	revoked   []string
}

func (f *fakeRefreshTokens) Create(_ context.Context, id, token string, validity time.Duration) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.tokens[token] = &models.RefreshToken{PrincipalID: id, Expires: time.Now().Add(validity)}
	return nil
}

func (f *fakeRefreshTokens) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	t, ok := f.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return t, nil
}

func (f *fakeRefreshTokens) Delete(_ context.Context, token string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.tokens, token)
	return nil
}

func (f *fakeRefreshTokens) DeleteByPrincipal(_ context.Context, id string) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revoked = append(f.revoked, id)
	for k, v := range f.tokens {
		if v.PrincipalID == id {
			delete(f.tokens, k)
		}
	}
	return nil
}

type fakeRepoManager struct {
	creds  *fakeCredentials
	locks  *fakeLockRecords
	tokens *fakeRefreshTokens
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		creds:  &fakeCredentials{stored: map[string]*models.Credential{}},
		locks:  &fakeLockRecords{stored: map[string]*models.LockRecord{}},
		tokens: &fakeRefreshTokens{tokens: map[string]*models.RefreshToken{}},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *fakeRepoManager) Credentials(dbx.DBTX) credentials.Repository { return m.creds }

func (m *fakeRepoManager) LockRecords(dbx.DBTX) lockrecords.Repository { return m.locks }

func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.tokens }
