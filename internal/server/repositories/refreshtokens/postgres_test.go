package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/applock/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	insertQ   = `(?s)^INSERT\s+INTO\s+refresh_tokens\s+\(token,\s*principal_id,\s*expires_at\)\s+VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*$`
	selectQ   = `(?s)^SELECT\s+principal_id,\s*expires_at\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s*$`
	deleteQ   = `^DELETE FROM refresh_tokens WHERE token = \$1$`
	deleteAll = `^DELETE FROM refresh_tokens WHERE principal_id = \$1$`
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewPostgresRepository(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(insertQ).
		WithArgs("tok123", "p1", fixedNow.Add(30*time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), "p1", "tok123", 30*time.Minute))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(insertQ).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), "p1", "tok123", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert refresh token")
	assert.Contains(t, err.Error(), "db down")
}

func TestFind(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)

		expires := fixedNow.Add(10 * time.Minute)
		mock.ExpectQuery(selectQ).
			WithArgs("tok123").
			WillReturnRows(sqlmock.NewRows([]string{"principal_id", "expires_at"}).AddRow("p1", expires))

		got, err := repo.Find(context.Background(), "tok123")
		require.NoError(t, err)
		assert.Equal(t, "p1", got.PrincipalID)
		assert.True(t, got.Expires.Equal(expires))
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)

		mock.ExpectQuery(selectQ).WithArgs("missing").WillReturnError(sql.ErrNoRows)

		_, err := repo.Find(context.Background(), "missing")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)

		mock.ExpectQuery(selectQ).WithArgs("tok123").WillReturnError(errors.New("db err"))

		_, err := repo.Find(context.Background(), "tok123")
		require.Error(t, err)
		assert.NotErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(deleteQ).WithArgs("tok123").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteQ).WithArgs("tok456").WillReturnError(errors.New("db err"))

	require.NoError(t, repo.Delete(context.Background(), "tok123"))
	assert.Error(t, repo.Delete(context.Background(), "tok456"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByPrincipal(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(deleteAll).WithArgs("p1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(deleteAll).WithArgs("p2").WillReturnError(errors.New("db err"))

	require.NoError(t, repo.DeleteByPrincipal(context.Background(), "p1"))
	assert.Error(t, repo.DeleteByPrincipal(context.Background(), "p2"))
	require.NoError(t, mock.ExpectationsWereMet())
}
