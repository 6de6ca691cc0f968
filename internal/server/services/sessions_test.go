package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/applock/internal/common"
	"github.com/dmitrijs2005/applock/internal/server/auth"
	"github.com/dmitrijs2005/applock/internal/server/config"
	"github.com/dmitrijs2005/applock/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "k"

func newSessionService(t *testing.T, rm *fakeRepoManager) (*SessionService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newSQLMockDB(t)
	cfg := &config.Config{
		SecretKey:                    testSecret,
		AccessTokenValidityDuration:  time.Minute,
		RefreshTokenValidityDuration: time.Hour,
	}
	return NewSessionService(db, rm, cfg), mock
}

func expectTx(mock sqlmock.Sqlmock, commit bool) {
	mock.ExpectBegin()
	if commit {
		mock.ExpectCommit()
	} else {
		mock.ExpectRollback()
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	rm := newFakeRepoManager()
	rm.tokens.tokens["old"] = &models.RefreshToken{PrincipalID: "p1", Expires: time.Now().Add(10 * time.Minute)}

	s, mock := newSessionService(t, rm)
	expectTx(mock, true)

	pair, err := s.Refresh(context.Background(), "old")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.NotContains(t, rm.tokens.tokens, "old")
	assert.Contains(t, rm.tokens.tokens, pair.RefreshToken)
	assert.Len(t, pair.RefreshToken, 64)
	assert.False(t, pair.ExpiresAt.IsZero())

	principal, err := auth.PrincipalFromToken(pair.AccessToken, []byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, "p1", principal)
}

func TestRefresh_Errors(t *testing.T) {
	t.Run("unknown token", func(t *testing.T) {
		s, _ := newSessionService(t, newFakeRepoManager())

		_, err := s.Refresh(context.Background(), "nope")
		assert.ErrorIs(t, err, common.ErrorUnauthorized)
	})

	t.Run("expired", func(t *testing.T) {
		rm := newFakeRepoManager()
		rm.tokens.tokens["r"] = &models.RefreshToken{PrincipalID: "p1", Expires: time.Now().Add(-time.Minute)}
		s, _ := newSessionService(t, rm)

		_, err := s.Refresh(context.Background(), "r")
		assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)
	})

	t.Run("find error", func(t *testing.T) {
		rm := newFakeRepoManager()
		rm.tokens.findErr = errBoom
		s, _ := newSessionService(t, rm)

		_, err := s.Refresh(context.Background(), "r")
		assert.ErrorIs(t, err, errBoom)
		assert.Contains(t, err.Error(), "error searching refresh token")
	})

	t.Run("delete error rolls back", func(t *testing.T) {
		rm := newFakeRepoManager()
		rm.tokens.tokens["r"] = &models.RefreshToken{PrincipalID: "p1", Expires: time.Now().Add(time.Minute)}
		rm.tokens.deleteErr = errBoom
		s, mock := newSessionService(t, rm)
		expectTx(mock, false)

		_, err := s.Refresh(context.Background(), "r")
		assert.ErrorIs(t, err, errBoom)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("create error rolls back", func(t *testing.T) {
		rm := newFakeRepoManager()
		rm.tokens.tokens["r"] = &models.RefreshToken{PrincipalID: "p1", Expires: time.Now().Add(time.Minute)}
		rm.tokens.createErr = errBoom
		s, mock := newSessionService(t, rm)
		expectTx(mock, false)

		_, err := s.Refresh(context.Background(), "r")
		assert.ErrorIs(t, err, common.ErrorInternal)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMint(t *testing.T) {
	t.Run("revokes and issues", func(t *testing.T) {
		rm := newFakeRepoManager()
		rm.tokens.tokens["stale"] = &models.RefreshToken{PrincipalID: "p1", Expires: time.Now().Add(time.Hour)}
		rm.tokens.tokens["other"] = &models.RefreshToken{PrincipalID: "p2", Expires: time.Now().Add(time.Hour)}
		s, mock := newSessionService(t, rm)
		expectTx(mock, true)

		pair, err := s.Mint(context.Background(), "p1")
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())

		assert.Equal(t, []string{"p1"}, rm.tokens.revoked)
		assert.NotContains(t, rm.tokens.tokens, "stale")
		assert.Contains(t, rm.tokens.tokens, "other")
		assert.Contains(t, rm.tokens.tokens, pair.RefreshToken)
	})

	t.Run("empty principal", func(t *testing.T) {
		s, _ := newSessionService(t, newFakeRepoManager())

		_, err := s.Mint(context.Background(), "")
		assert.ErrorIs(t, err, common.ErrorValidation)
	})

	t.Run("revoke error", func(t *testing.T) {
		rm := newFakeRepoManager()
		rm.tokens.revokeErr = errBoom
		s, mock := newSessionService(t, rm)
		expectTx(mock, false)

		_, err := s.Mint(context.Background(), "p1")
		assert.ErrorIs(t, err, errBoom)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
