package remote

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/applock/internal/common"
	"github.com/dmitrijs2005/applock/internal/lock"
	"github.com/dmitrijs2005/applock/internal/logging"
	"github.com/dmitrijs2005/applock/internal/pinhash"
	"github.com/dmitrijs2005/applock/internal/server/auth"
	servergrpc "github.com/dmitrijs2005/applock/internal/server/grpc"
	"github.com/dmitrijs2005/applock/internal/server/models"
	"github.com/dmitrijs2005/applock/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const secret = "test-secret"

type memRecords struct {
	mu    sync.Mutex
	creds map[string]*models.Credential
	locks map[string]*models.LockRecord
}

func (m *memRecords) GetCredential(_ context.Context, id string) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return c, nil
}

func (m *memRecords) UpsertCredential(_ context.Context, c *models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.creds[c.PrincipalID]; ok && old.SchemeVersion > c.SchemeVersion {
		return common.ErrSchemeDowngrade
	}
	m.creds[c.PrincipalID] = c
	return nil
}

func (m *memRecords) GetLockRecord(_ context.Context, id string) (*models.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.locks[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r, nil
}

func (m *memRecords) UpsertLockRecord(_ context.Context, r *models.LockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[r.PrincipalID] = r
	return nil
}

// rotatingSessions accepts exactly the refresh tokens it has issued, once.
type rotatingSessions struct {
	t      *testing.T
	mu     sync.Mutex
	valid  map[string]string
	n      int
	calls  int
	expire time.Duration
}

func (s *rotatingSessions) issue(principal string) services.TokenPair {
	s.t.Helper()
	access, expires, err := auth.GenerateToken(principal, []byte(secret), s.expire)
	require.NoError(s.t, err)
	s.n++
	refresh := "r" + string(rune('0'+s.n))
	s.valid[refresh] = principal
	return services.TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expires}
}

func (s *rotatingSessions) Refresh(_ context.Context, token string) (*services.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	principal, ok := s.valid[token]
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	delete(s.valid, token)
	p := s.issue(principal)
	return &p, nil
}

type harness struct {
	records  *memRecords
	sessions *rotatingSessions
	lis      *bufconn.Listener
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		records:  &memRecords{creds: map[string]*models.Credential{}, locks: map[string]*models.LockRecord{}},
		sessions: &rotatingSessions{t: t, valid: map[string]string{}, expire: time.Minute},
		lis:      bufconn.Listen(1 << 20),
	}

	srv := servergrpc.NewGRPCServer("bufnet", logging.Discard(), h.records, h.sessions, secret).NewServer()
	go func() { _ = srv.Serve(h.lis) }()
	t.Cleanup(srv.Stop)
	return h
}

func (h *harness) client(t *testing.T, opts ...Option) *Client {
	t.Helper()
	opts = append(opts, WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return h.lis.DialContext(ctx)
	})))
	c, err := New("passthrough:///bufnet", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (h *harness) login(t *testing.T, principal string, opts ...Option) *Client {
	t.Helper()
	h.sessions.mu.Lock()
	pair := h.sessions.issue(principal)
	h.sessions.mu.Unlock()
	return h.client(t, append(opts, WithSession(pair.AccessToken, pair.RefreshToken))...)
}

func TestPing(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, h.client(t).Ping(context.Background()))
}

func TestCredentials(t *testing.T) {
	h := newHarness(t)
	c := h.login(t, "p1")
	ctx := context.Background()

	got, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got, "missing credential is nil, nil")

	rec := pinhash.Record{Hash: []byte{1, 2, 3}, Salt: []byte{9}, SchemeVersion: pinhash.SchemeCurrent}
	require.NoError(t, c.Upsert(ctx, "p1", rec))

	got, err = c.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, &rec, got)

	err = c.Upsert(ctx, "p1", pinhash.Record{Hash: []byte{4}, SchemeVersion: pinhash.SchemeLegacy})
	assert.ErrorIs(t, err, common.ErrSchemeDowngrade)
}

func TestLockRecords(t *testing.T) {
	h := newHarness(t)
	r := h.login(t, "p1").LockRecords()
	ctx := context.Background()

	got, err := r.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got)

	updated := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	until := updated.Add(30 * time.Second)
	fields := lock.RecordFields{
		FailedAttempts: 5, LockedUntil: &until, RequireOnSensitiveActions: true,
		IdleTimeoutMinutes: 5, UpdatedAt: updated,
	}
	require.NoError(t, r.Upsert(ctx, "p1", fields))

	got, err = r.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 5, got.FailedAttempts)
	assert.True(t, got.LockedUntil.Equal(until))
	assert.True(t, got.UpdatedAt.Equal(updated))
}

func TestOtherPrincipalIsUnauthorized(t *testing.T) {
	h := newHarness(t)
	c := h.login(t, "p1")

	_, err := c.Get(context.Background(), "p2")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestExpiredAccessTokenIsRotatedOnce(t *testing.T) {
	h := newHarness(t)

	h.sessions.mu.Lock()
	h.sessions.expire = -time.Minute
	stale := h.sessions.issue("p1")
	h.sessions.expire = time.Minute
	h.sessions.mu.Unlock()

	var rotated []Session
	c := h.client(t,
		WithSession(stale.AccessToken, stale.RefreshToken),
		WithOnRotate(func(_ context.Context, s Session) { rotated = append(rotated, s) }),
	)

	_, err := c.Get(context.Background(), "p1")
	require.NoError(t, err)

	require.Len(t, rotated, 1)
	assert.NotEqual(t, stale.RefreshToken, c.Session().RefreshToken)
	assert.Equal(t, rotated[0], c.Session())
	assert.Equal(t, 1, h.sessions.calls)
}

func TestRefresh(t *testing.T) {
	h := newHarness(t)
	c := h.login(t, "p1")

	handle, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), handle.ExpiresAt, 5*time.Second)

	// the old refresh token was consumed; the client keeps the new one
	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, h.sessions.calls)
}

func TestRefresh_NoSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.client(t).Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRefresh_Rejected(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, WithSession("a", "unknown"))

	_, err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUnreachableServerIsUnavailable(t *testing.T) {
	c, err := New("passthrough:///nowhere",
		WithCallTimeout(200*time.Millisecond),
		WithDialOptions(grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return nil, errors.New("refused")
		})),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Get(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{name: "unauthenticated", in: status.Error(codes.Unauthenticated, "x"), want: ErrUnauthorized},
		{name: "permission denied", in: status.Error(codes.PermissionDenied, "x"), want: ErrUnauthorized},
		{name: "unavailable", in: status.Error(codes.Unavailable, "x"), want: ErrUnavailable},
		{name: "deadline", in: status.Error(codes.DeadlineExceeded, "x"), want: ErrUnavailable},
		{name: "context", in: context.DeadlineExceeded, want: ErrUnavailable},
		{name: "downgrade", in: status.Error(codes.FailedPrecondition, "x"), want: common.ErrSchemeDowngrade},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.in), tt.want)
		})
	}

	assert.NoError(t, mapError(nil))
	internal := status.Error(codes.Internal, "boom")
	assert.ErrorIs(t, mapError(internal), internal)
}
