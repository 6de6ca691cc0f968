// Package remote talks to the SecurityRecords service. Client implements
// the credential store, lock record store and session refresher the lock
// manager needs on the device.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/applock/internal/common"
	"github.com/dmitrijs2005/applock/internal/lock"
	"github.com/dmitrijs2005/applock/internal/pinhash"
	"github.com/dmitrijs2005/applock/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// DefaultCallTimeout bounds every call that arrives without a deadline.
const DefaultCallTimeout = 10 * time.Second

// Session is a token pair as issued by the server.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type Option func(*Client)

// WithSession seeds the client with an existing token pair.
func WithSession(access, refresh string) Option {
	return func(c *Client) {
		c.session.AccessToken = access
		c.session.RefreshToken = refresh
	}
}

// WithOnRotate registers fn to be called with every rotated session, so the
// caller can persist the new refresh token.
func WithOnRotate(fn func(ctx context.Context, s Session)) Option {
	return func(c *Client) { c.onRotate = fn }
}

// WithDialOptions appends gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) { c.dialOpts = append(c.dialOpts, opts...) }
}

// WithCallTimeout overrides DefaultCallTimeout.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

type Client struct {
	conn     *grpc.ClientConn
	dialOpts []grpc.DialOption
	timeout  time.Duration
	onRotate func(ctx context.Context, s Session)

	mu      sync.Mutex
	session Session

	// refreshMu serialises rotations: a refresh token is single use.
	refreshMu sync.Mutex
}

var (
	_ lock.CredentialStore  = (*Client)(nil)
	_ lock.SessionRefresher = (*Client)(nil)
)

// New creates a client for endpoint. The connection is established lazily.
func New(endpoint string, opts ...Option) (*Client, error) {
	c := &Client{timeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(c)
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, c.dialOpts...)

	conn, err := grpc.NewClient(endpoint, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Session returns the current token pair.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func withPrincipal(ctx context.Context, principal string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, common.PrincipalHeaderName, principal)
}

// accessTokenInterceptor attaches the access token. When the server reports
// an expired token it rotates the session once and retries.
func (c *Client) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if method == wire.FullMethod(wire.MethodRefreshSession) || method == wire.FullMethod(wire.MethodPing) {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	used := c.Session().AccessToken
	err := invoker(withAccessToken(ctx, used), method, req, reply, cc, opts...)
	if !isTokenExpired(err) {
		return err
	}

	if _, rerr := c.rotate(ctx, used); rerr != nil {
		return err
	}

	return invoker(withAccessToken(ctx, c.Session().AccessToken), method, req, reply, cc, opts...)
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

// rotate exchanges the refresh token. When stale is set and the current
// access token differs, another caller has already rotated and nothing is sent.
func (c *Client) rotate(ctx context.Context, stale string) (Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	cur := c.Session()
	if stale != "" && cur.AccessToken != stale {
		return cur, nil
	}
	if cur.RefreshToken == "" {
		return Session{}, ErrNoSession
	}

	resp, err := wire.Invoke[wire.RefreshRequest, wire.Session](ctx, c.conn, wire.MethodRefreshSession,
		&wire.RefreshRequest{RefreshToken: cur.RefreshToken})
	if err != nil {
		return Session{}, mapError(err)
	}

	next := Session{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken, ExpiresAt: resp.ExpiresAt}
	c.mu.Lock()
	c.session = next
	c.mu.Unlock()

	if c.onRotate != nil {
		c.onRotate(ctx, next)
	}
	return next, nil
}

func (c *Client) callContext(ctx context.Context, principal string) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		return withPrincipal(ctx, principal), cancel
	}
	return withPrincipal(ctx, principal), func() {}
}

// Ping checks the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.callContext(ctx, "")
	defer cancel()

	_, err := wire.Invoke[wire.Empty, wire.Empty](ctx, c.conn, wire.MethodPing, &wire.Empty{})
	return mapError(err)
}

// Refresh rotates the session. It implements lock.SessionRefresher.
func (c *Client) Refresh(ctx context.Context) (lock.SessionHandle, error) {
	ctx, cancel := c.callContext(ctx, "")
	defer cancel()

	s, err := c.rotate(ctx, "")
	if err != nil {
		return lock.SessionHandle{}, err
	}
	return lock.SessionHandle{ExpiresAt: s.ExpiresAt}, nil
}

// Get returns nil, nil when the principal has no credential.
func (c *Client) Get(ctx context.Context, principal string) (*pinhash.Record, error) {
	ctx, cancel := c.callContext(ctx, principal)
	defer cancel()

	resp, err := wire.Invoke[wire.PrincipalRequest, wire.Credential](ctx, c.conn, wire.MethodGetCredential,
		&wire.PrincipalRequest{PrincipalID: principal})
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}

	return &pinhash.Record{Hash: resp.Hash, Salt: resp.Salt, SchemeVersion: resp.SchemeVersion}, nil
}

func (c *Client) Upsert(ctx context.Context, principal string, rec pinhash.Record) error {
	ctx, cancel := c.callContext(ctx, principal)
	defer cancel()

	_, err := wire.Invoke[wire.Credential, wire.Empty](ctx, c.conn, wire.MethodUpsertCredential, &wire.Credential{
		PrincipalID:   principal,
		Hash:          rec.Hash,
		Salt:          rec.Salt,
		SchemeVersion: rec.SchemeVersion,
	})
	return mapError(err)
}

// LockRecords returns a view of the client implementing lock.LockRecordStore.
func (c *Client) LockRecords() *LockRecords {
	return &LockRecords{c: c}
}

// LockRecords is the lock record side of Client. Its Get and Upsert
// signatures differ from the credential ones, hence the separate type.
type LockRecords struct {
	c *Client
}

var _ lock.LockRecordStore = (*LockRecords)(nil)

func (r *LockRecords) Get(ctx context.Context, principal string) (*lock.RecordFields, error) {
	ctx, cancel := r.c.callContext(ctx, principal)
	defer cancel()

	resp, err := wire.Invoke[wire.PrincipalRequest, wire.LockRecord](ctx, r.c.conn, wire.MethodGetLockRecord,
		&wire.PrincipalRequest{PrincipalID: principal})
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}

	return &lock.RecordFields{
		FailedAttempts:            resp.FailedAttempts,
		LockedUntil:               resp.LockedUntil,
		LastUnlockAt:              resp.LastUnlockAt,
		BiometricEnabled:          resp.BiometricEnabled,
		RequireOnSensitiveActions: resp.RequireOnSensitiveActions,
		IdleTimeoutMinutes:        resp.IdleTimeoutMinutes,
		UpdatedAt:                 resp.UpdatedAt,
	}, nil
}

func (r *LockRecords) Upsert(ctx context.Context, principal string, f lock.RecordFields) error {
	ctx, cancel := r.c.callContext(ctx, principal)
	defer cancel()

	_, err := wire.Invoke[wire.LockRecord, wire.Empty](ctx, r.c.conn, wire.MethodUpsertLockRecord, &wire.LockRecord{
		PrincipalID:               principal,
		FailedAttempts:            f.FailedAttempts,
		LockedUntil:               f.LockedUntil,
		LastUnlockAt:              f.LastUnlockAt,
		BiometricEnabled:          f.BiometricEnabled,
		RequireOnSensitiveActions: f.RequireOnSensitiveActions,
		IdleTimeoutMinutes:        f.IdleTimeoutMinutes,
		UpdatedAt:                 f.UpdatedAt,
	})
	return mapError(err)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", common.ErrSchemeDowngrade, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
