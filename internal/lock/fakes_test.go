package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/applock/internal/logging"
	"github.com/dmitrijs2005/applock/internal/pinhash"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var errStoreDown = errors.New("store down")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memPersistence struct {
	mu       sync.Mutex
	state    *State
	saves    int
	failSave bool
	cleared  bool
}

func (p *memPersistence) Load(context.Context) (*State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return nil, nil
	}
	s := p.state.clone()
	return &s, nil
}

func (p *memPersistence) Save(_ context.Context, s State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSave {
		return errors.New("disk full")
	}
	c := s.clone()
	p.state = &c
	p.saves++
	return nil
}

func (p *memPersistence) Clear(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = nil
	p.cleared = true
	return nil
}

func (p *memPersistence) stored() *State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// memCreds is a CredentialStore. When global is set the principal is
// ignored, like the device-wide local-only store.
type memCreds struct {
	mu      sync.Mutex
	global  bool
	recs    map[string]pinhash.Record
	gets    int
	upserts int
	deletes int
	getErr  error
	putErr  error
	block   chan struct{}
	waiting int
}

func newMemCreds() *memCreds {
	return &memCreds{recs: map[string]pinhash.Record{}}
}

func (s *memCreds) key(p string) string {
	if s.global {
		return ""
	}
	return p
}

func (s *memCreds) Get(_ context.Context, principal string) (*pinhash.Record, error) {
	s.mu.Lock()
	block := s.block
	if block != nil {
		s.waiting++
	}
	s.mu.Unlock()
	if block != nil {
		<-block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.recs[s.key(principal)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memCreds) Upsert(_ context.Context, principal string, rec pinhash.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.recs[s.key(principal)] = rec
	s.upserts++
	return nil
}

func (s *memCreds) Delete(_ context.Context, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, s.key(principal))
	s.deletes++
	return nil
}

func (s *memCreds) put(principal string, rec pinhash.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[s.key(principal)] = rec
}

func (s *memCreds) record(principal string) (pinhash.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[s.key(principal)]
	return rec, ok
}

func (s *memCreds) counts() (gets, upserts, deletes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.upserts, s.deletes
}

type memRecords struct {
	mu      sync.Mutex
	rec     *RecordFields
	upserts []RecordFields
	gets    int
	failN   int
	getErr  error
}

func (s *memRecords) Get(context.Context, string) (*RecordFields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.rec == nil {
		return nil, nil
	}
	r := *s.rec
	return &r, nil
}

func (s *memRecords) Upsert(_ context.Context, _ string, f RecordFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return errStoreDown
	}
	s.rec = &f
	s.upserts = append(s.upserts, f)
	return nil
}

func (s *memRecords) written() []RecordFields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordFields(nil), s.upserts...)
}

type fakeBio struct {
	mu        sync.Mutex
	available bool
	err       error
	calls     int
}

func (b *fakeBio) IsAvailable(context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

func (b *fakeBio) Authenticate(context.Context, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return b.err
}

type fakeSessions struct {
	mu    sync.Mutex
	calls int
	ttl   time.Duration
	clock *fakeClock
	err   error
}

func (f *fakeSessions) Refresh(context.Context) (SessionHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return SessionHandle{}, f.err
	}
	return SessionHandle{ExpiresAt: f.clock.Now().Add(f.ttl)}, nil
}

func (f *fakeSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type auditEvent struct {
	principal string
	name      string
	metadata  map[string]string
}

type recAudit struct {
	mu     sync.Mutex
	events []auditEvent
}

func (a *recAudit) Record(_ context.Context, principal, event string, md map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, auditEvent{principal: principal, name: event, metadata: md})
}

func (a *recAudit) names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.name)
	}
	return out
}

type harness struct {
	m         *Manager
	clock     *fakeClock
	hasher    *pinhash.Hasher
	local     *memPersistence
	remote    *memCreds
	records   *memRecords
	legacy    *memCreds
	localOnly *memCreds
	bio       *fakeBio
	sessions  *fakeSessions
	audit     *recAudit

	lockMu  sync.Mutex
	lockers []string
}

func testHasher() *pinhash.Hasher {
	return pinhash.New(pinhash.WithIterations(1000), pinhash.WithBcryptCost(bcrypt.MinCost))
}

func newHarness(t *testing.T, principal string, mutate ...func(h *harness, d *Deps)) *harness {
	t.Helper()

	clock := newFakeClock()
	h := &harness{
		clock:     clock,
		hasher:    testHasher(),
		local:     &memPersistence{},
		remote:    newMemCreds(),
		records:   &memRecords{},
		legacy:    newMemCreds(),
		localOnly: &memCreds{recs: map[string]pinhash.Record{}, global: true},
		bio:       &fakeBio{available: true},
		sessions:  &fakeSessions{ttl: time.Hour, clock: clock},
		audit:     &recAudit{},
	}

	d := Deps{
		Principal:            principal,
		Local:                h.local,
		RemoteCredentials:    h.remote,
		RemoteRecords:        h.records,
		LegacyCredentials:    h.legacy,
		LocalOnlyCredentials: h.localOnly,
		Biometric:            h.bio,
		Sessions:             h.sessions,
		Audit:                h.audit,
		Logger:               logging.Discard(),
	}
	for _, fn := range mutate {
		fn(h, &d)
	}

	m, err := NewManager(context.Background(), d,
		WithClock(clock.Now),
		WithHasher(h.hasher),
		WithRetries(2, time.Millisecond),
		WithOnLock(func(reason string) {
			h.lockMu.Lock()
			h.lockers = append(h.lockers, reason)
			h.lockMu.Unlock()
		}),
	)
	require.NoError(t, err)
	h.m = m
	t.Cleanup(m.Close)
	return h
}

// settle waits for background tasks started so far. Only valid before Start.
func (h *harness) settle() {
	h.m.wg.Wait()
}

func (h *harness) lockReasons() []string {
	h.lockMu.Lock()
	defer h.lockMu.Unlock()
	return append([]string(nil), h.lockers...)
}

func (h *harness) setState(t *testing.T, fn func(s *State)) {
	t.Helper()
	_, err := h.m.store.Update(context.Background(), func(s *State) bool {
		fn(s)
		return true
	})
	require.NoError(t, err)
}

func (h *harness) mustRecord(t *testing.T, pin string) pinhash.Record {
	t.Helper()
	rec, err := h.hasher.NewRecord(pin)
	require.NoError(t, err)
	return rec
}
