// Package lock is the local authentication lock: a PIN and biometric gate in
// front of an already authenticated session.
//
// A Manager owns the lock state of one principal. It verifies PINs against an
// ordered list of credential sources, applies the brute-force throttle,
// persists every transition locally before it becomes visible, mirrors the
// state to the remote lock record in the background and runs the idle
// monitor. Construct one per login with NewManager, call Start, and Close or
// Logout when the session ends.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/applock/internal/biometric"
	"github.com/dmitrijs2005/applock/internal/logging"
	"github.com/dmitrijs2005/applock/internal/pinhash"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultMonitorInterval = 10 * time.Second
	DefaultRefreshMargin   = 2 * time.Minute
	BiometricPrompt        = "Unlock to continue"

	backgroundTimeout = 30 * time.Second
)

// Deps are the collaborators of a Manager. Principal may be empty during
// onboarding; remote stores may be nil when the device runs without a server.
type Deps struct {
	Principal string

	Local                LocalPersistence
	RemoteCredentials    CredentialStore
	RemoteRecords        LockRecordStore
	LegacyCredentials    LocalCredentialStore
	LocalOnlyCredentials LocalCredentialStore

	Biometric biometric.Capability
	Sessions  SessionRefresher
	Audit     AuditSink
	Logger    logging.Logger
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithPolicy(p Policy) Option {
	return func(m *Manager) { m.policy = p }
}

func WithHasher(h *pinhash.Hasher) Option {
	return func(m *Manager) { m.hasher = h }
}

func WithMonitorInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithRefreshMargin sets how close to expiry the session is refreshed.
func WithRefreshMargin(d time.Duration) Option {
	return func(m *Manager) { m.refreshMargin = d }
}

// WithRetries configures retries of background remote writes.
func WithRetries(n uint64, base time.Duration) Option {
	return func(m *Manager) {
		m.retries = n
		m.retryBase = base
	}
}

// WithOnLock registers the callback that brings up the lock screen.
func WithOnLock(fn func(reason string)) Option {
	return func(m *Manager) { m.onLock = fn }
}

type Manager struct {
	principal string
	store     *Store
	mirror    *Mirror
	policy    Policy
	hasher    *pinhash.Hasher
	sources   []CredentialSource

	remoteCreds   CredentialStore
	remoteRecords LockRecordStore
	legacyCreds   LocalCredentialStore
	localOnly     LocalCredentialStore
	bio           biometric.Capability
	sessions      SessionRefresher
	audit         AuditSink
	log           logging.Logger

	now           func() time.Time
	onLock        func(reason string)
	interval      time.Duration
	refreshMargin time.Duration
	retries       uint64
	retryBase     time.Duration

	// attemptMu serializes unlock attempts; the store mutex is never held
	// while a credential is being verified.
	attemptMu sync.Mutex

	sessionMu  sync.Mutex
	session    *SessionHandle
	refreshing atomic.Bool

	runMu   sync.Mutex
	started bool
	cancel  context.CancelFunc
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// NewManager builds a Manager and loads the persisted state. No remote call
// is made before Start.
func NewManager(ctx context.Context, deps Deps, opts ...Option) (*Manager, error) {
	if deps.Local == nil {
		return nil, errors.New("lock: local persistence is required")
	}

	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}

	m := &Manager{
		principal:     deps.Principal,
		policy:        DefaultPolicy(),
		remoteCreds:   deps.RemoteCredentials,
		remoteRecords: deps.RemoteRecords,
		legacyCreds:   deps.LegacyCredentials,
		localOnly:     deps.LocalOnlyCredentials,
		bio:           deps.Biometric,
		sessions:      deps.Sessions,
		audit:         deps.Audit,
		now:           time.Now,
		interval:      DefaultMonitorInterval,
		refreshMargin: DefaultRefreshMargin,
		retries:       DefaultMirrorRetries,
		retryBase:     DefaultMirrorRetryBase,
	}
	for _, o := range opts {
		o(m)
	}

	if m.hasher == nil {
		m.hasher = pinhash.New()
	}
	if m.audit == nil {
		m.audit = noopAudit{}
	}
	m.log = log.With("module", "lock", "principal", m.principal)

	if m.principal != "" && m.remoteRecords != nil {
		m.mirror = NewMirror(m.principal, m.remoteRecords, m.retries, m.retryBase, log)
	}
	m.store = NewStore(deps.Local, m.mirror, m.now, log)

	events := eventRecorder(m.record)
	m.sources = []CredentialSource{
		newRemoteSource(m.remoteCreds, m.hasher, events),
		newLegacyLocalSource(m.legacyCreds, m.remoteCreds, m.hasher, events),
		newLocalOnlySource(m.localOnly, m.remoteCreds, m.hasher, events),
	}

	if _, err := m.store.Load(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Start launches the idle monitor and the remote mirror, reconciles with
// the remote lock record and uploads a PIN set before the principal was known.
func (m *Manager) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.started || m.closed.Load() {
		return
	}
	m.started = true

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if m.mirror != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.mirror.Run(runCtx)
		}()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runMonitor(runCtx)
	}()

	m.background("startup sync", func(ctx context.Context) error {
		if err := m.Reconcile(ctx); err != nil {
			m.log.Warn(ctx, "lock record reconcile failed", "error", err)
		}
		return m.SyncPendingPIN(ctx)
	})
}

// Close stops background work and waits for it. It is safe to call twice.
func (m *Manager) Close() {
	m.closed.Store(true)

	m.runMu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.runMu.Unlock()

	m.wg.Wait()
}

// background runs fn detached from the caller with its own timeout. Close
// waits for it. Once closed, fn runs inline.
func (m *Manager) background(name string, fn func(ctx context.Context) error) {
	if m.closed.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			m.log.Warn(ctx, "task failed", "task", name, "error", err)
		}
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			m.log.Warn(ctx, "background task failed", "task", name, "error", err)
		}
	}()
}

// withRetry retries fn with exponential backoff.
func (m *Manager) withRetry(fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		b := retry.WithMaxRetries(m.retries, retry.NewExponential(m.retryBase))
		return retry.Do(ctx, b, func(ctx context.Context) error {
			if err := fn(ctx); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
	}
}

func (m *Manager) record(ctx context.Context, event string, metadata map[string]string) {
	m.audit.Record(ctx, m.principal, event, metadata)
}

func (m *Manager) recordAttempt(ctx context.Context, ev AttemptEvent, extra map[string]string) {
	md := map[string]string{
		"method": string(ev.Method),
		"at":     ev.At.UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		md[k] = v
	}
	name := EventUnlockSucceeded
	if ev.Outcome == OutcomeFailure {
		name = EventUnlockFailed
	}
	m.record(ctx, name, md)
}

// SetPIN installs a new PIN. Without a principal (or a remote store) the PIN
// stays on the device until it can be uploaded. Replacing an existing PIN
// requires the lock to be open.
func (m *Manager) SetPIN(ctx context.Context, pin string) error {
	if err := pinhash.ValidateFormat(pin); err != nil {
		return err
	}
	if m.closed.Load() {
		return ErrClosed
	}

	st := m.store.Snapshot()
	if m.policy.SecurityAlertTriggered(st.FailedAttempts) {
		return &SecurityAlertError{FailedAttempts: st.FailedAttempts}
	}

	if m.IsUnlockRequired(false) {
		configured, err := m.credentialConfigured(ctx)
		if err != nil {
			return &ServiceUnavailableError{Cause: err}
		}
		if configured {
			return ErrNotUnlocked
		}
	}

	if err := m.installPIN(ctx, pin); err != nil {
		return err
	}
	m.log.Info(ctx, "pin set")
	return nil
}

func (m *Manager) installPIN(ctx context.Context, pin string) error {
	rec, err := m.hasher.NewRecord(pin)
	if err != nil {
		return err
	}

	if m.principal == "" || m.remoteCreds == nil {
		if m.localOnly == nil {
			return &ServiceUnavailableError{Cause: errors.New("no credential store configured")}
		}
		if err := m.localOnly.Upsert(ctx, m.principal, rec); err != nil {
			return &ServiceUnavailableError{Cause: err}
		}
		m.record(ctx, EventPINSet, map[string]string{"store": "local_only"})
		return nil
	}

	if err := m.remoteCreds.Upsert(ctx, m.principal, rec); err != nil {
		return &ServiceUnavailableError{Cause: err}
	}
	m.retireLocal(ctx)
	m.record(ctx, EventPINSet, map[string]string{"store": "remote"})
	return nil
}

// retireLocal removes device copies superseded by the remote record.
func (m *Manager) retireLocal(ctx context.Context) {
	if m.localOnly != nil {
		if err := m.localOnly.Delete(ctx, m.principal); err != nil {
			m.log.Warn(ctx, "retire local-only pin failed", "error", err)
		}
	}
	if m.legacyCreds != nil {
		if err := m.legacyCreds.Delete(ctx, m.principal); err != nil {
			m.log.Warn(ctx, "retire legacy pin failed", "error", err)
		}
	}
}

func (m *Manager) credentialConfigured(ctx context.Context) (bool, error) {
	stores := []CredentialStore{}
	if m.principal != "" && m.remoteCreds != nil {
		stores = append(stores, m.remoteCreds)
	}
	if m.principal != "" && m.legacyCreds != nil {
		stores = append(stores, m.legacyCreds)
	}
	if m.localOnly != nil {
		stores = append(stores, m.localOnly)
	}
	for _, s := range stores {
		rec, err := s.Get(ctx, m.principal)
		if err != nil {
			return false, err
		}
		if rec != nil {
			return true, nil
		}
	}
	return false, nil
}

// gate runs the checks shared by all unlock methods before any credential is
// looked at. It reports the alert before the cooldown so that a principal in
// recovery is not told to simply wait.
func (m *Manager) gate(st State, now time.Time, serialized bool) error {
	if m.policy.SecurityAlertTriggered(st.FailedAttempts) {
		return &SecurityAlertError{FailedAttempts: st.FailedAttempts}
	}
	if m.policy.IsLockedOut(st, now) {
		remaining := m.policy.CooldownRemaining(st, now)
		if serialized {
			return &AlreadyLockedOutError{Remaining: remaining}
		}
		return &LockedOutError{Remaining: remaining}
	}
	return nil
}

// UnlockWithPIN verifies pin and opens the lock. A false result always comes
// with an error describing why.
func (m *Manager) UnlockWithPIN(ctx context.Context, pin string) (bool, error) {
	if err := pinhash.ValidateFormat(pin); err != nil {
		return false, err
	}
	if m.closed.Load() {
		return false, ErrClosed
	}
	if err := m.gate(m.store.Snapshot(), m.now(), false); err != nil {
		return false, err
	}

	m.attemptMu.Lock()
	defer m.attemptMu.Unlock()

	if err := m.gate(m.store.Snapshot(), m.now(), true); err != nil {
		return false, err
	}

	check, source, err := m.verify(ctx, pin)
	if err != nil {
		m.log.Warn(ctx, "pin could not be verified", "error", err)
		m.record(ctx, EventUnlockUnavailable, map[string]string{"method": string(MethodPIN)})
		return false, &ServiceUnavailableError{Cause: err}
	}

	if check.Verdict == Matched {
		if err := m.grant(ctx, MethodPIN, map[string]string{"source": source}); err != nil {
			return false, err
		}
		if check.FollowUp != nil {
			m.background("credential follow-up "+source, m.withRetry(check.FollowUp))
		}
		return true, nil
	}

	return false, m.fail(ctx, MethodPIN)
}

// verify asks the sources in order. A source that cannot answer ends the
// attempt: a lower source may hold an outdated PIN, so neither its match nor
// its mismatch is trusted.
func (m *Manager) verify(ctx context.Context, pin string) (Check, string, error) {
	for _, src := range m.sources {
		c, err := src.Check(ctx, m.principal, pin)
		if err != nil {
			m.log.Debug(ctx, "credential source failed", "source", src.Name(), "error", err)
			return Check{}, "", fmt.Errorf("%s: %w", src.Name(), err)
		}
		if c.Verdict != NotFound {
			return c, src.Name(), nil
		}
	}
	return Check{}, "", ErrCredentialNotConfigured
}

// grant opens the lock and clears the counters.
func (m *Manager) grant(ctx context.Context, method Method, extra map[string]string) error {
	now := m.now()
	_, err := m.store.Update(ctx, func(s *State) bool {
		t := now
		s.IsUnlocked = true
		s.LastUnlockAt = &t
		s.FailedAttempts = 0
		s.LockedUntil = nil
		return true
	})
	if err != nil {
		return &ServiceUnavailableError{Cause: err}
	}

	m.recordAttempt(ctx, AttemptEvent{Outcome: OutcomeSuccess, Method: method, At: now}, extra)
	m.log.Info(ctx, "unlocked", "method", method)
	m.refreshSessionAsync()
	return nil
}

// fail counts a failed PIN attempt and builds the error for the caller.
func (m *Manager) fail(ctx context.Context, method Method) error {
	now := m.now()
	st, err := m.store.Update(ctx, func(s *State) bool {
		s.FailedAttempts, s.LockedUntil = m.policy.NextOnFailure(*s, now)
		if s.LockedUntil != nil {
			s.IsUnlocked = false
			s.LastUnlockAt = nil
		}
		return true
	})
	if err != nil {
		m.log.Error(ctx, "failed attempt not persisted", "error", err)
	}

	m.recordAttempt(ctx, AttemptEvent{Outcome: OutcomeFailure, Method: method, At: now},
		map[string]string{"failed_attempts": strconv.Itoa(st.FailedAttempts)})

	if m.policy.SecurityAlertTriggered(st.FailedAttempts) {
		m.record(ctx, EventSecurityAlert, map[string]string{"failed_attempts": strconv.Itoa(st.FailedAttempts)})
		m.log.Warn(ctx, "security alert raised", "failed_attempts", st.FailedAttempts)
		return &SecurityAlertError{FailedAttempts: st.FailedAttempts}
	}

	return &IncorrectCredentialError{
		RemainingAttempts: m.policy.RemainingAttempts(st.FailedAttempts),
		Cooldown:          m.policy.CooldownRemaining(st, now),
	}
}

// UnlockWithBiometric opens the lock through the biometric prompt. A
// rejected prompt is audited but never counted against the PIN throttle.
func (m *Manager) UnlockWithBiometric(ctx context.Context) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}

	st := m.store.Snapshot()
	if !st.BiometricEnabled {
		return false, ErrBiometricDisabled
	}
	if m.bio == nil || !m.bio.IsAvailable(ctx) {
		return false, ErrBiometricUnavailable
	}
	if err := m.gate(st, m.now(), false); err != nil {
		return false, err
	}

	m.attemptMu.Lock()
	defer m.attemptMu.Unlock()

	if err := m.gate(m.store.Snapshot(), m.now(), true); err != nil {
		return false, err
	}

	if err := m.bio.Authenticate(ctx, BiometricPrompt); err != nil {
		m.record(ctx, EventBiometricFailed, map[string]string{"reason": err.Error()})
		m.log.Info(ctx, "biometric unlock failed", "error", err)
		return false, fmt.Errorf("%w: %w", ErrBiometricFailed, err)
	}

	if err := m.grant(ctx, MethodBiometric, nil); err != nil {
		return false, err
	}
	return true, nil
}

// Lock closes the lock and shows the lock screen. The lock is closed in
// memory even if it cannot be saved.
func (m *Manager) Lock(ctx context.Context) error {
	return m.lock(ctx, "manual")
}

func (m *Manager) lock(ctx context.Context, reason string) error {
	_, err := m.store.Update(ctx, func(s *State) bool {
		s.IsUnlocked = false
		s.LastUnlockAt = nil
		return true
	})

	m.record(ctx, EventLocked, map[string]string{"reason": reason})
	m.log.Info(ctx, "locked", "reason", reason)
	if m.onLock != nil {
		m.onLock(reason)
	}
	return err
}

// IsUnlockRequired reports whether the user has to unlock before going on.
// For sensitive actions the last unlock must also be recent, when the
// principal asked for that.
func (m *Manager) IsUnlockRequired(forSensitiveAction bool) bool {
	st := m.store.Snapshot()
	now := m.now()

	if !st.IsUnlocked || st.LastUnlockAt == nil || m.policy.IsLockedOut(st, now) {
		return true
	}
	idle := now.Sub(*st.LastUnlockAt)
	if !st.CriticalOperationActive && idle > st.idleTimeout() {
		return true
	}
	if forSensitiveAction && st.RequireOnSensitiveActions && idle > SensitiveActionRecency {
		return true
	}
	return false
}

// StartCriticalOperation suspends the idle lock until the returned release
// func or EndCriticalOperation is called. Critical sections do not nest.
func (m *Manager) StartCriticalOperation(ctx context.Context) (release func()) {
	changed := false
	_, err := m.store.Update(ctx, func(s *State) bool {
		changed = !s.CriticalOperationActive
		s.CriticalOperationActive = true
		return changed
	})
	if err != nil {
		m.log.Error(ctx, "critical operation flag not persisted", "error", err)
	}
	if changed {
		m.record(ctx, EventCriticalOpStarted, nil)
	} else {
		m.log.Warn(ctx, "critical operation already active")
	}

	var once sync.Once
	detached := context.WithoutCancel(ctx)
	return func() {
		once.Do(func() { m.EndCriticalOperation(detached) })
	}
}

func (m *Manager) EndCriticalOperation(ctx context.Context) {
	changed := false
	_, err := m.store.Update(ctx, func(s *State) bool {
		changed = s.CriticalOperationActive
		s.CriticalOperationActive = false
		return changed
	})
	if err != nil {
		m.log.Error(ctx, "critical operation flag not persisted", "error", err)
	}
	if changed {
		m.record(ctx, EventCriticalOpFinished, nil)
	}
}

// UpdateSettings changes the user settings. The lock must be open.
func (m *Manager) UpdateSettings(ctx context.Context, s Settings) error {
	if s.IdleTimeoutMinutes <= 0 {
		return fmt.Errorf("%w: idle timeout must be positive", ErrInvalidSettings)
	}
	if m.IsUnlockRequired(false) {
		return ErrNotUnlocked
	}
	if s.BiometricEnabled && (m.bio == nil || !m.bio.IsAvailable(ctx)) {
		return ErrBiometricUnavailable
	}

	_, err := m.store.Update(ctx, func(st *State) bool {
		if st.Settings() == s {
			return false
		}
		st.BiometricEnabled = s.BiometricEnabled
		st.RequireOnSensitiveActions = s.RequireOnSensitiveActions
		st.IdleTimeoutMinutes = s.IdleTimeoutMinutes
		return true
	})
	if err != nil {
		return err
	}

	m.record(ctx, EventSettingsUpdated, map[string]string{
		"biometric":    strconv.FormatBool(s.BiometricEnabled),
		"sensitive":    strconv.FormatBool(s.RequireOnSensitiveActions),
		"idle_minutes": strconv.Itoa(s.IdleTimeoutMinutes),
	})
	return nil
}

// ResetAfterRecovery installs newPIN and clears the throttle once the caller
// has verified the principal through the recovery flow. The lock stays
// closed; the user unlocks with the new PIN.
func (m *Manager) ResetAfterRecovery(ctx context.Context, newPIN string) error {
	if err := pinhash.ValidateFormat(newPIN); err != nil {
		return err
	}
	if m.closed.Load() {
		return ErrClosed
	}

	m.attemptMu.Lock()
	defer m.attemptMu.Unlock()

	if err := m.installPIN(ctx, newPIN); err != nil {
		return err
	}

	_, err := m.store.Update(ctx, func(s *State) bool {
		s.FailedAttempts = 0
		s.LockedUntil = nil
		s.IsUnlocked = false
		s.LastUnlockAt = nil
		return true
	})
	if err != nil {
		return &ServiceUnavailableError{Cause: err}
	}

	m.record(ctx, EventRecoveryCompleted, nil)
	m.log.Info(ctx, "throttle reset after recovery")
	return nil
}

// Reconcile merges the remote lock record into the local state.
func (m *Manager) Reconcile(ctx context.Context) error {
	if m.principal == "" || m.remoteRecords == nil {
		return nil
	}

	remote, err := m.remoteRecords.Get(ctx, m.principal)
	if err != nil {
		return fmt.Errorf("get lock record: %w", err)
	}
	if remote == nil {
		m.store.Resync()
		return nil
	}

	now := m.now()
	st, err := m.store.Update(ctx, func(s *State) bool {
		before := s.clone()
		s.merge(*remote, now, m.policy)
		return !sameRecord(before.RecordFields(), s.RecordFields()) || before.IsUnlocked != s.IsUnlocked
	})
	// the remote copy missed local changes, e.g. an unlock made offline
	if !sameRecord(st.RecordFields(), *remote) {
		m.store.Resync()
	}
	return err
}

// SyncPendingPIN uploads a PIN stored on the device before the principal was
// known. A remote record always wins over the local copy.
func (m *Manager) SyncPendingPIN(ctx context.Context) error {
	if m.principal == "" || m.remoteCreds == nil || m.localOnly == nil {
		return nil
	}

	local, err := m.localOnly.Get(ctx, m.principal)
	if err != nil {
		return fmt.Errorf("read local-only pin: %w", err)
	}
	if local == nil {
		return nil
	}

	remote, err := m.remoteCreds.Get(ctx, m.principal)
	if err != nil {
		return fmt.Errorf("read remote pin: %w", err)
	}
	if remote == nil {
		upload := m.withRetry(func(ctx context.Context) error {
			return m.remoteCreds.Upsert(ctx, m.principal, *local)
		})
		if err := upload(ctx); err != nil {
			return fmt.Errorf("upload local-only pin: %w", err)
		}
		m.record(ctx, EventPINSynced, map[string]string{"store": "local_only"})
	}

	if err := m.localOnly.Delete(ctx, m.principal); err != nil {
		return fmt.Errorf("retire local-only pin: %w", err)
	}
	return nil
}

// Logout locks, stops background work and forgets the local state. A PIN
// still waiting in the local-only store is dropped too, so the next user of
// the device cannot inherit it.
func (m *Manager) Logout(ctx context.Context) error {
	lockErr := m.lock(ctx, "logout")
	m.Close()

	m.sessionMu.Lock()
	m.session = nil
	m.sessionMu.Unlock()

	if err := m.store.Reset(ctx); err != nil {
		return err
	}
	if m.localOnly != nil {
		if err := m.localOnly.Delete(ctx, m.principal); err != nil {
			return fmt.Errorf("forget local-only pin: %w", err)
		}
	}
	if lockErr != nil {
		m.log.Warn(ctx, "lock before logout not persisted", "error", lockErr)
	}
	return nil
}

// CurrentState is a read-only view for rendering the lock screen.
func (m *Manager) CurrentState() Snapshot {
	st := m.store.Snapshot()
	now := m.now()

	snap := Snapshot{
		Principal:               m.principal,
		FailedAttempts:          st.FailedAttempts,
		RemainingAttempts:       m.policy.RemainingAttempts(st.FailedAttempts),
		CooldownRemaining:       m.policy.CooldownRemaining(st, now),
		SecurityAlert:           m.policy.SecurityAlertTriggered(st.FailedAttempts),
		LastUnlockAt:            st.LastUnlockAt,
		CriticalOperationActive: st.CriticalOperationActive,
		Settings:                st.Settings(),
	}

	switch {
	case snap.CooldownRemaining > 0:
		snap.Phase = PhaseCooldownLocked
	case st.IsUnlocked:
		snap.Phase = PhaseUnlocked
	default:
		snap.Phase = PhaseLocked
	}

	if snap.Phase == PhaseUnlocked && st.LastUnlockAt != nil {
		if left := st.idleTimeout() - now.Sub(*st.LastUnlockAt); left > 0 {
			snap.IdleRemaining = left
		}
	}
	return snap
}
