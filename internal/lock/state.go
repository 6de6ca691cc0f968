package lock

import "time"

const (
	DefaultIdleTimeoutMinutes = 5
	SensitiveActionRecency    = 60 * time.Second
)

// State is the persisted lock state of one principal.
type State struct {
	IsUnlocked                bool       `json:"is_unlocked"`
	LastUnlockAt              *time.Time `json:"last_unlock_at,omitempty"`
	FailedAttempts            int        `json:"failed_attempts"`
	LockedUntil               *time.Time `json:"locked_until,omitempty"`
	BiometricEnabled          bool       `json:"biometric_enabled"`
	RequireOnSensitiveActions bool       `json:"require_on_sensitive_actions"`
	IdleTimeoutMinutes        int        `json:"idle_timeout_minutes"`
	CriticalOperationActive   bool       `json:"critical_operation_active"`
	UpdatedAt                 time.Time  `json:"updated_at"`
}

func DefaultState() State {
	return State{
		RequireOnSensitiveActions: true,
		IdleTimeoutMinutes:        DefaultIdleTimeoutMinutes,
	}
}

// normalize repairs values that cannot be trusted after a reload.
// A critical operation never survives the process that started it.
func (s *State) normalize() {
	if s.FailedAttempts < 0 {
		s.FailedAttempts = 0
	}
	if s.IdleTimeoutMinutes <= 0 {
		s.IdleTimeoutMinutes = DefaultIdleTimeoutMinutes
	}
	if !s.IsUnlocked {
		s.LastUnlockAt = nil
	}
	s.CriticalOperationActive = false
}

func (s State) clone() State {
	c := s
	if s.LastUnlockAt != nil {
		t := *s.LastUnlockAt
		c.LastUnlockAt = &t
	}
	if s.LockedUntil != nil {
		t := *s.LockedUntil
		c.LockedUntil = &t
	}
	return c
}

func (s State) idleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMinutes) * time.Minute
}

func (s State) Settings() Settings {
	return Settings{
		BiometricEnabled:          s.BiometricEnabled,
		RequireOnSensitiveActions: s.RequireOnSensitiveActions,
		IdleTimeoutMinutes:        s.IdleTimeoutMinutes,
	}
}

// Settings are the user-editable parts of State.
type Settings struct {
	BiometricEnabled          bool
	RequireOnSensitiveActions bool
	IdleTimeoutMinutes        int
}

// RecordFields is the part of State mirrored to the remote lock record.
// IsUnlocked is device-local and never leaves the device.
type RecordFields struct {
	FailedAttempts            int
	LockedUntil               *time.Time
	LastUnlockAt              *time.Time
	BiometricEnabled          bool
	RequireOnSensitiveActions bool
	IdleTimeoutMinutes        int
	UpdatedAt                 time.Time
}

func (s State) RecordFields() RecordFields {
	c := s.clone()
	return RecordFields{
		FailedAttempts:            c.FailedAttempts,
		LockedUntil:               c.LockedUntil,
		LastUnlockAt:              c.LastUnlockAt,
		BiometricEnabled:          c.BiometricEnabled,
		RequireOnSensitiveActions: c.RequireOnSensitiveActions,
		IdleTimeoutMinutes:        c.IdleTimeoutMinutes,
		UpdatedAt:                 c.UpdatedAt,
	}
}

// sameRecord compares mirrored fields, ignoring UpdatedAt.
func sameRecord(a, b RecordFields) bool {
	return a.FailedAttempts == b.FailedAttempts &&
		timePtrEqual(a.LockedUntil, b.LockedUntil) &&
		timePtrEqual(a.LastUnlockAt, b.LastUnlockAt) &&
		a.BiometricEnabled == b.BiometricEnabled &&
		a.RequireOnSensitiveActions == b.RequireOnSensitiveActions &&
		a.IdleTimeoutMinutes == b.IdleTimeoutMinutes
}

// merge folds a remote lock record into the local state. A record older
// than the local state is ignored: local changes since then, a successful
// unlock included, already supersede it. Otherwise counters merge
// conservatively and settings come from the remote side when it is strictly
// newer.
func (s *State) merge(r RecordFields, now time.Time, p Policy) {
	if r.UpdatedAt.Before(s.UpdatedAt) {
		return
	}
	if r.FailedAttempts > s.FailedAttempts {
		s.FailedAttempts = r.FailedAttempts
	}
	if r.LockedUntil != nil && (s.LockedUntil == nil || r.LockedUntil.After(*s.LockedUntil)) {
		t := *r.LockedUntil
		s.LockedUntil = &t
	}
	if r.UpdatedAt.After(s.UpdatedAt) {
		s.BiometricEnabled = r.BiometricEnabled
		s.RequireOnSensitiveActions = r.RequireOnSensitiveActions
		if r.IdleTimeoutMinutes > 0 {
			s.IdleTimeoutMinutes = r.IdleTimeoutMinutes
		}
	}
	if p.IsLockedOut(*s, now) || p.SecurityAlertTriggered(s.FailedAttempts) {
		s.IsUnlocked = false
		s.LastUnlockAt = nil
	}
}

// relaxesGuards reports whether moving from old to next grants access or
// weakens the brute-force guards. Such transitions must reach disk first.
func relaxesGuards(old, next State) bool {
	if !old.IsUnlocked && next.IsUnlocked {
		return true
	}
	if next.FailedAttempts < old.FailedAttempts {
		return true
	}
	if old.LockedUntil != nil && (next.LockedUntil == nil || next.LockedUntil.Before(*old.LockedUntil)) {
		return true
	}
	return false
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Phase is the coarse lock state shown to the user.
type Phase int

const (
	PhaseLocked Phase = iota
	PhaseUnlocked
	PhaseCooldownLocked
)

func (p Phase) String() string {
	switch p {
	case PhaseUnlocked:
		return "unlocked"
	case PhaseCooldownLocked:
		return "cooldown"
	default:
		return "locked"
	}
}

// Method is how an unlock was attempted.
type Method string

const (
	MethodPIN       Method = "pin"
	MethodBiometric Method = "biometric"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// AttemptEvent describes a single unlock attempt. It is folded into the
// counters and the audit trail and not stored on its own.
type AttemptEvent struct {
	Outcome Outcome
	Method  Method
	At      time.Time
}

// Snapshot is a read-only view of the lock for rendering.
type Snapshot struct {
	Principal               string
	Phase                   Phase
	FailedAttempts          int
	RemainingAttempts       int
	CooldownRemaining       time.Duration
	SecurityAlert           bool
	IdleRemaining           time.Duration
	LastUnlockAt            *time.Time
	CriticalOperationActive bool
	Settings                Settings
}
