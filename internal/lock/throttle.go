package lock

import "time"

const (
	DefaultMaxAttempts    = 5
	DefaultCooldown       = 30 * time.Second
	DefaultAlertThreshold = 10
)

// Policy is the brute-force throttle. All methods are pure.
//
// Every failure increments the counter. Once the counter reaches MaxAttempts
// each further failure re-arms a Cooldown window starting at the failure.
// Expiry of the window does not reset the counter; only a successful unlock
// or a completed recovery does. At AlertThreshold the principal is pushed to
// the recovery flow.
type Policy struct {
	MaxAttempts    int
	Cooldown       time.Duration
	AlertThreshold int
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    DefaultMaxAttempts,
		Cooldown:       DefaultCooldown,
		AlertThreshold: DefaultAlertThreshold,
	}
}

// IsLockedOut is true while now is strictly before LockedUntil.
func (p Policy) IsLockedOut(s State, now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// CooldownRemaining is zero when no cooldown is active.
func (p Policy) CooldownRemaining(s State, now time.Time) time.Duration {
	if !p.IsLockedOut(s, now) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}

// NextOnFailure returns the counters after one more failed attempt at now.
func (p Policy) NextOnFailure(s State, now time.Time) (int, *time.Time) {
	failed := s.FailedAttempts + 1
	if failed >= p.MaxAttempts {
		until := now.Add(p.Cooldown)
		return failed, &until
	}
	return failed, nil
}

func (p Policy) SecurityAlertTriggered(failed int) bool {
	return failed >= p.AlertThreshold
}

// RemainingAttempts counts failures left before the next cooldown, or before
// the alert once cooldowns are in effect.
func (p Policy) RemainingAttempts(failed int) int {
	switch {
	case failed < p.MaxAttempts:
		return p.MaxAttempts - failed
	case failed < p.AlertThreshold:
		return p.AlertThreshold - failed
	default:
		return 0
	}
}
