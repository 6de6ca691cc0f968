package lock

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/applock/internal/pinhash"
)

var (
	ErrInvalidFormat = pinhash.ErrInvalidFormat

	ErrSecurityAlert           = errors.New("too many failed attempts, recovery required")
	ErrBiometricUnavailable    = errors.New("biometric authentication unavailable")
	ErrBiometricDisabled       = errors.New("biometric unlock disabled")
	ErrBiometricFailed         = errors.New("biometric verification failed")
	ErrServiceUnavailable      = errors.New("cannot verify credential right now")
	ErrCredentialNotConfigured = errors.New("no pin configured")
	ErrNotUnlocked             = errors.New("unlock required")
	ErrInvalidSettings         = errors.New("invalid lock settings")
	ErrClosed                  = errors.New("lock manager closed")
	ErrPersistence             = errors.New("lock state not persisted")
)

// LockedOutError is returned without verifying anything while a cooldown
// is active.
type LockedOutError struct {
	Remaining time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("locked out, try again in %ds", seconds(e.Remaining))
}

// AlreadyLockedOutError is returned when an attempt that passed the first
// cooldown check finds one armed by a concurrent attempt. It is not counted.
type AlreadyLockedOutError struct {
	Remaining time.Duration
}

func (e *AlreadyLockedOutError) Error() string {
	return fmt.Sprintf("already locked out, try again in %ds", seconds(e.Remaining))
}

// IncorrectCredentialError is a counted failure. Cooldown is non-zero when
// this failure armed one.
type IncorrectCredentialError struct {
	RemainingAttempts int
	Cooldown          time.Duration
}

func (e *IncorrectCredentialError) Error() string {
	if e.Cooldown > 0 {
		return fmt.Sprintf("incorrect pin, locked for %ds", seconds(e.Cooldown))
	}
	return fmt.Sprintf("incorrect pin, %d attempts left", e.RemainingAttempts)
}

type SecurityAlertError struct {
	FailedAttempts int
}

func (e *SecurityAlertError) Error() string {
	return fmt.Sprintf("%d failed attempts, recovery required", e.FailedAttempts)
}

func (e *SecurityAlertError) Is(target error) bool {
	return target == ErrSecurityAlert
}

// ServiceUnavailableError means the credential could not be checked. The
// attempt is neither granted nor counted.
type ServiceUnavailableError struct {
	Cause error
}

func (e *ServiceUnavailableError) Error() string {
	if e.Cause == nil {
		return ErrServiceUnavailable.Error()
	}
	return ErrServiceUnavailable.Error() + ": " + e.Cause.Error()
}

func (e *ServiceUnavailableError) Is(target error) bool {
	return target == ErrServiceUnavailable
}

func (e *ServiceUnavailableError) Unwrap() error {
	return e.Cause
}

// seconds rounds up so that a user never waits longer than announced.
func seconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
