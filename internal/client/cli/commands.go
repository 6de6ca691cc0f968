package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/applock/internal/lock"
)

// getPIN is an indirection over GetPIN so tests can feed PINs.
var getPIN = GetPIN

func (a *App) Status(ctx context.Context) error {
	snap := a.manager.CurrentState()

	a.printf("State:              %s\n", snap.Phase)
	if snap.Principal != "" {
		a.printf("Principal:          %s\n", snap.Principal)
	}
	a.printf("Failed attempts:    %d (%d before cooldown)\n", snap.FailedAttempts, snap.RemainingAttempts)
	if snap.CooldownRemaining > 0 {
		a.printf("Cooldown:           %s\n", roundUp(snap.CooldownRemaining))
	}
	if snap.SecurityAlert {
		a.println("Security alert:     recovery required")
	}
	if snap.Phase == lock.PhaseUnlocked {
		a.printf("Idle lock in:       %s\n", roundUp(snap.IdleRemaining))
	}
	if snap.CriticalOperationActive {
		a.println("Critical operation: active")
	}
	a.printf("Biometric unlock:   %s\n", onOff(snap.Settings.BiometricEnabled))
	a.printf("Sensitive re-auth:  %s\n", onOff(snap.Settings.RequireOnSensitiveActions))
	a.printf("Idle timeout:       %d min\n", snap.Settings.IdleTimeoutMinutes)
	return nil
}

func (a *App) SetPIN(ctx context.Context) error {
	pin, err := GetNewPIN(a.out)
	if err != nil {
		return a.report(err)
	}
	if err := a.manager.SetPIN(ctx, pin); err != nil {
		return a.report(err)
	}
	a.println("PIN saved.")
	return nil
}

func (a *App) Unlock(ctx context.Context) error {
	pin, err := getPIN(a.out, "PIN")
	if err != nil {
		return a.report(err)
	}
	if _, err := a.manager.UnlockWithPIN(ctx, pin); err != nil {
		return a.report(err)
	}
	a.println("Unlocked.")
	return nil
}

func (a *App) Biometric(ctx context.Context) error {
	if _, err := a.manager.UnlockWithBiometric(ctx); err != nil {
		return a.report(err)
	}
	a.println("Unlocked.")
	return nil
}

func (a *App) Lock(ctx context.Context) error {
	if err := a.manager.Lock(ctx); err != nil {
		return a.report(err)
	}
	return nil
}

func (a *App) Sensitive(ctx context.Context) error {
	if a.manager.IsUnlockRequired(true) {
		return a.report(lock.ErrNotUnlocked)
	}
	a.println("Sensitive action allowed.")
	return nil
}

func (a *App) Critical(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return a.report(errUsage("critical start|end"))
	}

	a.criticalMu.Lock()
	defer a.criticalMu.Unlock()

	switch args[0] {
	case "start":
		if a.release != nil {
			a.println("Critical operation already running.")
			return nil
		}
		a.release = a.manager.StartCriticalOperation(ctx)
		a.println("Idle lock suspended.")
	case "end":
		if a.release != nil {
			a.release()
			a.release = nil
		} else {
			a.manager.EndCriticalOperation(ctx)
		}
		a.println("Idle lock resumed.")
	default:
		return a.report(errUsage("critical start|end"))
	}
	return nil
}

func (a *App) Settings(ctx context.Context, args []string) error {
	const usage = "settings bio on|off | settings sensitive on|off | settings idle <minutes>"
	if len(args) != 2 {
		return a.report(errUsage(usage))
	}

	s := a.manager.CurrentState().Settings
	switch args[0] {
	case "bio":
		v, err := parseOnOff(args[1])
		if err != nil {
			return a.report(errUsage(usage))
		}
		s.BiometricEnabled = v
	case "sensitive":
		v, err := parseOnOff(args[1])
		if err != nil {
			return a.report(errUsage(usage))
		}
		s.RequireOnSensitiveActions = v
	case "idle":
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return a.report(errUsage(usage))
		}
		s.IdleTimeoutMinutes = n
	default:
		return a.report(errUsage(usage))
	}

	if err := a.manager.UpdateSettings(ctx, s); err != nil {
		return a.report(err)
	}
	a.println("Settings saved.")
	return nil
}

// Recover installs a new PIN once the account has been recovered on the
// server side. The lock stays closed.
func (a *App) Recover(ctx context.Context) error {
	pin, err := GetNewPIN(a.out)
	if err != nil {
		return a.report(err)
	}
	if err := a.manager.ResetAfterRecovery(ctx, pin); err != nil {
		return a.report(err)
	}
	a.println("PIN reset. Unlock with the new PIN.")
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	if err := a.manager.Reconcile(ctx); err != nil {
		return a.report(err)
	}
	if err := a.manager.SyncPendingPIN(ctx); err != nil {
		return a.report(err)
	}
	a.println("In sync.")
	return nil
}

// Logout locks, forgets the local lock state and the saved session.
func (a *App) Logout(ctx context.Context) error {
	a.criticalMu.Lock()
	a.release = nil
	a.criticalMu.Unlock()

	if err := a.manager.Logout(ctx); err != nil {
		return a.report(err)
	}
	if a.cfg.PrincipalID != "" {
		if err := a.repos.Sessions.Delete(ctx, a.cfg.PrincipalID); err != nil {
			a.log.Warn(ctx, "saved session not removed", "error", err)
		}
	}
	return nil
}

type errUsage string

func (e errUsage) Error() string { return "usage: " + string(e) }

// report prints a user-facing line for err and returns it unchanged.
func (a *App) report(err error) error {
	a.println(describe(err))
	return err
}

func describe(err error) string {
	var (
		locked    *lock.LockedOutError
		already   *lock.AlreadyLockedOutError
		incorrect *lock.IncorrectCredentialError
		usage     errUsage
	)

	switch {
	case errors.As(err, &usage):
		return "Usage: " + string(usage)
	case errors.As(err, &locked):
		return fmt.Sprintf("Too many attempts. Try again in %s.", roundUp(locked.Remaining))
	case errors.As(err, &already):
		return fmt.Sprintf("Too many attempts. Try again in %s.", roundUp(already.Remaining))
	case errors.As(err, &incorrect):
		if incorrect.Cooldown > 0 {
			return fmt.Sprintf("Incorrect PIN. Locked for %s.", roundUp(incorrect.Cooldown))
		}
		return fmt.Sprintf("Incorrect PIN. %d attempts left.", incorrect.RemainingAttempts)
	case errors.Is(err, lock.ErrSecurityAlert):
		return "Too many failed attempts. Recover your account, then run 'recover'."
	case errors.Is(err, lock.ErrCredentialNotConfigured):
		return "No PIN is set. Run 'setpin' first."
	case errors.Is(err, lock.ErrServiceUnavailable):
		return "The PIN cannot be checked right now. Try again later."
	case errors.Is(err, lock.ErrInvalidFormat):
		return "The PIN must be exactly 6 digits."
	case errors.Is(err, errPINMismatch):
		return "The PINs do not match."
	case errors.Is(err, lock.ErrNotUnlocked):
		return "Unlock first."
	case errors.Is(err, lock.ErrBiometricDisabled):
		return "Biometric unlock is off. Enable it with 'settings bio on'."
	case errors.Is(err, lock.ErrBiometricUnavailable):
		return "Biometric authentication is not available on this device."
	case errors.Is(err, lock.ErrBiometricFailed):
		return "Biometric check failed. Use your PIN."
	case errors.Is(err, lock.ErrInvalidSettings):
		return "Invalid settings: the idle timeout must be at least one minute."
	case errors.Is(err, lock.ErrClosed):
		return "Session ended. Restart applock."
	default:
		return "Error: " + err.Error()
	}
}

// roundUp shows whole seconds, never less than what is left.
func roundUp(d time.Duration) time.Duration {
	if r := d % time.Second; r > 0 {
		d += time.Second - r
	}
	return d
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", s)
}
