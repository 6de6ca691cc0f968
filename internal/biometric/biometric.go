// Package biometric abstracts the platform biometric prompt (fingerprint,
// face) behind a small capability interface.
package biometric

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/applock/internal/logging"
)

var (
	ErrNotAvailable = errors.New("biometric authentication not available")
	ErrRejected     = errors.New("biometric not recognised")
	ErrCancelled    = errors.New("biometric prompt cancelled")
)

const DefaultPromptTimeout = time.Minute

// Capability is a biometric sensor. Authenticate blocks until the user
// answers the prompt or ctx is done; a nil error means the user was verified.
type Capability interface {
	IsAvailable(ctx context.Context) bool
	Authenticate(ctx context.Context, prompt string) error
}

// Unavailable is the capability of a device without a sensor.
type Unavailable struct{}

func (Unavailable) IsAvailable(context.Context) bool { return false }

func (Unavailable) Authenticate(context.Context, string) error { return ErrNotAvailable }

// Adapter picks the first available capability from an ordered list, e.g.
// a native sensor followed by a platform fallback, and bounds each prompt
// with a timeout.
type Adapter struct {
	caps    []Capability
	timeout time.Duration
	log     logging.Logger
}

func NewAdapter(log logging.Logger, timeout time.Duration, caps ...Capability) *Adapter {
	if timeout <= 0 {
		timeout = DefaultPromptTimeout
	}
	return &Adapter{caps: caps, timeout: timeout, log: log.With("module", "biometric")}
}

func (a *Adapter) pick(ctx context.Context) Capability {
	for _, c := range a.caps {
		if c != nil && c.IsAvailable(ctx) {
			return c
		}
	}
	return nil
}

func (a *Adapter) IsAvailable(ctx context.Context) bool {
	return a.pick(ctx) != nil
}

func (a *Adapter) Authenticate(ctx context.Context, prompt string) error {
	c := a.pick(ctx)
	if c == nil {
		return ErrNotAvailable
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	err := c.Authenticate(ctx, prompt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		a.log.Info(ctx, "biometric prompt timed out or cancelled")
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	default:
		a.log.Debug(ctx, "biometric prompt failed", "error", err)
		return err
	}
}
