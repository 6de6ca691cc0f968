package lock

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/applock/internal/logging"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultMirrorRetries   = 5
	DefaultMirrorRetryBase = 200 * time.Millisecond
	mirrorRetryCap         = 10 * time.Second
	mirrorFlushTimeout     = 3 * time.Second
)

// Mirror writes lock records to the remote store in the background. Only
// the latest pending record is kept, so a burst of changes costs one write.
type Mirror struct {
	principal string
	remote    LockRecordStore
	retries   uint64
	base      time.Duration
	log       logging.Logger

	mu      sync.Mutex
	pending *RecordFields
	wake    chan struct{}
}

func NewMirror(principal string, remote LockRecordStore, retries uint64, base time.Duration, log logging.Logger) *Mirror {
	if base <= 0 {
		base = DefaultMirrorRetryBase
	}
	return &Mirror{
		principal: principal,
		remote:    remote,
		retries:   retries,
		base:      base,
		log:       log.With("module", "lock.mirror"),
		wake:      make(chan struct{}, 1),
	}
}

// Push schedules f for upload, replacing any record not yet written.
func (m *Mirror) Push(f RecordFields) {
	m.mu.Lock()
	m.pending = &f
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Mirror) take() *RecordFields {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.pending
	m.pending = nil
	return f
}

// requeue puts f back unless something newer is already pending.
func (m *Mirror) requeue(f RecordFields) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		m.pending = &f
	}
}

// Run uploads pending records until ctx is done, then makes one last
// attempt to flush what is still pending.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-m.wake:
			if f := m.take(); f != nil {
				m.write(ctx, *f)
			}
		case <-ctx.Done():
			if f := m.take(); f != nil {
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorFlushTimeout)
				if err := m.remote.Upsert(flushCtx, m.principal, *f); err != nil {
					m.log.Warn(flushCtx, "final lock record flush failed", "principal", m.principal, "error", err)
				}
				cancel()
			}
			return
		}
	}
}

func (m *Mirror) write(ctx context.Context, f RecordFields) {
	b := retry.WithMaxRetries(m.retries, retry.WithCappedDuration(mirrorRetryCap, retry.NewExponential(m.base)))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := m.remote.Upsert(ctx, m.principal, f); err != nil {
			m.log.Debug(ctx, "lock record upload failed, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		// kept for the next push or the final flush unless a newer record
		// is already pending
		m.requeue(f)
		if ctx.Err() == nil {
			m.log.Warn(ctx, "lock record not mirrored", "principal", m.principal, "error", err)
		}
	}
}
