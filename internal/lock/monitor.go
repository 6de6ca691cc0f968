package lock

import (
	"context"
	"time"
)

// runMonitor polls the lock state every interval until ctx is done. Polling
// rather than timers keeps it correct across sleep and clock changes.
func (m *Manager) runMonitor(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs one monitor pass: it locks an idle session and refreshes the
// network session when it is about to expire. It does nothing after Close
// or while a critical operation is active.
func (m *Manager) Tick(ctx context.Context) {
	if m.closed.Load() {
		return
	}

	st := m.store.Snapshot()
	if st.CriticalOperationActive {
		return
	}

	now := m.now()
	if st.IsUnlocked && st.LastUnlockAt != nil && now.Sub(*st.LastUnlockAt) > st.idleTimeout() {
		m.lockIfIdle(ctx, now)
	}

	if m.sessionNeedsRefresh(now) {
		m.refreshSessionAsync()
	}
}

// lockIfIdle re-checks the idle condition under the store mutex so that an
// unlock racing with the tick is not undone.
func (m *Manager) lockIfIdle(ctx context.Context, now time.Time) {
	locked := false
	_, err := m.store.Update(ctx, func(s *State) bool {
		if !s.IsUnlocked || s.CriticalOperationActive || s.LastUnlockAt == nil {
			return false
		}
		if now.Sub(*s.LastUnlockAt) <= s.idleTimeout() {
			return false
		}
		s.IsUnlocked = false
		s.LastUnlockAt = nil
		locked = true
		return true
	})
	if err != nil {
		m.log.Error(ctx, "idle lock not persisted", "error", err)
	}
	if !locked {
		return
	}

	m.record(ctx, EventLocked, map[string]string{"reason": "idle"})
	m.log.Info(ctx, "locked", "reason", "idle")
	if m.onLock != nil {
		m.onLock("idle")
	}
}

func (m *Manager) sessionNeedsRefresh(now time.Time) bool {
	if m.sessions == nil {
		return false
	}
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	return m.session == nil || m.session.ExpiresAt.Sub(now) < m.refreshMargin
}

// Session returns the last session handle obtained, if any.
func (m *Manager) Session() (SessionHandle, bool) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	if m.session == nil {
		return SessionHandle{}, false
	}
	return *m.session, true
}

// refreshSessionAsync refreshes the network session in the background. At
// most one refresh is in flight; its outcome never touches the lock state.
func (m *Manager) refreshSessionAsync() {
	if m.sessions == nil || m.closed.Load() {
		return
	}
	if !m.refreshing.CompareAndSwap(false, true) {
		return
	}

	m.background("session refresh", func(ctx context.Context) error {
		defer m.refreshing.Store(false)

		h, err := m.sessions.Refresh(ctx)
		if err != nil {
			return err
		}
		m.sessionMu.Lock()
		m.session = &h
		m.sessionMu.Unlock()
		m.log.Debug(ctx, "session refreshed", "expires_at", h.ExpiresAt)
		return nil
	})
}
