package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/applock/internal/logging"
)

// Store owns the in-memory State of one principal. Every mutation goes
// through Update, which persists locally before the change becomes visible
// and hands mirrored fields to the remote mirror.
type Store struct {
	mu     sync.Mutex
	state  State
	local  LocalPersistence
	mirror *Mirror
	now    func() time.Time
	log    logging.Logger
}

func NewStore(local LocalPersistence, mirror *Mirror, now func() time.Time, log logging.Logger) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		state:  DefaultState(),
		local:  local,
		mirror: mirror,
		now:    now,
		log:    log.With("module", "lock.store"),
	}
}

// Load replaces the in-memory state with the persisted one, or with
// defaults when nothing is persisted yet.
func (s *Store) Load(ctx context.Context) (State, error) {
	st, err := s.local.Load(ctx)
	if err != nil {
		return State{}, fmt.Errorf("load lock state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st == nil {
		s.state = DefaultState()
		s.log.Debug(ctx, "no persisted lock state, using defaults")
	} else {
		s.state = st.clone()
		s.state.normalize()
	}
	return s.state.clone(), nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Update applies fn to a copy of the state under the store mutex. When fn
// returns false nothing changes. A transition that relaxes the guards is
// dropped if it cannot be saved. Any other transition is kept in memory even
// when the save fails; the error wraps ErrPersistence either way.
func (s *Store) Update(ctx context.Context, fn func(st *State) bool) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	next := old.clone()
	if !fn(&next) {
		return old.clone(), nil
	}
	next.UpdatedAt = s.now()

	if err := s.local.Save(ctx, next); err != nil {
		if relaxesGuards(old, next) {
			s.log.Error(ctx, "lock state save failed, transition dropped", "error", err)
			return old.clone(), fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		s.log.Error(ctx, "lock state save failed, kept in memory", "error", err)
		s.state = next
		s.push(old, next)
		return next.clone(), fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.state = next
	s.push(old, next)
	return next.clone(), nil
}

// Reset clears the persisted state and goes back to defaults in memory.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = DefaultState()
	if err := s.local.Clear(ctx); err != nil {
		return fmt.Errorf("clear lock state: %w", err)
	}
	return nil
}

// Resync queues the current state for the remote mirror.
func (s *Store) Resync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mirror != nil {
		s.mirror.Push(s.state.RecordFields())
	}
}

func (s *Store) push(old, next State) {
	if s.mirror == nil {
		return
	}
	nf := next.RecordFields()
	if sameRecord(old.RecordFields(), nf) {
		return
	}
	s.mirror.Push(nf)
}
