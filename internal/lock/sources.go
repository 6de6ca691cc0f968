package lock

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/applock/internal/pinhash"
)

type Verdict int

const (
	NotFound Verdict = iota
	Matched
	Mismatched
)

func (v Verdict) String() string {
	switch v {
	case Matched:
		return "matched"
	case Mismatched:
		return "mismatched"
	default:
		return "not_found"
	}
}

// Check is the answer of one CredentialSource. FollowUp, when set, moves or
// upgrades the credential after a successful unlock and runs in the
// background.
type Check struct {
	Verdict      Verdict
	NeedsUpgrade bool
	FollowUp     func(ctx context.Context) error
}

// CredentialSource is one place a PIN may be stored. Sources are asked in
// priority order and the first Matched or Mismatched answer wins, unless a
// source before it could not answer.
type CredentialSource interface {
	Name() string
	Check(ctx context.Context, principal, pin string) (Check, error)
}

// remoteSource checks the remote record. The record is fetched once per
// attempt whatever scheme it was written under; an outdated one is rewritten
// under the current scheme after a match.
type remoteSource struct {
	store  CredentialStore
	hasher *pinhash.Hasher
	events eventRecorder
}

func newRemoteSource(store CredentialStore, hasher *pinhash.Hasher, events eventRecorder) CredentialSource {
	return &remoteSource{store: store, hasher: hasher, events: events}
}

func (s *remoteSource) Name() string { return "remote" }

func (s *remoteSource) Check(ctx context.Context, principal, pin string) (Check, error) {
	if principal == "" || s.store == nil {
		return Check{}, nil
	}

	rec, err := s.store.Get(ctx, principal)
	if err != nil {
		return Check{}, err
	}
	if rec == nil {
		return Check{}, nil
	}

	res, err := s.hasher.Verify(pin, *rec)
	if err != nil {
		return Check{}, err
	}
	if !res.Matched {
		return Check{Verdict: Mismatched}, nil
	}

	c := Check{Verdict: Matched, NeedsUpgrade: res.NeedsUpgrade}
	if res.NeedsUpgrade {
		from := rec.SchemeVersion
		c.FollowUp = func(ctx context.Context) error {
			upgraded, err := s.hasher.NewRecord(pin)
			if err != nil {
				return err
			}
			if err := s.store.Upsert(ctx, principal, upgraded); err != nil {
				return fmt.Errorf("upgrade remote pin: %w", err)
			}
			s.events.record(ctx, EventPINUpgraded, map[string]string{
				"from_scheme": fmt.Sprint(from),
				"to_scheme":   fmt.Sprint(upgraded.SchemeVersion),
			})
			return nil
		}
	}
	return c, nil
}

// localSource checks a device-local store. After a match the credential is
// moved to the remote store and the local copy retired. Without a remote
// store an outdated record is upgraded in place.
type localSource struct {
	name   string
	local  LocalCredentialStore
	remote CredentialStore
	hasher *pinhash.Hasher
	events eventRecorder
	event  string
	global bool
}

// newLegacyLocalSource checks the per-principal store kept by older builds.
func newLegacyLocalSource(local LocalCredentialStore, remote CredentialStore, hasher *pinhash.Hasher, events eventRecorder) CredentialSource {
	return &localSource{name: "legacy_local", local: local, remote: remote, hasher: hasher, events: events, event: EventPINMigrated}
}

// newLocalOnlySource checks the PIN stored on the device before the
// principal was known.
func newLocalOnlySource(local LocalCredentialStore, remote CredentialStore, hasher *pinhash.Hasher, events eventRecorder) CredentialSource {
	return &localSource{name: "local_only", local: local, remote: remote, hasher: hasher, events: events, event: EventPINSynced, global: true}
}

func (s *localSource) Name() string { return s.name }

func (s *localSource) Check(ctx context.Context, principal, pin string) (Check, error) {
	if s.local == nil || (principal == "" && !s.global) {
		return Check{}, nil
	}

	rec, err := s.local.Get(ctx, principal)
	if err != nil {
		return Check{}, err
	}
	if rec == nil {
		return Check{}, nil
	}

	res, err := s.hasher.Verify(pin, *rec)
	if err != nil {
		return Check{}, err
	}
	if !res.Matched {
		return Check{Verdict: Mismatched}, nil
	}

	c := Check{Verdict: Matched, NeedsUpgrade: res.NeedsUpgrade}
	switch {
	case principal != "" && s.remote != nil:
		c.FollowUp = func(ctx context.Context) error {
			return s.moveToRemote(ctx, principal, pin)
		}
	case res.NeedsUpgrade:
		c.FollowUp = func(ctx context.Context) error {
			upgraded, err := s.hasher.NewRecord(pin)
			if err != nil {
				return err
			}
			if err := s.local.Upsert(ctx, principal, upgraded); err != nil {
				return fmt.Errorf("upgrade %s pin: %w", s.name, err)
			}
			s.events.record(ctx, EventPINUpgraded, map[string]string{"store": s.name})
			return nil
		}
	}
	return c, nil
}

func (s *localSource) moveToRemote(ctx context.Context, principal, pin string) error {
	rec, err := s.hasher.NewRecord(pin)
	if err != nil {
		return err
	}
	if err := s.remote.Upsert(ctx, principal, rec); err != nil {
		return fmt.Errorf("move %s pin to remote: %w", s.name, err)
	}
	if err := s.local.Delete(ctx, principal); err != nil {
		return fmt.Errorf("retire %s pin: %w", s.name, err)
	}
	s.events.record(ctx, s.event, map[string]string{"store": s.name})
	return nil
}

// eventRecorder binds an AuditSink to a principal.
type eventRecorder func(ctx context.Context, event string, metadata map[string]string)

func (r eventRecorder) record(ctx context.Context, event string, metadata map[string]string) {
	if r != nil {
		r(ctx, event, metadata)
	}
}
