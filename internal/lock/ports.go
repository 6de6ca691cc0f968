package lock

import (
	"context"
	"time"

	"github.com/dmitrijs2005/applock/internal/pinhash"
)

// CredentialStore holds one PIN record per principal. Get returns nil, nil
// when nothing is stored.
type CredentialStore interface {
	Get(ctx context.Context, principal string) (*pinhash.Record, error)
	Upsert(ctx context.Context, principal string, rec pinhash.Record) error
}

// LocalCredentialStore is a device store that can retire its copy once the
// credential has moved to the remote store.
type LocalCredentialStore interface {
	CredentialStore
	Delete(ctx context.Context, principal string) error
}

// LockRecordStore is the remote mirror of the lock state. Get returns nil, nil
// when no record exists.
type LockRecordStore interface {
	Get(ctx context.Context, principal string) (*RecordFields, error)
	Upsert(ctx context.Context, principal string, fields RecordFields) error
}

// LocalPersistence is the on-device copy of State for a single principal.
// Load returns nil, nil on first use.
type LocalPersistence interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s State) error
	Clear(ctx context.Context) error
}

type SessionHandle struct {
	ExpiresAt time.Time
}

// SessionRefresher renews the network session. It is never on the unlock path.
type SessionRefresher interface {
	Refresh(ctx context.Context) (SessionHandle, error)
}

// AuditSink receives security events. Record must not block.
type AuditSink interface {
	Record(ctx context.Context, principal, event string, metadata map[string]string)
}

const (
	EventPINSet             = "pin.set"
	EventPINUpgraded        = "pin.upgraded"
	EventPINMigrated        = "pin.migrated"
	EventPINSynced          = "pin.synced"
	EventUnlockSucceeded    = "unlock.succeeded"
	EventUnlockFailed       = "unlock.failed"
	EventUnlockUnavailable  = "unlock.unavailable"
	EventBiometricFailed    = "unlock.biometric.failed"
	EventLocked             = "lock.locked"
	EventSecurityAlert      = "security.alert"
	EventRecoveryCompleted  = "recovery.completed"
	EventSettingsUpdated    = "settings.updated"
	EventCriticalOpStarted  = "critical.started"
	EventCriticalOpFinished = "critical.finished"
)

type noopAudit struct{}

func (noopAudit) Record(context.Context, string, string, map[string]string) {}
