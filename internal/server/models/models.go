// Package models holds the rows persisted by the server repositories.
package models

import "time"

// Credential is the remote PIN record of a principal.
type Credential struct {
	PrincipalID   string
	Hash          []byte
	Salt          []byte
	SchemeVersion int
	UpdatedAt     time.Time
}

// LockRecord mirrors the throttle counters and settings of a principal.
type LockRecord struct {
	PrincipalID               string
	FailedAttempts            int
	LockedUntil               *time.Time
	LastUnlockAt              *time.Time
	BiometricEnabled          bool
	RequireOnSensitiveActions bool
	IdleTimeoutMinutes        int
	UpdatedAt                 time.Time
}

type RefreshToken struct {
	PrincipalID string
	Expires     time.Time
}
