package wire

import "time"

type Empty struct{}

type PrincipalRequest struct {
	PrincipalID string `json:"principal_id"`
}

// Credential carries a PIN record. Byte fields travel base64-encoded.
type Credential struct {
	PrincipalID   string `json:"principal_id"`
	Hash          []byte `json:"hash"`
	Salt          []byte `json:"salt,omitempty"`
	SchemeVersion int    `json:"scheme_version"`
}

type LockRecord struct {
	PrincipalID               string     `json:"principal_id"`
	FailedAttempts            int        `json:"failed_attempts"`
	LockedUntil               *time.Time `json:"locked_until,omitempty"`
	LastUnlockAt              *time.Time `json:"last_unlock_at,omitempty"`
	BiometricEnabled          bool       `json:"biometric_enabled"`
	RequireOnSensitiveActions bool       `json:"require_on_sensitive_actions"`
	IdleTimeoutMinutes        int        `json:"idle_timeout_minutes"`
	UpdatedAt                 time.Time  `json:"updated_at"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}
