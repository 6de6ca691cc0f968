// Package pinhash derives and verifies hashes of the 6-digit local PIN.
//
// Two schemes are understood. The current one (SchemeCurrent) is
// PBKDF2-HMAC-SHA256 with a per-credential random salt. The legacy one
// (SchemeLegacy) is bcrypt; it is accepted for verification only and a
// successful match is reported with NeedsUpgrade so the caller can rewrite
// the record under the current scheme.
package pinhash

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	SchemeLegacy  = 1
	SchemeCurrent = 2

	PINLength         = 6
	SaltSize          = 16
	KeySize           = 32
	DefaultIterations = 100_000
)

var (
	ErrInvalidFormat = errors.New("pin must be exactly 6 digits")
	ErrUnknownScheme = errors.New("unknown credential scheme")
	ErrCorruptRecord = errors.New("corrupt credential record")
)

// Record is a stored PIN credential. Salt is empty for SchemeLegacy records,
// bcrypt keeps its salt inside the hash.
type Record struct {
	Hash          []byte `json:"hash"`
	Salt          []byte `json:"salt,omitempty"`
	SchemeVersion int    `json:"scheme_version"`
}

// IsCurrent reports whether the record was produced by the current scheme.
func (r Record) IsCurrent() bool {
	return r.SchemeVersion == SchemeCurrent
}

type Result struct {
	Matched      bool
	NeedsUpgrade bool
}

type Hasher struct {
	iterations int
	bcryptCost int
}

type Option func(*Hasher)

// WithIterations overrides the PBKDF2 iteration count. Records derived with a
// different count will not verify, so this is meant for tests.
func WithIterations(n int) Option {
	return func(h *Hasher) {
		if n > 0 {
			h.iterations = n
		}
	}
}

// WithBcryptCost sets the cost used by LegacyRecord.
func WithBcryptCost(cost int) Option {
	return func(h *Hasher) {
		h.bcryptCost = cost
	}
}

func New(opts ...Option) *Hasher {
	h := &Hasher{iterations: DefaultIterations, bcryptCost: bcrypt.DefaultCost}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ValidateFormat checks that pin is exactly six ASCII digits.
func ValidateFormat(pin string) error {
	if len(pin) != PINLength {
		return ErrInvalidFormat
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrInvalidFormat
		}
	}
	return nil
}

// GenerateSalt returns SaltSize bytes from crypto/rand.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Derive computes the current-scheme hash of pin with salt.
func (h *Hasher) Derive(pin string, salt []byte) ([]byte, error) {
	if err := ValidateFormat(pin); err != nil {
		return nil, err
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty salt", ErrCorruptRecord)
	}
	return pbkdf2.Key([]byte(pin), salt, h.iterations, KeySize, sha256.New), nil
}

// NewRecord derives a current-scheme record with a fresh salt.
func (h *Hasher) NewRecord(pin string) (Record, error) {
	if err := ValidateFormat(pin); err != nil {
		return Record{}, err
	}
	salt, err := GenerateSalt()
	if err != nil {
		return Record{}, err
	}
	hash, err := h.Derive(pin, salt)
	if err != nil {
		return Record{}, err
	}
	return Record{Hash: hash, Salt: salt, SchemeVersion: SchemeCurrent}, nil
}

// LegacyRecord produces a bcrypt record. Only stores written by older builds
// hold these; new credentials always use NewRecord.
func (h *Hasher) LegacyRecord(pin string) (Record, error) {
	if err := ValidateFormat(pin); err != nil {
		return Record{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), h.bcryptCost)
	if err != nil {
		return Record{}, fmt.Errorf("bcrypt: %w", err)
	}
	return Record{Hash: hash, SchemeVersion: SchemeLegacy}, nil
}

// Verify checks pin against rec. A malformed pin is rejected with
// ErrInvalidFormat before any hashing happens.
func (h *Hasher) Verify(pin string, rec Record) (Result, error) {
	if err := ValidateFormat(pin); err != nil {
		return Result{}, err
	}

	switch rec.SchemeVersion {
	case SchemeCurrent:
		if len(rec.Hash) != KeySize {
			return Result{}, fmt.Errorf("%w: hash length %d", ErrCorruptRecord, len(rec.Hash))
		}
		candidate, err := h.Derive(pin, rec.Salt)
		if err != nil {
			return Result{}, err
		}
		return Result{Matched: subtle.ConstantTimeCompare(candidate, rec.Hash) == 1}, nil

	case SchemeLegacy:
		err := bcrypt.CompareHashAndPassword(rec.Hash, []byte(pin))
		switch {
		case err == nil:
			return Result{Matched: true, NeedsUpgrade: true}, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return Result{}, nil
		default:
			return Result{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}

	default:
		return Result{}, fmt.Errorf("%w: version %d", ErrUnknownScheme, rec.SchemeVersion)
	}
}
