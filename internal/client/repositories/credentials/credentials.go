// Package credentials keeps PIN records on the device, inside the metadata
// table. Two stores exist: the per-principal store written by older builds
// and the device-wide store used before a principal is known.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/applock/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/applock/internal/pinhash"
)

const (
	LegacyKeyPrefix = "legacy_pin/"
	LocalOnlyKey    = "local_pin"
)

type Repository struct {
	meta metadata.Repository
	key  func(principal string) string
}

func NewLegacyRepository(meta metadata.Repository) *Repository {
	return &Repository{meta: meta, key: func(p string) string { return LegacyKeyPrefix + p }}
}

// NewLocalOnlyRepository ignores the principal: the device holds at most one
// onboarding PIN.
func NewLocalOnlyRepository(meta metadata.Repository) *Repository {
	return &Repository{meta: meta, key: func(string) string { return LocalOnlyKey }}
}

func (r *Repository) Get(ctx context.Context, principal string) (*pinhash.Record, error) {
	raw, err := r.meta.Get(ctx, r.key(principal))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var rec pinhash.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", pinhash.ErrCorruptRecord, err)
	}
	return &rec, nil
}

func (r *Repository) Upsert(ctx context.Context, principal string, rec pinhash.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.meta.Set(ctx, r.key(principal), raw)
}

func (r *Repository) Delete(ctx context.Context, principal string) error {
	return r.meta.Delete(ctx, r.key(principal))
}
