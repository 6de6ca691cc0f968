// Package sessions persists the server session of a principal so that a
// rotated refresh token survives a restart of the CLI.
package sessions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/applock/internal/client/repositories/metadata"
)

const KeyPrefix = "session/"

// Tokens is the stored token pair.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type Repository struct {
	meta metadata.Repository
}

func NewRepository(meta metadata.Repository) *Repository {
	return &Repository{meta: meta}
}

// Get returns nil, nil when nothing is stored for principal.
func (r *Repository) Get(ctx context.Context, principal string) (*Tokens, error) {
	raw, err := r.meta.Get(ctx, KeyPrefix+principal)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var t Tokens
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &t, nil
}

func (r *Repository) Save(ctx context.Context, principal string, t Tokens) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return r.meta.Set(ctx, KeyPrefix+principal, raw)
}

func (r *Repository) Delete(ctx context.Context, principal string) error {
	return r.meta.Delete(ctx, KeyPrefix+principal)
}
