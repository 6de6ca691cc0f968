// Package refreshtokens declares the server-side repository contract for
// the opaque refresh tokens that back session rotation.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/applock/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking refresh tokens.
type Repository interface {
	// Create stores a new refresh token for principalID with an expiry of now+validity.
	Create(ctx context.Context, principalID string, token string, validity time.Duration) error

	// Find looks up a refresh token. It returns common.ErrorNotFound when absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes a refresh token. Deleting a missing token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteByPrincipal revokes every refresh token of principalID.
	DeleteByPrincipal(ctx context.Context, principalID string) error
}
