// Package credentials stores the remote PIN record of each principal.
package credentials

import (
	"context"

	"github.com/dmitrijs2005/applock/internal/server/models"
)

// Repository reads and writes credential records.
type Repository interface {
	// Get returns common.ErrorNotFound when the principal has no record.
	Get(ctx context.Context, principalID string) (*models.Credential, error)

	// Upsert stores c. A record with a lower scheme version than the stored
	// one is rejected with common.ErrSchemeDowngrade.
	Upsert(ctx context.Context, c *models.Credential) error
}
