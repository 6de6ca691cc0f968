// Package lockrecords stores the mirrored lock record of each principal.
package lockrecords

import (
	"context"

	"github.com/dmitrijs2005/applock/internal/server/models"
)

// Repository reads and writes lock records.
type Repository interface {
	// Get returns common.ErrorNotFound when the principal has no record.
	Get(ctx context.Context, principalID string) (*models.LockRecord, error)

	// Upsert stores r unless the stored record has a later UpdatedAt.
	// It reports whether r was applied.
	Upsert(ctx context.Context, r *models.LockRecord) (bool, error)
}
