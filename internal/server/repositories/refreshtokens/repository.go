// Package refreshtokens declares the refresh-token ledger: the durable
// record of every issued refresh token's identity, owner, lifecycle state
// and rotation lineage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository defines operations for issuing, retrieving and revoking ledger
// rows. Rows are never deleted; deactivation is the only mutation.
type Repository interface {
	// Create inserts an active row for userID expiring at expiresAt.
	// previousTokenID, when non-nil, links the row to the one it supersedes.
	Create(ctx context.Context, userID string, expiresAt time.Time, previousTokenID *string) (*models.RefreshToken, error)

	// Get returns the row with the given id, or common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.RefreshToken, error)

	// Deactivate atomically flips the row inactive and reports whether it was
	// still active beforehand. Deactivating an already-inactive row is a
	// no-op with wasActive=false, which is what lets a rotation and a
	// concurrent logout race on the same row safely: at most one caller ever
	// observes wasActive=true.
	Deactivate(ctx context.Context, id string) (row *models.RefreshToken, wasActive bool, err error)

	// ListActive returns up to limit active rows owned by userID, newest
	// first.
	ListActive(ctx context.Context, userID string, limit int) ([]*models.RefreshToken, error)
}
