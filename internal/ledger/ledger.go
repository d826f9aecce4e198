// Package ledger tracks a seller's stock and the reservations held against it.
//
// Every product has a total and a reserved count; available = total - reserved
// never goes negative. Reservations are stored as tokens keyed by the
// coordinator's order id so COMMIT and CANCEL never re-state quantities and a
// repeated CANCEL is a harmless no-op.
package ledger

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/models"
)

var ErrUnknownProduct = errors.New("unknown product")

// Ledger is the seller-side inventory contract
type Ledger interface {
	// Reserve holds every item under orderID, or none of them. It returns false
	// without mutation when any item lacks stock or the order was already released.
	Reserve(ctx context.Context, orderID string, items []models.LineItem) (bool, error)
	// Commit turns the token for orderID into a permanent sale. Unknown ids succeed.
	Commit(ctx context.Context, orderID string) (bool, error)
	// Release returns the token's quantities to available stock. Unknown ids succeed.
	Release(ctx context.Context, orderID string) (bool, error)
	// Snapshot returns the current level of every product
	Snapshot(ctx context.Context) (map[string]models.StockLevel, error)
	// Expire releases tokens older than ttl and forgets tombstones older than ttl
	Expire(ctx context.Context, ttl time.Duration) (int, error)
}
