package order

import (
	"context"
	"time"

	"github.com/advoflow/advoflow/internal/audit"
)

// Store persists orders. Create and Update take the audit record that
// belongs to the change so both land as one atomic unit.
type Store interface {
	// Create inserts a new order and its creation audit record.
	Create(ctx context.Context, o *Order, rec *audit.Record) error

	// Get returns an order by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Order, error)

	// GetByChargeRef returns the order holding a gateway charge
	// reference, or ErrNotFound. Used by webhook reconciliation.
	GetByChargeRef(ctx context.Context, chargeRef string) (*Order, error)

	// Update writes o and its audit record if the stored version still
	// equals expectedVersion, then bumps o.Version. Returns
	// ErrVersionConflict on a stale version.
	Update(ctx context.Context, o *Order, expectedVersion int64, rec *audit.Record) error

	// ListByParty returns orders where the party is client or lawyer,
	// newest first.
	ListByParty(ctx context.Context, partyID string, limit int) ([]*Order, error)

	// ListReleaseEligible returns IDs of delivered orders whose
	// release time has passed, oldest first.
	ListReleaseEligible(ctx context.Context, before time.Time, limit int) ([]string, error)
}
