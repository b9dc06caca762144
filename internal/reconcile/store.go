package reconcile

import (
	"context"

	"donation-service/internal/model"
	"github.com/google/uuid"
)

// Store is the datastore surface reconciliation needs. Finders return
// model.ErrNotFound when no row matches; any other error is a datastore failure.
type Store interface {
	FindByOrderID(ctx context.Context, orderID string) (*model.Donation, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*model.Donation, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Donation, error)
	// ApplyStatus performs the reconciliation write as one row update.
	ApplyStatus(ctx context.Context, update model.StatusUpdate) (*model.StatusChange, error)
}
