package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"donation-service/internal/model"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
)

var ErrDonationNotFound = errors.New("donation not found")

type lookupStep struct {
	key  string
	find func(ctx context.Context, value string) (*model.Donation, error)
}

type Locator struct {
	steps  []lookupStep
	logger *slog.Logger
}

func NewLocator(store Store, logger *slog.Logger) *Locator {
	return &Locator{
		steps: []lookupStep{
			{key: "order_id", find: store.FindByOrderID},
			// the gateway sometimes echoes a different identifier than the one issued
			{key: "payment_id", find: store.FindByPaymentID},
			// records created before order ids were stored separately
			{key: "id", find: func(ctx context.Context, value string) (*model.Donation, error) {
				id, err := uuid.Parse(value)
				if err != nil {
					return nil, model.ErrNotFound
				}
				return store.FindByID(ctx, id)
			}},
		},
		logger: logger,
	}
}

// Locate resolves a gateway order identifier to a donation. A miss on one key
// falls through to the next; a datastore error aborts the chain.
func (l *Locator) Locate(ctx context.Context, orderID string) (*model.Donation, error) {
	for _, step := range l.steps {
		donation, err := step.find(ctx, orderID)
		if err == nil {
			l.logger.InfoContext(ctx, "Donation located", "matchedOn", step.key, "donationId", donation.ID)
			metrics.GetOrCreateCounter(fmt.Sprintf(`donation_lookup_total{result="found",key=%q}`, step.key)).Inc()
			return donation, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			metrics.GetOrCreateCounter(`donation_lookup_total{result="error"}`).Inc()
			return nil, fmt.Errorf("locate donation by %s: %w", step.key, err)
		}
		l.logger.DebugContext(ctx, "No donation matched", "key", step.key)
	}

	metrics.GetOrCreateCounter(`donation_lookup_total{result="not_found"}`).Inc()
	return nil, ErrDonationNotFound
}
