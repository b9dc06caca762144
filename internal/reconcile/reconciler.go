package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"donation-service/internal/model"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
)

var statusRegressionCounter = metrics.GetOrCreateCounter(`donation_status_regression_total`)

type Result struct {
	DonationID uuid.UUID
	OldStatus  model.Status
	NewStatus  model.Status
	PaymentID  string
	// Changed is true when this call moved the donation to a new status.
	Changed bool
}

type Reconciler struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewReconciler(store Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Reconcile applies a gateway outcome to a donation. It always sets the status and
// refreshes verified_at; the payment id is written only if none is recorded yet.
// Calling it again with the same inputs leaves the same end state.
func (r *Reconciler) Reconcile(ctx context.Context, donation *model.Donation, status model.Status, paymentID string) (*Result, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("reconcile donation %s: invalid status %q", donation.ID, status)
	}

	update := model.StatusUpdate{
		DonationID: donation.ID,
		Status:     status,
		VerifiedAt: r.now().UTC(),
	}
	if !donation.HasPaymentID() {
		update.PaymentID = paymentID
	} else if paymentID != "" && paymentID != *donation.PaymentID {
		r.logger.WarnContext(ctx, "Keeping recorded payment id", "recorded", *donation.PaymentID, "incoming", paymentID)
	}

	change, err := r.store.ApplyStatus(ctx, update)
	if err != nil {
		metrics.GetOrCreateCounter(`donation_reconcile_total{result="error"}`).Inc()
		return nil, fmt.Errorf("reconcile donation %s: %w", donation.ID, err)
	}

	if change.OldStatus.IsRegression(status) {
		// transitions are not blocked, only surfaced for review
		statusRegressionCounter.Inc()
		r.logger.WarnContext(ctx, "Donation status moved back from a settled outcome",
			"from", change.OldStatus, "to", status)
	}

	metrics.GetOrCreateCounter(fmt.Sprintf(`donation_reconcile_total{result="applied",status=%q}`, status)).Inc()

	result := &Result{
		DonationID: change.Donation.ID,
		OldStatus:  change.OldStatus,
		NewStatus:  change.Donation.Status,
		Changed:    change.OldStatus != change.Donation.Status,
	}
	if change.Donation.PaymentID != nil {
		result.PaymentID = *change.Donation.PaymentID
	}
	return result, nil
}
