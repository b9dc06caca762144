package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"donation-service/internal/model"
	"donation-service/internal/reconcile/reconciletest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocator_ByOrderID(t *testing.T) {
	store := reconciletest.NewStore()
	id := uuid.New()
	store.Put(model.Donation{ID: id, OrderID: reconciletest.Ptr("ORD-1"), Status: model.StatusPending, Amount: 501})

	donation, err := NewLocator(store, slog.Default()).Locate(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, id, donation.ID)
	assert.Equal(t, []string{"FindByOrderID:ORD-1"}, store.Calls)
}

func TestLocator_FallsBackToPaymentID(t *testing.T) {
	store := reconciletest.NewStore()
	id := uuid.New()
	store.Put(model.Donation{ID: id, OrderID: reconciletest.Ptr("ORD-1"), PaymentID: reconciletest.Ptr("CF-7"), Status: model.StatusPending})

	donation, err := NewLocator(store, slog.Default()).Locate(context.Background(), "CF-7")
	require.NoError(t, err)
	assert.Equal(t, id, donation.ID)
	assert.Equal(t, []string{"FindByOrderID:CF-7", "FindByPaymentID:CF-7"}, store.Calls)
}

func TestLocator_FallsBackToPrimaryIDLast(t *testing.T) {
	store := reconciletest.NewStore()
	id := uuid.New()
	// legacy record: no order id, no payment id
	store.Put(model.Donation{ID: id, Status: model.StatusPending, Amount: 1001})

	donation, err := NewLocator(store, slog.Default()).Locate(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, id, donation.ID)
	assert.Equal(t, []string{
		"FindByOrderID:" + id.String(),
		"FindByPaymentID:" + id.String(),
		"FindByID:" + id.String(),
	}, store.Calls)
}

func TestLocator_NotFound(t *testing.T) {
	store := reconciletest.NewStore()

	_, err := NewLocator(store, slog.Default()).Locate(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrDonationNotFound)
	assert.Len(t, store.Calls, 3)
}

func TestLocator_NonUUIDNeverReachesPrimaryKeyLookup(t *testing.T) {
	store := reconciletest.NewStore()

	_, err := NewLocator(store, slog.Default()).Locate(context.Background(), "order_from_sandbox")
	assert.ErrorIs(t, err, ErrDonationNotFound)
	assert.Empty(t, store.CallsWithPrefix("FindByID"))
}

func TestLocator_DatastoreErrorAborts(t *testing.T) {
	store := reconciletest.NewStore()
	boom := errors.New("connection reset")
	store.Err["FindByOrderID"] = boom

	_, err := NewLocator(store, slog.Default()).Locate(context.Background(), "ORD-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrDonationNotFound)
	assert.Equal(t, []string{"FindByOrderID:ORD-1"}, store.Calls, "must not continue after a datastore error")
}

func TestLocator_ErrorInLaterStepAborts(t *testing.T) {
	store := reconciletest.NewStore()
	boom := errors.New("timeout")
	store.Err["FindByPaymentID"] = boom

	_, err := NewLocator(store, slog.Default()).Locate(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.CallsWithPrefix("FindByID"))
}
