package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"donation-service/internal/model"
	"donation-service/internal/reconcile/reconciletest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(store Store) *Reconciler {
	r := NewReconciler(store, slog.Default())
	r.now = func() time.Time { return time.Date(2024, 1, 14, 6, 30, 0, 0, time.UTC) }
	return r
}

func TestReconcile_SetsStatusPaymentIDAndVerifiedAt(t *testing.T) {
	store := reconciletest.NewStore()
	id := uuid.New()
	store.Put(model.Donation{ID: id, OrderID: reconciletest.Ptr("ORD-1"), Status: model.StatusPending, Amount: 501})
	donation, _ := store.Get(id)

	result, err := newTestReconciler(store).Reconcile(context.Background(), &donation, model.StatusCompleted, "PAY-99")
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, result.OldStatus)
	assert.Equal(t, model.StatusCompleted, result.NewStatus)
	assert.Equal(t, "PAY-99", result.PaymentID)
	assert.True(t, result.Changed)

	stored, _ := store.Get(id)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, "PAY-99", *stored.PaymentID)
	require.NotNil(t, stored.VerifiedAt)
	assert.Equal(t, time.Date(2024, 1, 14, 6, 30, 0, 0, time.UTC), *stored.VerifiedAt)
}

func TestReconcile_Idempotent(t *testing.T) {
	store := reconciletest.NewStore()
	id := uuid.New()
	store.Put(model.Donation{ID: id, OrderID: reconciletest.Ptr("ORD-1"), Status: model.StatusPending})
	r := newTestReconciler(store)

	for i := 0; i < 5; i++ {
		donation, _ := store.Get(id)
		result, err := r.Reconcile(context.Background(), &donation, model.StatusCompleted, "PAY-99")
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, result.NewStatus)
		assert.Equal(t, i == 0, result.Changed)
	}

	stored, _ := store.Get(id)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.Equal(t, "PAY-99", *stored.PaymentID)
	assert.Equal(t, 1, store.EventCount(), "a redelivery must not record a second event")
}

func TestReconcile_PaymentIDIsWriteOnce(t *testing.T) {
	store := reconciletest.NewStore()
	id := uuid.New()
	store.Put(model.Donation{ID: id, OrderID: reconciletest.Ptr("ORD-1"), PaymentID: reconciletest.Ptr("PAY-1"), Status: model.StatusCompleted})
	donation, _ := store.Get(id)

	result, err := newTestReconciler(store).Reconcile(context.Background(), &donation, model.StatusRefunded, "PAY-2")
	require.NoError(t, err)
	assert.Equal(t, "PAY-1", result.PaymentID)

	stored, _ := store.Get(id)
	assert.Equal(t, "PAY-1", *stored.PaymentID)
	assert.Equal(t, model.StatusRefunded, stored.Status)
}

func TestReconcile_PaymentIDWriteOnceAgainstStaleSnapshot(t *testing.T) {
	store := reconciletest.NewStore()
	id := uuid.New()
	store.Put(model.Donation{ID: id, Status: model.StatusPending})
	stale, _ := store.Get(id)

	r := newTestReconciler(store)
	_, err := r.Reconcile(context.Background(), &stale, model.StatusCompleted, "PAY-1")
	require.NoError(t, err)

	// a racing delivery loaded the row before the first write landed
	_, err = r.Reconcile(context.Background(), &stale, model.StatusCompleted, "PAY-2")
	require.NoError(t, err)

	stored, _ := store.Get(id)
	assert.Equal(t, "PAY-1", *stored.PaymentID)
}

func TestReconcile_ConcurrentDeliveriesConverge(t *testing.T) {
	store := reconciletest.NewStore()
	id := uuid.New()
	store.Put(model.Donation{ID: id, OrderID: reconciletest.Ptr("ORD-1"), Status: model.StatusPending})
	r := newTestReconciler(store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			donation, _ := store.Get(id)
			_, err := r.Reconcile(context.Background(), &donation, model.StatusCompleted, "PAY-99")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, _ := store.Get(id)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.Equal(t, "PAY-99", *stored.PaymentID)
	assert.Equal(t, 1, store.EventCount())
}

func TestReconcile_RegressionIsAppliedNotBlocked(t *testing.T) {
	store := reconciletest.NewStore()
	id := uuid.New()
	store.Put(model.Donation{ID: id, PaymentID: reconciletest.Ptr("PAY-1"), Status: model.StatusCompleted})
	donation, _ := store.Get(id)

	result, err := newTestReconciler(store).Reconcile(context.Background(), &donation, model.StatusFailed, "PAY-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, result.OldStatus)
	assert.Equal(t, model.StatusFailed, result.NewStatus)
}

func TestReconcile_PersistenceErrorSurfaces(t *testing.T) {
	store := reconciletest.NewStore()
	id := uuid.New()
	store.Put(model.Donation{ID: id, Status: model.StatusPending})
	boom := errors.New("deadlock detected")
	store.Err["ApplyStatus"] = boom
	donation, _ := store.Get(id)

	_, err := newTestReconciler(store).Reconcile(context.Background(), &donation, model.StatusCompleted, "PAY-1")
	assert.ErrorIs(t, err, boom)

	stored, _ := store.Get(id)
	assert.Equal(t, model.StatusPending, stored.Status)
}

func TestReconcile_RejectsStatusOutsideClosedSet(t *testing.T) {
	store := reconciletest.NewStore()
	donation := model.Donation{ID: uuid.New(), Status: model.StatusPending}

	_, err := newTestReconciler(store).Reconcile(context.Background(), &donation, model.Status("paid"), "")
	assert.Error(t, err)
	assert.Empty(t, store.Calls)
}
