package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/procura/internal/models"
	"github.com/example/procura/internal/repository"
)

func newTrackingEnv(t *testing.T, status models.OrderStatus) (*repository.MemoryStore, *TrackingService, *models.Order) {
	t.Helper()
	store := repository.NewMemoryStore()
	order := &models.Order{
		UserID:      uuid.New(),
		OrderNumber: "PO-900",
		Status:      status,
	}
	require.NoError(t, store.Orders().Create(context.Background(), order))
	return store, NewTrackingService(store.Orders(), store), order
}

func TestAppendEventAllowsForwardJumps(t *testing.T) {
	ctx := context.Background()
	_, tracking, order := newTrackingEnv(t, models.OrderStatusConfirmed)

	_, err := tracking.AppendEvent(ctx, AppendEventInput{
		OrderID: order.ID,
		Status:  models.TrackingOrderPlaced,
	})
	require.NoError(t, err)

	// Skipping supplier_notified, warehouse_received and packed is fine.
	_, err = tracking.AppendEvent(ctx, AppendEventInput{
		OrderID:  order.ID,
		Status:   models.TrackingShipped,
		Location: "Tashkent hub",
	})
	require.NoError(t, err)

	phase, err := tracking.Phase(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrackingShipped, phase)
}

func TestAppendEventRejectsRegression(t *testing.T) {
	ctx := context.Background()
	_, tracking, order := newTrackingEnv(t, models.OrderStatusConfirmed)

	_, err := tracking.AppendEvent(ctx, AppendEventInput{
		OrderID: order.ID,
		Status:  models.TrackingShipped,
	})
	require.NoError(t, err)

	_, err = tracking.AppendEvent(ctx, AppendEventInput{
		OrderID: order.ID,
		Status:  models.TrackingPacked,
	})
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestAppendEventRepeatedStatusAllowed(t *testing.T) {
	ctx := context.Background()
	store, tracking, order := newTrackingEnv(t, models.OrderStatusConfirmed)

	_, err := tracking.AppendEvent(ctx, AppendEventInput{
		OrderID:  order.ID,
		Status:   models.TrackingOutForDelivery,
		Location: "District depot",
	})
	require.NoError(t, err)

	// A non-terminal status may repeat with fresher location data.
	_, err = tracking.AppendEvent(ctx, AppendEventInput{
		OrderID:  order.ID,
		Status:   models.TrackingOutForDelivery,
		Location: "Block 4",
	})
	require.NoError(t, err)

	events, err := store.Orders().TrackingEvents(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestAppendDeliveredFlipsOrderStatus(t *testing.T) {
	ctx := context.Background()
	store, tracking, order := newTrackingEnv(t, models.OrderStatusShipped)

	occurredAt := time.Now().Add(-time.Hour)
	event, err := tracking.AppendEvent(ctx, AppendEventInput{
		OrderID:    order.ID,
		Status:     models.TrackingDelivered,
		OccurredAt: occurredAt,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TrackingDelivered, event.Status)

	got, err := store.Orders().GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt)
	assert.WithinDuration(t, occurredAt, *got.DeliveredAt, time.Second)
}

func TestAppendAfterTerminalRejected(t *testing.T) {
	ctx := context.Background()
	_, tracking, order := newTrackingEnv(t, models.OrderStatusShipped)

	_, err := tracking.AppendEvent(ctx, AppendEventInput{
		OrderID: order.ID,
		Status:  models.TrackingDelivered,
	})
	require.NoError(t, err)

	_, err = tracking.AppendEvent(ctx, AppendEventInput{
		OrderID: order.ID,
		Status:  models.TrackingDelivered,
	})
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestBackdatedDeliveredStaysTerminal(t *testing.T) {
	ctx := context.Background()
	_, tracking, order := newTrackingEnv(t, models.OrderStatusShipped)

	_, err := tracking.AppendEvent(ctx, AppendEventInput{
		OrderID: order.ID,
		Status:  models.TrackingOutForDelivery,
	})
	require.NoError(t, err)

	// A carrier feed may report delivery with an earlier timestamp. The
	// event is accepted, but it must not hide behind the prior milestone
	// and reopen the log.
	_, err = tracking.AppendEvent(ctx, AppendEventInput{
		OrderID:    order.ID,
		Status:     models.TrackingDelivered,
		OccurredAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	_, err = tracking.AppendEvent(ctx, AppendEventInput{
		OrderID: order.ID,
		Status:  models.TrackingDelivered,
	})
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	phase, err := tracking.Phase(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrackingDelivered, phase)
}

func TestAppendToCancelledOrderRejected(t *testing.T) {
	ctx := context.Background()
	_, tracking, order := newTrackingEnv(t, models.OrderStatusCancelled)

	_, err := tracking.AppendEvent(ctx, AppendEventInput{
		OrderID: order.ID,
		Status:  models.TrackingOrderPlaced,
	})
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestAppendUnknownStatusRejected(t *testing.T) {
	ctx := context.Background()
	_, tracking, order := newTrackingEnv(t, models.OrderStatusConfirmed)

	_, err := tracking.AppendEvent(ctx, AppendEventInput{
		OrderID: order.ID,
		Status:  models.TrackingStatus("teleported"),
	})
	require.ErrorIs(t, err, ErrValidationFailed)
}

func TestPhaseDefaultsToOrderPlaced(t *testing.T) {
	ctx := context.Background()
	_, tracking, order := newTrackingEnv(t, models.OrderStatusConfirmed)

	phase, err := tracking.Phase(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrackingOrderPlaced, phase)
}

func TestEventsUnknownOrderRejected(t *testing.T) {
	ctx := context.Background()
	_, tracking, _ := newTrackingEnv(t, models.OrderStatusConfirmed)

	_, err := tracking.Events(ctx, uuid.New())
	require.ErrorIs(t, err, repository.ErrNotFound)
}
