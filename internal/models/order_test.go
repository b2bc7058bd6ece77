package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusDelivered, true},
		{OrderStatusConfirmed, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusProcessing, false},
		{OrderStatusConfirmed, OrderStatusConfirmed, false},
		{OrderStatusProcessing, OrderStatusCancelled, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusConfirmed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.True(t, OrderStatusDelivered.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.False(t, OrderStatusShipped.Terminal())
}

func TestTrackingStatusRank(t *testing.T) {
	assert.Equal(t, 0, TrackingOrderPlaced.Rank())
	assert.Equal(t, 6, TrackingDelivered.Rank())
	assert.Equal(t, -1, TrackingStatus("lost").Rank())
	assert.True(t, TrackingDelivered.Terminal())
	assert.False(t, TrackingShipped.Terminal())
}
