package models

import (
	"time"

	"github.com/google/uuid"
)

// TrackingStatus is a fulfillment milestone within an order's life.
type TrackingStatus string

const (
	TrackingOrderPlaced       TrackingStatus = "order_placed"
	TrackingSupplierNotified  TrackingStatus = "supplier_notified"
	TrackingWarehouseReceived TrackingStatus = "warehouse_received"
	TrackingPacked            TrackingStatus = "packed"
	TrackingShipped           TrackingStatus = "shipped"
	TrackingOutForDelivery    TrackingStatus = "out_for_delivery"
	TrackingDelivered         TrackingStatus = "delivered"
)

var trackingStatusRank = map[TrackingStatus]int{
	TrackingOrderPlaced:       0,
	TrackingSupplierNotified:  1,
	TrackingWarehouseReceived: 2,
	TrackingPacked:            3,
	TrackingShipped:           4,
	TrackingOutForDelivery:    5,
	TrackingDelivered:         6,
}

// Rank returns the position of s in the fulfillment chain, or -1 for an
// unknown status.
func (s TrackingStatus) Rank() int {
	r, ok := trackingStatusRank[s]
	if !ok {
		return -1
	}
	return r
}

// Terminal reports whether s ends the fulfillment chain.
func (s TrackingStatus) Terminal() bool {
	return s == TrackingDelivered
}

// TrackingEvent is an append-only fulfillment milestone attached to exactly
// one order. Events are ordered by OccurredAt and their statuses advance
// monotonically.
type TrackingEvent struct {
	BaseModel
	OrderID    uuid.UUID      `gorm:"type:uuid;index" json:"order_id"`
	Status     TrackingStatus `gorm:"type:varchar(30)" json:"status"`
	Location   string         `json:"location"`
	Note       string         `json:"note"`
	Latitude   *float64       `json:"latitude"`
	Longitude  *float64       `json:"longitude"`
	OccurredAt time.Time      `json:"occurred_at"`
}
