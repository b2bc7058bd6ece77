package models

import (
	"github.com/google/uuid"
)

// SubscriptionKit is a named bundle of products sold at a fixed bundle
// price. Kits are an alternate order source sharing the regular order
// lifecycle.
type SubscriptionKit struct {
	BaseModel
	Name        string       `json:"name"`
	Description string       `json:"description"`
	BundlePrice float64      `json:"bundle_price"`
	IsActive    bool         `json:"is_active"`
	Products    []KitProduct `json:"products,omitempty"`
}

// KitProduct is one line of a kit with its unit price locked at kit
// definition time.
type KitProduct struct {
	BaseModel
	KitID     uuid.UUID `gorm:"type:uuid;index" json:"kit_id"`
	ProductID uuid.UUID `gorm:"type:uuid" json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
}
