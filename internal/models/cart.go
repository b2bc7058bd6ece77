package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is a single line in a user's cart. One row per (user, product)
// pair; adding the same product again merges into the existing line.
// Cart lines are ephemeral and deleted on checkout or explicit removal.
type CartItem struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_cart_user_product" json:"user_id"`
	ProductID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_cart_user_product" json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}
