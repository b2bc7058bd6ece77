package models

import (
	"github.com/google/uuid"
)

// User represents an authenticated buyer account, either an individual
// service provider or an agency.
type User struct {
	BaseModel
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	CompanyName  string        `json:"company_name"`
	Phone        string        `gorm:"uniqueIndex" json:"phone"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	IsAgency     bool          `json:"is_agency"`
	Addresses    []UserAddress `json:"addresses,omitempty"`
	Orders       []Order       `json:"orders,omitempty"`
}

// UserAddress is a saved delivery destination.
type UserAddress struct {
	BaseModel
	UserID      uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Label       string    `json:"label"`
	AddressLine string    `json:"address_line"`
	City        string    `json:"city"`
	District    string    `json:"district"`
	PostalCode  string    `json:"postal_code"`
	IsDefault   bool      `json:"is_default"`
}
