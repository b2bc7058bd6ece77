package models

// BulkQuantity is the line quantity at which the bulk price tier applies.
const BulkQuantity = 10

// Product is the catalog read model the transaction core prices against.
// MarketPrice is the public per-unit price, PartnerPrice the negotiated
// price partners buy at, BulkPrice an optional tier for lines of
// BulkQuantity units or more.
type Product struct {
	BaseModel
	SKU          string   `gorm:"uniqueIndex" json:"sku"`
	Name         string   `json:"name"`
	Category     string   `gorm:"index" json:"category"`
	Description  string   `json:"description"`
	MarketPrice  float64  `json:"market_price"`
	PartnerPrice float64  `json:"partner_price"`
	BulkPrice    *float64 `json:"bulk_price"`
	Stock        int      `json:"stock"`
	Unit         string   `json:"unit"`
	ImageURL     string   `json:"image_url"`
	IsActive     bool     `json:"is_active"`
}

// UnitPriceFor returns the effective per-unit price for the given quantity.
func (p *Product) UnitPriceFor(quantity int) float64 {
	if quantity >= BulkQuantity && p.BulkPrice != nil && *p.BulkPrice > 0 {
		return *p.BulkPrice
	}
	return p.PartnerPrice
}

// Available reports whether the product can currently be ordered at all.
func (p *Product) Available() bool {
	return p.IsActive && p.Stock > 0
}
