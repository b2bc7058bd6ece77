package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitPriceForBulkThreshold(t *testing.T) {
	bulk := 7.0
	p := Product{MarketPrice: 10, PartnerPrice: 8, BulkPrice: &bulk}

	assert.Equal(t, 8.0, p.UnitPriceFor(1))
	assert.Equal(t, 8.0, p.UnitPriceFor(BulkQuantity-1))
	assert.Equal(t, 7.0, p.UnitPriceFor(BulkQuantity))
	assert.Equal(t, 7.0, p.UnitPriceFor(50))
}

func TestUnitPriceForWithoutBulkTier(t *testing.T) {
	p := Product{MarketPrice: 10, PartnerPrice: 8}
	assert.Equal(t, 8.0, p.UnitPriceFor(100))

	zero := 0.0
	p.BulkPrice = &zero
	assert.Equal(t, 8.0, p.UnitPriceFor(100))
}

func TestAvailable(t *testing.T) {
	p := Product{IsActive: true, Stock: 1}
	assert.True(t, p.Available())
	p.Stock = 0
	assert.False(t, p.Available())
	p = Product{IsActive: false, Stock: 5}
	assert.False(t, p.Available())
}
