package orders

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/medicart/medicart-api/pkg/config"
)

// Quote is the money breakdown of an order, all in cents.
type Quote struct {
	SubtotalCents    int
	TaxCents         int
	ShippingFeeCents int
	DiscountCents    int
	TotalCents       int
}

// Pricer derives tax, shipping and total from a subtotal.
type Pricer struct {
	taxRate          decimal.Decimal
	shippingFeeCents int
	freeOverCents    int
}

// NewPricer parses the configured tax rate, which must be a fraction in [0, 1].
func NewPricer(cfg config.PricingConfig) (*Pricer, error) {
	rate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", config.EnvTaxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%s must be between 0 and 1, got %s", config.EnvTaxRate, rate)
	}
	if cfg.ShippingFeeCents < 0 || cfg.FreeShippingOverCents < 0 {
		return nil, fmt.Errorf("shipping values must be >= 0")
	}
	return &Pricer{
		taxRate:          rate,
		shippingFeeCents: cfg.ShippingFeeCents,
		freeOverCents:    cfg.FreeShippingOverCents,
	}, nil
}

// Quote prices a subtotal. Tax is rounded half away from zero to whole cents
// and the total never drops below zero.
func (p *Pricer) Quote(subtotalCents, discountCents int) Quote {
	tax := decimal.NewFromInt(int64(subtotalCents)).Mul(p.taxRate).Round(0).IntPart()

	shipping := p.shippingFeeCents
	if p.freeOverCents > 0 && subtotalCents >= p.freeOverCents {
		shipping = 0
	}

	total := subtotalCents + int(tax) + shipping - discountCents
	if total < 0 {
		total = 0
	}
	return Quote{
		SubtotalCents:    subtotalCents,
		TaxCents:         int(tax),
		ShippingFeeCents: shipping,
		DiscountCents:    discountCents,
		TotalCents:       total,
	}
}
