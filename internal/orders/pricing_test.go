package orders

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicart/medicart-api/pkg/config"
)

func TestPricerQuote(t *testing.T) {
	pricer, err := NewPricer(config.PricingConfig{TaxRate: "0.18", ShippingFeeCents: 5000})
	require.NoError(t, err)

	q := pricer.Quote(4000, 0)
	assert.Equal(t, Quote{SubtotalCents: 4000, TaxCents: 720, ShippingFeeCents: 5000, TotalCents: 9720}, q)

	// 18% of 1003 is 180.54, rounded to 181.
	assert.Equal(t, 181, pricer.Quote(1003, 0).TaxCents)
	assert.Equal(t, 0, pricer.Quote(0, 99999).TotalCents)
}

func TestPricerFreeShippingThreshold(t *testing.T) {
	pricer, err := NewPricer(config.PricingConfig{TaxRate: "0", ShippingFeeCents: 5000, FreeShippingOverCents: 50000})
	require.NoError(t, err)

	assert.Equal(t, 5000, pricer.Quote(49999, 0).ShippingFeeCents)
	assert.Equal(t, 0, pricer.Quote(50000, 0).ShippingFeeCents)
}

func TestNewPricerRejectsBadRates(t *testing.T) {
	for _, rate := range []string{"abc", "-0.1", "1.5"} {
		_, err := NewPricer(config.PricingConfig{TaxRate: rate})
		assert.Error(t, err, rate)
	}
}

func TestNewOrderNumberFormat(t *testing.T) {
	now := time.Date(2026, 10, 19, 23, 30, 0, 0, time.UTC)
	number := NewOrderNumber(now)
	require.True(t, strings.HasPrefix(number, "MC20261019-"), number)
	suffix := strings.TrimPrefix(number, "MC20261019-")
	require.Len(t, suffix, orderNumberSuffix)
	for _, r := range suffix {
		assert.True(t, strings.ContainsRune(orderNumberAlphabet, r), "unexpected rune %q", r)
	}
	assert.NotEqual(t, number, NewOrderNumber(now))
}
