package orders

import (
	"time"

	"github.com/google/uuid"
)

const (
	orderNumberPrefix = "MC"
	orderNumberSuffix = 6
	// Ambiguous glyphs (0/O, 1/I) are left out so numbers can be read aloud.
	orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxNumberAttempts   = 5
)

// NewOrderNumber formats MC<yyyymmdd>-<suffix> using the UTC date of now.
func NewOrderNumber(now time.Time) string {
	id := uuid.New()
	suffix := make([]byte, orderNumberSuffix)
	for i := range suffix {
		suffix[i] = orderNumberAlphabet[int(id[i])%len(orderNumberAlphabet)]
	}
	return orderNumberPrefix + now.UTC().Format("20060102") + "-" + string(suffix)
}
