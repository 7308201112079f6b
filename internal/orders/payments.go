package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// LocalPaymentIntents issues opaque references for online orders until a
// gateway is connected. Capture and refunds happen outside this service.
type LocalPaymentIntents struct{}

func (LocalPaymentIntents) CreateIntent(_ context.Context, req PaymentIntentRequest) (string, error) {
	if req.OrderID == uuid.Nil {
		return "", fmt.Errorf("order id required")
	}
	if req.AmountCents <= 0 {
		return "", fmt.Errorf("amount must be positive")
	}
	return "pi_" + uuid.NewString(), nil
}
