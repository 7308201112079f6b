package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/pkg/db/models"
)

// CheckoutStore reads and clears carts inside the checkout transaction.
type CheckoutStore struct {
	repo Repository
}

func NewCheckoutStore(repo Repository) *CheckoutStore {
	return &CheckoutStore{repo: repo}
}

func (c *CheckoutStore) ListForCheckout(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]models.CartItem, error) {
	return c.repo.WithTx(tx).ListItems(ctx, userID)
}

func (c *CheckoutStore) ClearTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	return c.repo.WithTx(tx).Clear(ctx, userID)
}
