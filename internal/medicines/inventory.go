package medicines

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
)

// Inventory moves stock with conditional updates so concurrent checkouts can
// never drive stock below zero.
type Inventory struct{}

func NewInventory() Inventory {
	return Inventory{}
}

func (Inventory) Reserve(ctx context.Context, tx *gorm.DB, medicineID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock reservation")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE medicines
		SET stock_quantity = stock_quantity - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_active = ? AND stock_quantity >= ?
	`, qty, medicineID, true, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("insufficient stock for medicine %s", medicineID)).
			WithDetails(map[string]any{"medicine_id": medicineID, "requested": qty})
	}
	return nil
}

func (Inventory) Release(ctx context.Context, tx *gorm.DB, medicineID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock release")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE medicines
		SET stock_quantity = stock_quantity + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, medicineID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
	}
	return nil
}
