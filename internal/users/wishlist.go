package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/internal/medicines"
	"github.com/medicart/medicart-api/pkg/auth"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
)

func (s *service) ListWishlist(ctx context.Context, actor auth.Actor, limit int) ([]medicines.MedicineView, error) {
	rows, err := s.wishlist.ListMedicines(ctx, actor.UserID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wishlist")
	}
	out := make([]medicines.MedicineView, 0, len(rows))
	for _, m := range rows {
		out = append(out, medicines.NewMedicineView(m))
	}
	return out, nil
}

// AddToWishlist ensures the medicine exists and saves it. Saving twice is a
// no-op.
func (s *service) AddToWishlist(ctx context.Context, actor auth.Actor, medicineID uuid.UUID) error {
	if medicineID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "medicine id is required")
	}
	medicine, err := s.medicines.FindByID(ctx, medicineID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "medicine not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load medicine")
	}
	if !medicine.IsActive {
		return pkgerrors.New(pkgerrors.CodeNotFound, "medicine not found")
	}
	if err := s.wishlist.Add(ctx, actor.UserID, medicineID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save wishlist item")
	}
	return nil
}

// RemoveFromWishlist drops the entry regardless of prior state.
func (s *service) RemoveFromWishlist(ctx context.Context, actor auth.Actor, medicineID uuid.UUID) error {
	if err := s.wishlist.Remove(ctx, actor.UserID, medicineID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove wishlist item")
	}
	return nil
}
