package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/pagination"
)

// WishlistRepository encapsulates wishlist persistence.
type WishlistRepository struct {
	db *gorm.DB
}

func NewWishlistRepository(db *gorm.DB) *WishlistRepository {
	return &WishlistRepository{db: db}
}

// Add inserts a wishlist entry and ignores duplicates.
func (r *WishlistRepository) Add(ctx context.Context, userID, medicineID uuid.UUID) error {
	if userID == uuid.Nil || medicineID == uuid.Nil {
		return gorm.ErrInvalidValue
	}
	return r.db.WithContext(ctx).
		Exec(`INSERT INTO wishlist_items (user_id, medicine_id, created_at) VALUES (?, ?, ?) ON CONFLICT (user_id, medicine_id) DO NOTHING`, userID, medicineID, time.Now().UTC()).
		Error
}

// Remove deletes the entry if it exists.
func (r *WishlistRepository) Remove(ctx context.Context, userID, medicineID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND medicine_id = ?", userID, medicineID).
		Delete(&models.WishlistItem{}).
		Error
}

// ListMedicines returns saved active medicines, most recently saved first.
func (r *WishlistRepository) ListMedicines(ctx context.Context, userID uuid.UUID, limit int) ([]models.Medicine, error) {
	var rows []models.Medicine
	err := r.db.WithContext(ctx).
		Table("medicines").
		Select("medicines.*").
		Joins("JOIN wishlist_items wi ON wi.medicine_id = medicines.id").
		Where("wi.user_id = ? AND medicines.is_active = ?", userID, true).
		Order("wi.created_at DESC").
		Order("medicines.id ASC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
