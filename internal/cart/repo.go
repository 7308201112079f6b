package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medicart/medicart-api/pkg/db/models"
)

// Repository exposes persistence operations for cart lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListItems(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	FindItem(ctx context.Context, userID, medicineID uuid.UUID) (*models.CartItem, error)
	AddQuantity(ctx context.Context, userID, medicineID uuid.UUID, qty int) error
	SetQuantity(ctx context.Context, userID, medicineID uuid.UUID, qty int) (bool, error)
	RemoveItem(ctx context.Context, userID, medicineID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ListItems returns the user's cart lines with their catalog rows, oldest first.
func (r *repository) ListItems(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var rows []models.CartItem
	if err := r.db.WithContext(ctx).
		Preload("Medicine").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindItem(ctx context.Context, userID, medicineID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND medicine_id = ?", userID, medicineID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// AddQuantity inserts the line or merges qty into the existing one.
func (r *repository) AddQuantity(ctx context.Context, userID, medicineID uuid.UUID, qty int) error {
	item := models.CartItem{
		ID:         uuid.New(),
		UserID:     userID,
		MedicineID: medicineID,
		Quantity:   qty,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "medicine_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   gorm.Expr("cart_items.quantity + excluded.quantity"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).
		Omit(clause.Associations).
		Create(&item).Error
}

// SetQuantity overwrites an existing line and reports whether it existed.
func (r *repository) SetQuantity(ctx context.Context, userID, medicineID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("user_id = ? AND medicine_id = ?", userID, medicineID).
		Update("quantity", qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) RemoveItem(ctx context.Context, userID, medicineID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND medicine_id = ?", userID, medicineID).
		Delete(&models.CartItem{}).Error
}

func (r *repository) Clear(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.CartItem{}).Error
}
