package users

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/pkg/db/models"
)

// AddressRepository persists address books.
type AddressRepository struct {
	db *gorm.DB
}

func NewAddressRepository(db *gorm.DB) *AddressRepository {
	return &AddressRepository{db: db}
}

func (r *AddressRepository) WithTx(tx *gorm.DB) *AddressRepository {
	if tx == nil {
		return r
	}
	return &AddressRepository{db: tx}
}

// ListForUser returns addresses in book order.
func (r *AddressRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error) {
	var rows []models.UserAddress
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("position ASC").
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AddressRepository) FindForUser(ctx context.Context, userID, addressID uuid.UUID) (*models.UserAddress, error) {
	var row models.UserAddress
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", addressID, userID).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *AddressRepository) DefaultForUser(ctx context.Context, userID uuid.UUID) (*models.UserAddress, error) {
	var row models.UserAddress
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_default = ?", userID, true).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *AddressRepository) Create(ctx context.Context, address *models.UserAddress) error {
	return r.db.WithContext(ctx).Create(address).Error
}

func (r *AddressRepository) Update(ctx context.Context, userID, addressID uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.UserAddress{}).
		Where("id = ? AND user_id = ?", addressID, userID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *AddressRepository) Delete(ctx context.Context, userID, addressID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", addressID, userID).
		Delete(&models.UserAddress{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ClearDefault unsets the default flag across the user's book.
func (r *AddressRepository) ClearDefault(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.UserAddress{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error
}

func (r *AddressRepository) CountForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.UserAddress{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// NextPosition returns the slot after the last address in the book.
func (r *AddressRepository) NextPosition(ctx context.Context, userID uuid.UUID) (int, error) {
	var last sql.NullInt64
	if err := r.db.WithContext(ctx).
		Model(&models.UserAddress{}).
		Where("user_id = ?", userID).
		Select("MAX(position)").
		Row().
		Scan(&last); err != nil {
		return 0, err
	}
	if !last.Valid {
		return 0, nil
	}
	return int(last.Int64) + 1, nil
}
