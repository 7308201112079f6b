package models

import (
	"time"

	"github.com/google/uuid"
)

// WishlistItem links a user to a saved medicine.
type WishlistItem struct {
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	MedicineID uuid.UUID `gorm:"column:medicine_id;type:uuid;primaryKey"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
