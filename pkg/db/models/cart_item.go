package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one (medicine, quantity) row of a user's cart. Prices are read
// live from the catalog until checkout snapshots them.
type CartItem struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:cart_items_user_medicine_key"`
	MedicineID uuid.UUID `gorm:"column:medicine_id;type:uuid;not null;uniqueIndex:cart_items_user_medicine_key"`
	Quantity   int       `gorm:"column:quantity;not null"`
	Medicine   *Medicine `gorm:"foreignKey:MedicineID"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
