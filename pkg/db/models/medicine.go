package models

import (
	"time"

	"github.com/google/uuid"
)

// Medicine is a purchasable catalog entry.
type Medicine struct {
	ID                   uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name                 string    `gorm:"column:name;not null"`
	GenericName          *string   `gorm:"column:generic_name"`
	Category             string    `gorm:"column:category;not null;index"`
	Manufacturer         *string   `gorm:"column:manufacturer"`
	Description          *string   `gorm:"column:description"`
	PriceCents           int       `gorm:"column:price_cents;not null"`
	StockQuantity        int       `gorm:"column:stock_quantity;not null;default:0"`
	RequiresPrescription bool      `gorm:"column:requires_prescription;not null;default:false"`
	ImageURL             *string   `gorm:"column:image_url"`
	ImageStorageID       *string   `gorm:"column:image_storage_id"`
	IsActive             bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// InStock is derived from the stock counter and never stored.
func (m Medicine) InStock() bool {
	return m.StockQuantity > 0
}
