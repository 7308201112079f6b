package medicines

import (
	"time"

	"github.com/google/uuid"

	"github.com/medicart/medicart-api/pkg/db/models"
)

// MedicineView is the catalog JSON shape; InStock is derived from stock.
type MedicineView struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	GenericName          *string   `json:"generic_name,omitempty"`
	Category             string    `json:"category"`
	Manufacturer         *string   `json:"manufacturer,omitempty"`
	Description          *string   `json:"description,omitempty"`
	PriceCents           int       `json:"price_cents"`
	StockQuantity        int       `json:"stock_quantity"`
	InStock              bool      `json:"in_stock"`
	RequiresPrescription bool      `json:"requires_prescription"`
	ImageURL             *string   `json:"image_url,omitempty"`
	IsActive             bool      `json:"is_active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func NewMedicineView(m models.Medicine) MedicineView {
	return MedicineView{
		ID:                   m.ID,
		Name:                 m.Name,
		GenericName:          m.GenericName,
		Category:             m.Category,
		Manufacturer:         m.Manufacturer,
		Description:          m.Description,
		PriceCents:           m.PriceCents,
		StockQuantity:        m.StockQuantity,
		InStock:              m.InStock(),
		RequiresPrescription: m.RequiresPrescription,
		ImageURL:             m.ImageURL,
		IsActive:             m.IsActive,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}
