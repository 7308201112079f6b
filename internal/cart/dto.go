package cart

import (
	"github.com/google/uuid"

	"github.com/medicart/medicart-api/pkg/db/models"
)

// View is the cart priced at current catalog prices.
type View struct {
	Items                []LineView `json:"items"`
	ItemCount            int        `json:"item_count"`
	SubtotalCents        int        `json:"subtotal_cents"`
	RequiresPrescription bool       `json:"requires_prescription"`
	Estimate             *Estimate  `json:"estimate,omitempty"`
}

// LineView is one cart line. Unavailable lines are shown but not priced.
type LineView struct {
	MedicineID           uuid.UUID `json:"medicine_id"`
	Name                 string    `json:"name"`
	ImageURL             *string   `json:"image_url,omitempty"`
	Quantity             int       `json:"quantity"`
	UnitPriceCents       int       `json:"unit_price_cents"`
	LineTotalCents       int       `json:"line_total_cents"`
	RequiresPrescription bool      `json:"requires_prescription"`
	Available            bool      `json:"available"`
	StockQuantity        int       `json:"stock_quantity"`
}

// Estimate previews what checkout would charge for the current subtotal.
type Estimate struct {
	SubtotalCents    int `json:"subtotal_cents"`
	TaxCents         int `json:"tax_cents"`
	ShippingFeeCents int `json:"shipping_fee_cents"`
	TotalCents       int `json:"total_cents"`
}

// NewView derives line totals and the subtotal from preloaded cart items.
func NewView(items []models.CartItem) View {
	view := View{Items: make([]LineView, 0, len(items))}
	for _, item := range items {
		line := LineView{MedicineID: item.MedicineID, Quantity: item.Quantity}
		if m := item.Medicine; m != nil {
			line.Name = m.Name
			line.ImageURL = m.ImageURL
			line.UnitPriceCents = m.PriceCents
			line.RequiresPrescription = m.RequiresPrescription
			line.StockQuantity = m.StockQuantity
			line.Available = m.IsActive && m.StockQuantity >= item.Quantity
		}
		if line.Available {
			line.LineTotalCents = line.UnitPriceCents * line.Quantity
			view.SubtotalCents += line.LineTotalCents
			view.ItemCount += line.Quantity
			if line.RequiresPrescription {
				view.RequiresPrescription = true
			}
		}
		view.Items = append(view.Items, line)
	}
	return view
}
