package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
	"github.com/medicart/medicart-api/pkg/types"
)

// OrderView is the JSON shape of a full order.
type OrderView struct {
	ID                  uuid.UUID            `json:"id"`
	OrderNumber         string               `json:"order_number"`
	UserID              uuid.UUID            `json:"user_id"`
	Items               []OrderItemView      `json:"items"`
	SubtotalCents       int                  `json:"subtotal_cents"`
	TaxCents            int                  `json:"tax_cents"`
	ShippingFeeCents    int                  `json:"shipping_fee_cents"`
	DiscountCents       int                  `json:"discount_cents"`
	TotalCents          int                  `json:"total_cents"`
	ShippingAddress     types.Address        `json:"shipping_address"`
	Status              enums.OrderStatus    `json:"status"`
	PaymentMethod       enums.PaymentMethod  `json:"payment_method"`
	PaymentStatus       enums.PaymentStatus  `json:"payment_status"`
	PaymentReference    *string              `json:"payment_reference,omitempty"`
	PrescriptionID      *uuid.UUID           `json:"prescription_id,omitempty"`
	DeliveryAgentID     *uuid.UUID           `json:"delivery_agent_id,omitempty"`
	DeliveryAgent       *types.AgentSnapshot `json:"delivery_agent,omitempty"`
	Pharmacy            PharmacyView         `json:"pharmacy"`
	EstimatedDeliveryAt *time.Time           `json:"estimated_delivery_at,omitempty"`
	DeliveredAt         *time.Time           `json:"delivered_at,omitempty"`
	CancelledAt         *time.Time           `json:"cancelled_at,omitempty"`
	CancelReason        *string              `json:"cancel_reason,omitempty"`
	Notes               *string              `json:"notes,omitempty"`
	TrackingUpdates     []TrackingUpdateView `json:"tracking_updates"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

type OrderItemView struct {
	ID                   uuid.UUID `json:"id"`
	MedicineID           uuid.UUID `json:"medicine_id"`
	Name                 string    `json:"name"`
	Quantity             int       `json:"quantity"`
	UnitPriceCents       int       `json:"unit_price_cents"`
	LineTotalCents       int       `json:"line_total_cents"`
	RequiresPrescription bool      `json:"requires_prescription"`
}

type TrackingUpdateView struct {
	Seq        int               `json:"seq"`
	Status     enums.OrderStatus `json:"status"`
	Message    string            `json:"message"`
	Location   *string           `json:"location,omitempty"`
	Lat        *float64          `json:"lat,omitempty"`
	Lng        *float64          `json:"lng,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}

type PharmacyView struct {
	Name    string   `json:"name"`
	Address *string  `json:"address,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// OrderSummary is the list-row projection of an order.
type OrderSummary struct {
	ID                  uuid.UUID           `json:"id"`
	OrderNumber         string              `json:"order_number"`
	UserID              uuid.UUID           `json:"user_id"`
	Status              enums.OrderStatus   `json:"status"`
	PaymentMethod       enums.PaymentMethod `json:"payment_method"`
	PaymentStatus       enums.PaymentStatus `json:"payment_status"`
	TotalCents          int                 `json:"total_cents"`
	ItemCount           int                 `json:"item_count"`
	DeliveryAgentID     *uuid.UUID          `json:"delivery_agent_id,omitempty"`
	EstimatedDeliveryAt *time.Time          `json:"estimated_delivery_at,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
}

// TrackingView is what the public tracking endpoint exposes. It carries no
// customer identity, address or pricing.
type TrackingView struct {
	OrderNumber         string               `json:"order_number"`
	Status              enums.OrderStatus    `json:"status"`
	EstimatedDeliveryAt *time.Time           `json:"estimated_delivery_at,omitempty"`
	DeliveredAt         *time.Time           `json:"delivered_at,omitempty"`
	DeliveryAgent       *types.AgentSnapshot `json:"delivery_agent,omitempty"`
	Pharmacy            PharmacyView         `json:"pharmacy"`
	TrackingUpdates     []TrackingUpdateView `json:"tracking_updates"`
}

func NewOrderView(o models.Order) OrderView {
	items := make([]OrderItemView, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemView{
			ID:                   item.ID,
			MedicineID:           item.MedicineID,
			Name:                 item.Name,
			Quantity:             item.Quantity,
			UnitPriceCents:       item.UnitPriceCents,
			LineTotalCents:       item.LineTotalCents,
			RequiresPrescription: item.RequiresPrescription,
		})
	}
	return OrderView{
		ID:                  o.ID,
		OrderNumber:         o.OrderNumber,
		UserID:              o.UserID,
		Items:               items,
		SubtotalCents:       o.SubtotalCents,
		TaxCents:            o.TaxCents,
		ShippingFeeCents:    o.ShippingFeeCents,
		DiscountCents:       o.DiscountCents,
		TotalCents:          o.TotalCents,
		ShippingAddress:     o.ShippingAddress,
		Status:              o.Status,
		PaymentMethod:       o.PaymentMethod,
		PaymentStatus:       o.PaymentStatus,
		PaymentReference:    o.PaymentReference,
		PrescriptionID:      o.PrescriptionID,
		DeliveryAgentID:     o.DeliveryAgentID,
		DeliveryAgent:       o.AgentSnapshot,
		Pharmacy:            pharmacyView(o),
		EstimatedDeliveryAt: o.EstimatedDeliveryAt,
		DeliveredAt:         o.DeliveredAt,
		CancelledAt:         o.CancelledAt,
		CancelReason:        o.CancelReason,
		Notes:               o.Notes,
		TrackingUpdates:     trackingViews(o.TrackingUpdates),
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
}

func NewOrderSummary(o models.Order) OrderSummary {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return OrderSummary{
		ID:                  o.ID,
		OrderNumber:         o.OrderNumber,
		UserID:              o.UserID,
		Status:              o.Status,
		PaymentMethod:       o.PaymentMethod,
		PaymentStatus:       o.PaymentStatus,
		TotalCents:          o.TotalCents,
		ItemCount:           count,
		DeliveryAgentID:     o.DeliveryAgentID,
		EstimatedDeliveryAt: o.EstimatedDeliveryAt,
		CreatedAt:           o.CreatedAt,
	}
}

func NewTrackingView(o models.Order) TrackingView {
	return TrackingView{
		OrderNumber:         o.OrderNumber,
		Status:              o.Status,
		EstimatedDeliveryAt: o.EstimatedDeliveryAt,
		DeliveredAt:         o.DeliveredAt,
		DeliveryAgent:       o.AgentSnapshot,
		Pharmacy:            pharmacyView(o),
		TrackingUpdates:     trackingViews(o.TrackingUpdates),
	}
}

func pharmacyView(o models.Order) PharmacyView {
	return PharmacyView{
		Name:    o.PharmacyName,
		Address: o.PharmacyAddress,
		Lat:     o.PharmacyLat,
		Lng:     o.PharmacyLng,
	}
}

func trackingViews(updates []models.TrackingUpdate) []TrackingUpdateView {
	out := make([]TrackingUpdateView, 0, len(updates))
	for _, u := range updates {
		out = append(out, TrackingUpdateView{
			Seq:        u.Seq,
			Status:     u.Status,
			Message:    u.Message,
			Location:   u.Location,
			Lat:        u.Lat,
			Lng:        u.Lng,
			RecordedAt: u.RecordedAt,
		})
	}
	return out
}
