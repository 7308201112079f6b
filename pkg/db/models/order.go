package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/medicart/medicart-api/pkg/enums"
	"github.com/medicart/medicart-api/pkg/types"
)

// Order is the workflow document created at checkout.
type Order struct {
	ID                  uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber         string               `gorm:"column:order_number;not null;uniqueIndex:orders_order_number_key"`
	UserID              uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index"`
	SubtotalCents       int                  `gorm:"column:subtotal_cents;not null"`
	TaxCents            int                  `gorm:"column:tax_cents;not null;default:0"`
	ShippingFeeCents    int                  `gorm:"column:shipping_fee_cents;not null;default:0"`
	DiscountCents       int                  `gorm:"column:discount_cents;not null;default:0"`
	TotalCents          int                  `gorm:"column:total_cents;not null"`
	ShippingAddress     types.Address        `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	Status              enums.OrderStatus    `gorm:"column:status;type:text;not null;default:'placed'"`
	PaymentMethod       enums.PaymentMethod  `gorm:"column:payment_method;type:text;not null;default:'cod'"`
	PaymentStatus       enums.PaymentStatus  `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentReference    *string              `gorm:"column:payment_reference"`
	PrescriptionID      *uuid.UUID           `gorm:"column:prescription_id;type:uuid"`
	DeliveryAgentID     *uuid.UUID           `gorm:"column:delivery_agent_id;type:uuid;index"`
	AgentSnapshot       *types.AgentSnapshot `gorm:"column:agent_snapshot;type:jsonb;serializer:json"`
	PharmacyName        string               `gorm:"column:pharmacy_name;not null"`
	PharmacyAddress     *string              `gorm:"column:pharmacy_address"`
	PharmacyLat         *float64             `gorm:"column:pharmacy_lat"`
	PharmacyLng         *float64             `gorm:"column:pharmacy_lng"`
	EstimatedDeliveryAt *time.Time           `gorm:"column:estimated_delivery_at"`
	DeliveredAt         *time.Time           `gorm:"column:delivered_at"`
	CancelledAt         *time.Time           `gorm:"column:cancelled_at"`
	CancelReason        *string              `gorm:"column:cancel_reason"`
	Notes               *string              `gorm:"column:notes"`
	Items               []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	TrackingUpdates     []TrackingUpdate     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is a priced line copied from the cart at checkout.
type OrderItem struct {
	ID                   uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID              uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	MedicineID           uuid.UUID `gorm:"column:medicine_id;type:uuid;not null"`
	Name                 string    `gorm:"column:name;not null"`
	Quantity             int       `gorm:"column:quantity;not null"`
	UnitPriceCents       int       `gorm:"column:unit_price_cents;not null"`
	LineTotalCents       int       `gorm:"column:line_total_cents;not null"`
	RequiresPrescription bool      `gorm:"column:requires_prescription;not null;default:false"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TrackingUpdate is one append-only entry of an order's tracking log.
// Seq orders entries within an order; RecordedAt never decreases with Seq.
type TrackingUpdate struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID         `gorm:"column:order_id;type:uuid;not null;uniqueIndex:tracking_updates_order_seq_key"`
	Seq        int               `gorm:"column:seq;not null;uniqueIndex:tracking_updates_order_seq_key"`
	Status     enums.OrderStatus `gorm:"column:status;type:text;not null"`
	Message    string            `gorm:"column:message;not null"`
	Location   *string           `gorm:"column:location"`
	Lat        *float64          `gorm:"column:lat"`
	Lng        *float64          `gorm:"column:lng"`
	RecordedAt time.Time         `gorm:"column:recorded_at;not null"`
}

func (TrackingUpdate) TableName() string {
	return "order_tracking_updates"
}

// LatestUpdate returns the newest tracking entry, if any.
func (o Order) LatestUpdate() (TrackingUpdate, bool) {
	if len(o.TrackingUpdates) == 0 {
		return TrackingUpdate{}, false
	}
	return o.TrackingUpdates[len(o.TrackingUpdates)-1], true
}
