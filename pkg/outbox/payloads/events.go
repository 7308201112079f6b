package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/medicart/medicart-api/pkg/enums"
)

// OrderPlacedEvent is emitted once per successful checkout.
type OrderPlacedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	UserID        uuid.UUID           `json:"user_id"`
	TotalCents    int                 `json:"total_cents"`
	ItemCount     int                 `json:"item_count"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
}

// OrderStatusChangedEvent records every lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	Message     string            `json:"message"`
	Location    *string           `json:"location,omitempty"`
	ChangedAt   time.Time         `json:"changed_at"`
}

// OrderCancelledEvent is emitted when an order is cancelled and stock restored.
type OrderCancelledEvent struct {
	OrderID       uuid.UUID  `json:"order_id"`
	OrderNumber   string     `json:"order_number"`
	UserID        uuid.UUID  `json:"user_id"`
	Reason        string     `json:"reason,omitempty"`
	ReleasedAgent *uuid.UUID `json:"released_agent_id,omitempty"`
	CancelledAt   time.Time  `json:"cancelled_at"`
}

// AgentAssignedEvent is emitted when a delivery agent is bound to an order.
type AgentAssignedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	AgentID     uuid.UUID `json:"agent_id"`
	AgentName   string    `json:"agent_name"`
	Automatic   bool      `json:"automatic"`
}

// OrderDeliveredEvent is emitted on delivery completion.
type OrderDeliveredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	AgentID     uuid.UUID `json:"agent_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// AgentLocationUpdatedEvent carries the courier's latest position.
type AgentLocationUpdatedEvent struct {
	AgentID uuid.UUID  `json:"agent_id"`
	OrderID *uuid.UUID `json:"order_id,omitempty"`
	Lat     float64    `json:"lat"`
	Lng     float64    `json:"lng"`
	Address string     `json:"address,omitempty"`
}

// PrescriptionUploadedEvent notifies pharmacists of a new upload.
type PrescriptionUploadedEvent struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	UserID         uuid.UUID `json:"user_id"`
	ImageCount     int       `json:"image_count"`
}

// PrescriptionReviewedEvent carries the pharmacist decision.
type PrescriptionReviewedEvent struct {
	PrescriptionID uuid.UUID                `json:"prescription_id"`
	UserID         uuid.UUID                `json:"user_id"`
	Status         enums.PrescriptionStatus `json:"status"`
	ReviewedBy     uuid.UUID                `json:"reviewed_by"`
	ReviewedAt     time.Time                `json:"reviewed_at"`
}
