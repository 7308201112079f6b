package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
	"github.com/medicart/medicart-api/pkg/pagination"
	"github.com/medicart/medicart-api/pkg/types"
)

// Repository defines persistence operations for orders and their tracking log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	UpdateGuarded(ctx context.Context, id uuid.UUID, guard Guard, updates map[string]any) (bool, error)
	AppendTracking(ctx context.Context, update *models.TrackingUpdate) error
	FindActiveByAgent(ctx context.Context, agentID uuid.UUID) (*models.Order, error)
	ListAwaitingAgent(ctx context.Context, status enums.OrderStatus, olderThan time.Time, limit int) ([]models.Order, error)
}

// Guard is the optimistic condition an order row must still satisfy for an
// update to apply. AgentID pins the bound agent; Unassigned requires none.
type Guard struct {
	Status     enums.OrderStatus
	Unassigned bool
	AgentID    *uuid.UUID
}

// ListFilters narrows order listings. Nil fields are ignored.
type ListFilters struct {
	UserID  *uuid.UUID
	Status  *enums.OrderStatus
	AgentID *uuid.UUID
}

// CartStore exposes the slice of the cart checkout needs.
type CartStore interface {
	ListForCheckout(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]models.CartItem, error)
	ClearTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

// Inventory reserves and restores medicine stock inside the caller's tx.
type Inventory interface {
	Reserve(ctx context.Context, tx *gorm.DB, medicineID uuid.UUID, qty int) error
	Release(ctx context.Context, tx *gorm.DB, medicineID uuid.UUID, qty int) error
}

// AddressBook resolves saved shipping addresses. Missing rows surface as
// gorm.ErrRecordNotFound.
type AddressBook interface {
	FindForUser(ctx context.Context, userID, addressID uuid.UUID) (*models.UserAddress, error)
	DefaultForUser(ctx context.Context, userID uuid.UUID) (*models.UserAddress, error)
}

// PrescriptionVerifier confirms that a prescription backs a checkout.
type PrescriptionVerifier interface {
	RequireApproved(ctx context.Context, tx *gorm.DB, userID, prescriptionID uuid.UUID) error
}

// AgentCoordinator moves the bound delivery agent along with the order.
type AgentCoordinator interface {
	MarkBusy(ctx context.Context, tx *gorm.DB, agentID, orderID uuid.UUID) error
	Release(ctx context.Context, tx *gorm.DB, agentID, orderID uuid.UUID, delivered bool) error
}

// PaymentIntents creates the gateway reference for online payments.
type PaymentIntents interface {
	CreateIntent(ctx context.Context, req PaymentIntentRequest) (string, error)
}

type PaymentIntentRequest struct {
	OrderID     uuid.UUID
	UserID      uuid.UUID
	AmountCents int
}

// PackedListener is notified after an order reaches packed.
type PackedListener interface {
	OnPacked(ctx context.Context, orderID uuid.UUID)
}

// Location is an optional position attached to a tracking update.
type Location struct {
	Label string
	Point *types.GeoPoint
}
