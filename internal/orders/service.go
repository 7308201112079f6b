package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/pkg/auth"
	"github.com/medicart/medicart-api/pkg/config"
	"github.com/medicart/medicart-api/pkg/db"
	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
	"github.com/medicart/medicart-api/pkg/logger"
	"github.com/medicart/medicart-api/pkg/metrics"
	"github.com/medicart/medicart-api/pkg/outbox"
	"github.com/medicart/medicart-api/pkg/outbox/payloads"
	"github.com/medicart/medicart-api/pkg/pagination"
	"github.com/medicart/medicart-api/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns the order lifecycle from checkout to delivery or cancellation.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error)
	Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (pagination.Page[OrderSummary], error)
	Track(ctx context.Context, orderNumber string) (*TrackingView, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	CompleteDelivery(ctx context.Context, input CompleteInput) (*models.Order, error)
	AttachAgentTx(ctx context.Context, tx *gorm.DB, input AttachInput) (*models.Order, error)
	RecordAgentLocationTx(ctx context.Context, tx *gorm.DB, agentID uuid.UUID, point types.GeoPoint, label string) (*models.Order, error)
	ListAwaitingAgent(ctx context.Context, idleFor time.Duration, limit int) ([]models.Order, error)
	SetPackedListener(listener PackedListener)
}

// CheckoutInput selects the shipping address in priority order: inline
// Address, saved AddressID, then the user's default address.
type CheckoutInput struct {
	Actor          auth.Actor
	AddressID      *uuid.UUID
	Address        *types.Address
	PaymentMethod  enums.PaymentMethod
	PrescriptionID *uuid.UUID
	Notes          *string
}

type TransitionInput struct {
	OrderID  uuid.UUID
	Status   enums.OrderStatus
	Message  string
	Location *Location
	Actor    auth.Actor
}

type CancelInput struct {
	OrderID uuid.UUID
	Reason  string
	Actor   auth.Actor
}

type CompleteInput struct {
	OrderID  uuid.UUID
	Message  string
	Location *Location
	Actor    auth.Actor
}

// AttachInput binds an agent the caller has already claimed.
type AttachInput struct {
	OrderID   uuid.UUID
	Agent     models.DeliveryAgent
	Actor     auth.Actor
	Automatic bool
}

// ServiceParams gathers the collaborators of the order service.
type ServiceParams struct {
	Repo                 Repository
	Tx                   txRunner
	Outbox               outboxPublisher
	Cart                 CartStore
	Inventory            Inventory
	Addresses            AddressBook
	Prescriptions        PrescriptionVerifier
	Agents               AgentCoordinator
	Payments             PaymentIntents
	Pricer               *Pricer
	Pharmacy             config.PharmacyConfig
	DeliveryWindow       time.Duration
	EnforcePrescriptions bool
	AutoAssignOnPacked   bool
	Metrics              *metrics.DomainMetrics
	Logger               *logger.Logger
	Now                  func() time.Time
	NewNumber            func(time.Time) string
}

type service struct {
	repo                 Repository
	tx                   txRunner
	outbox               outboxPublisher
	cart                 CartStore
	inventory            Inventory
	addresses            AddressBook
	prescriptions        PrescriptionVerifier
	agents               AgentCoordinator
	payments             PaymentIntents
	pricer               *Pricer
	pharmacy             config.PharmacyConfig
	deliveryWindow       time.Duration
	enforcePrescriptions bool
	autoAssignOnPacked   bool
	metrics              *metrics.DomainMetrics
	logg                 *logger.Logger
	now                  func() time.Time
	newNumber            func(time.Time) string
	packed               PackedListener
}

const (
	orderNumberConstraint       = "orders_order_number_key"
	orderNumberSQLiteConstraint = "orders.order_number"
)

var defaultMessages = map[enums.OrderStatus]string{
	enums.OrderStatusPlaced:         "Order Placed",
	enums.OrderStatusConfirmed:      "Order Confirmed",
	enums.OrderStatusProcessing:     "Order is being prepared",
	enums.OrderStatusPacked:         "Order Packed",
	enums.OrderStatusOutForDelivery: "Out for Delivery",
	enums.OrderStatusDelivered:      "Delivered",
	enums.OrderStatusCancelled:      "Order Cancelled",
}

// NewService builds the order service with the required dependencies.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Cart == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if p.Inventory == nil {
		return nil, fmt.Errorf("inventory required")
	}
	if p.Addresses == nil {
		return nil, fmt.Errorf("address book required")
	}
	if p.Agents == nil {
		return nil, fmt.Errorf("agent coordinator required")
	}
	if p.Pricer == nil {
		return nil, fmt.Errorf("pricer required")
	}
	if p.EnforcePrescriptions && p.Prescriptions == nil {
		return nil, fmt.Errorf("prescription verifier required when prescriptions are enforced")
	}
	if p.Payments == nil {
		p.Payments = LocalPaymentIntents{}
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.NewNumber == nil {
		p.NewNumber = NewOrderNumber
	}
	if strings.TrimSpace(p.Pharmacy.Name) == "" {
		p.Pharmacy.Name = "MediCart Pharmacy"
	}
	return &service{
		repo:                 p.Repo,
		tx:                   p.Tx,
		outbox:               p.Outbox,
		cart:                 p.Cart,
		inventory:            p.Inventory,
		addresses:            p.Addresses,
		prescriptions:        p.Prescriptions,
		agents:               p.Agents,
		payments:             p.Payments,
		pricer:               p.Pricer,
		pharmacy:             p.Pharmacy,
		deliveryWindow:       p.DeliveryWindow,
		enforcePrescriptions: p.EnforcePrescriptions,
		autoAssignOnPacked:   p.AutoAssignOnPacked,
		metrics:              p.Metrics,
		logg:                 p.Logger,
		now:                  p.Now,
		newNumber:            p.NewNumber,
	}, nil
}

func (s *service) SetPackedListener(listener PackedListener) {
	s.packed = listener
}

func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	method := input.PaymentMethod
	if method == "" {
		method = enums.PaymentMethodCOD
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", method))
	}

	address, err := s.resolveAddress(ctx, input)
	if err != nil {
		return nil, err
	}

	userID := input.Actor.UserID
	now := s.now().UTC()
	var created *models.Order

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartItems, err := s.cart.ListForCheckout(ctx, tx, userID)
		if err != nil {
			return asDependency(err, "load cart")
		}
		if len(cartItems) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		lines, subtotal, rxNames, err := buildLines(cartItems)
		if err != nil {
			return err
		}

		if len(rxNames) > 0 && s.enforcePrescriptions {
			if input.PrescriptionID == nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "approved prescription required").
					WithDetails(map[string]any{"medicines": rxNames})
			}
			if err := s.prescriptions.RequireApproved(ctx, tx, userID, *input.PrescriptionID); err != nil {
				return asDependency(err, "verify prescription")
			}
		}

		for _, line := range lines {
			if err := s.inventory.Reserve(ctx, tx, line.MedicineID, line.Quantity); err != nil {
				return asDependency(err, "reserve stock")
			}
		}

		quote := s.pricer.Quote(subtotal, 0)
		order := &models.Order{
			ID:               uuid.New(),
			UserID:           userID,
			SubtotalCents:    quote.SubtotalCents,
			TaxCents:         quote.TaxCents,
			ShippingFeeCents: quote.ShippingFeeCents,
			DiscountCents:    quote.DiscountCents,
			TotalCents:       quote.TotalCents,
			ShippingAddress:  address,
			Status:           enums.OrderStatusPlaced,
			PaymentMethod:    method,
			PaymentStatus:    enums.PaymentStatusPending,
			PrescriptionID:   input.PrescriptionID,
			PharmacyName:     s.pharmacy.Name,
			PharmacyLat:      s.pharmacy.Lat,
			PharmacyLng:      s.pharmacy.Lng,
			Notes:            input.Notes,
			Items:            lines,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if addr := strings.TrimSpace(s.pharmacy.Address); addr != "" {
			order.PharmacyAddress = &addr
		}
		if s.deliveryWindow > 0 {
			eta := now.Add(s.deliveryWindow)
			order.EstimatedDeliveryAt = &eta
		}
		if method == enums.PaymentMethodOnline {
			ref, err := s.payments.CreateIntent(ctx, PaymentIntentRequest{
				OrderID:     order.ID,
				UserID:      userID,
				AmountCents: order.TotalCents,
			})
			if err != nil {
				return asDependency(err, "create payment intent")
			}
			order.PaymentReference = &ref
		}
		order.TrackingUpdates = []models.TrackingUpdate{{
			ID:         uuid.New(),
			OrderID:    order.ID,
			Seq:        1,
			Status:     enums.OrderStatusPlaced,
			Message:    defaultMessages[enums.OrderStatusPlaced],
			RecordedAt: now,
		}}

		if err := s.insertWithNumber(ctx, tx, order, now); err != nil {
			return err
		}
		if err := s.cart.ClearTx(ctx, tx, userID); err != nil {
			return asDependency(err, "clear cart")
		}

		itemCount := 0
		for _, line := range lines {
			itemCount += line.Quantity
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.NewActorRef(userID, string(input.Actor.Role)),
			Data: payloads.OrderPlacedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				UserID:        userID,
				TotalCents:    order.TotalCents,
				ItemCount:     itemCount,
				PaymentMethod: method,
			},
			OccurredAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order placed event")
		}

		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderPlaced()
	logCtx := s.logg.WithOrderID(ctx, created.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "order_number", created.OrderNumber), "order placed")
	return created, nil
}

// insertWithNumber retries order number collisions behind a savepoint so the
// surrounding transaction stays usable.
func (s *service) insertWithNumber(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) error {
	repo := s.repo.WithTx(tx)
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		order.OrderNumber = s.newNumber(now)
		if err := tx.SavePoint("order_number").Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create savepoint")
		}
		err := repo.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, orderNumberConstraint) && !db.IsUniqueViolation(err, orderNumberSQLiteConstraint) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if rbErr := tx.RollbackTo("order_number").Error; rbErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, rbErr, "rollback savepoint")
		}
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique order number")
}

func (s *service) resolveAddress(ctx context.Context, input CheckoutInput) (types.Address, error) {
	if input.Address != nil {
		if missing := input.Address.MissingFields(); len(missing) > 0 {
			return types.Address{}, pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete").
				WithDetails(map[string]any{"missing": missing})
		}
		addr := *input.Address
		if strings.TrimSpace(addr.Country) == "" {
			addr.Country = "IN"
		}
		return addr, nil
	}

	var (
		saved *models.UserAddress
		err   error
	)
	if input.AddressID != nil {
		saved, err = s.addresses.FindForUser(ctx, input.Actor.UserID, *input.AddressID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Address{}, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}
	} else {
		saved, err = s.addresses.DefaultForUser(ctx, input.Actor.UserID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Address{}, pkgerrors.New(pkgerrors.CodeValidation, "shipping address required")
		}
	}
	if err != nil {
		return types.Address{}, asDependency(err, "load address")
	}
	return saved.Snapshot(), nil
}

type shortage struct {
	MedicineID uuid.UUID `json:"medicine_id"`
	Name       string    `json:"name"`
	Requested  int       `json:"requested"`
	Available  int       `json:"available"`
}

// buildLines snapshots cart rows into priced order items. It also returns the
// names of prescription-only medicines.
func buildLines(items []models.CartItem) ([]models.OrderItem, int, []string, error) {
	lines := make([]models.OrderItem, 0, len(items))
	subtotal := 0
	rx := []string{}
	shortages := []shortage{}

	for _, item := range items {
		med := item.Medicine
		if med == nil {
			return nil, 0, nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("medicine %s not found", item.MedicineID))
		}
		if !med.IsActive {
			return nil, 0, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is no longer available", med.Name))
		}
		if item.Quantity > med.StockQuantity {
			shortages = append(shortages, shortage{
				MedicineID: med.ID,
				Name:       med.Name,
				Requested:  item.Quantity,
				Available:  med.StockQuantity,
			})
			continue
		}
		if med.RequiresPrescription {
			rx = append(rx, med.Name)
		}
		lineTotal := med.PriceCents * item.Quantity
		subtotal += lineTotal
		lines = append(lines, models.OrderItem{
			ID:                   uuid.New(),
			MedicineID:           med.ID,
			Name:                 med.Name,
			Quantity:             item.Quantity,
			UnitPriceCents:       med.PriceCents,
			LineTotalCents:       lineTotal,
			RequiresPrescription: med.RequiresPrescription,
		})
	}

	if len(shortages) > 0 {
		return nil, 0, nil, pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
			WithDetails(map[string]any{"items": shortages})
	}
	return lines, subtotal, rx, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	if !actor.CanAccess(order.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

// List scopes customers to their own orders; staff may filter freely.
func (s *service) List(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (pagination.Page[OrderSummary], error) {
	if !actor.IsStaff() {
		if actor.UserID == uuid.Nil {
			return pagination.Page[OrderSummary]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
		}
		uid := actor.UserID
		filters.UserID = &uid
		filters.AgentID = nil
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[OrderSummary]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filters, cursor, params.Limit)
	if err != nil {
		return pagination.Page[OrderSummary]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	page := pagination.Build(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	out := pagination.Page[OrderSummary]{Items: make([]OrderSummary, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, o := range page.Items {
		out.Items = append(out.Items, NewOrderSummary(o))
	}
	return out, nil
}

func (s *service) Track(ctx context.Context, orderNumber string) (*TrackingView, error) {
	orderNumber = strings.ToUpper(strings.TrimSpace(orderNumber))
	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	order, err := s.repo.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	view := NewTrackingView(*order)
	return &view, nil
}

// Transition moves an order exactly one step forward along the lifecycle.
// Cancelled and delivered are routed to their dedicated operations.
func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if !input.Actor.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", input.Status))
	}
	switch input.Status {
	case enums.OrderStatusCancelled:
		return s.Cancel(ctx, CancelInput{OrderID: input.OrderID, Reason: input.Message, Actor: input.Actor})
	case enums.OrderStatusDelivered:
		return s.CompleteDelivery(ctx, CompleteInput{
			OrderID:  input.OrderID,
			Message:  input.Message,
			Location: input.Location,
			Actor:    input.Actor,
		})
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByID(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "order not found", "load order")
		}
		if order.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodePreconditionFailed, fmt.Sprintf("order is already %s", order.Status))
		}
		if input.Status.Rank() != order.Status.Rank()+1 {
			return pkgerrors.New(pkgerrors.CodePreconditionFailed,
				fmt.Sprintf("cannot move order from %s to %s", order.Status, input.Status)).
				WithDetails(map[string]any{"next_status": order.Status.Next()})
		}
		if input.Status == enums.OrderStatusOutForDelivery {
			if order.DeliveryAgentID == nil {
				return pkgerrors.New(pkgerrors.CodePreconditionFailed, "assign a delivery agent before dispatch")
			}
			if err := s.agents.MarkBusy(ctx, tx, *order.DeliveryAgentID, order.ID); err != nil {
				return asDependency(err, "mark agent busy")
			}
		}

		if err := s.advance(ctx, tx, order, step{
			to:       input.Status,
			message:  input.Message,
			location: input.Location,
			actor:    input.Actor,
		}); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Status == enums.OrderStatusPacked && s.autoAssignOnPacked && s.packed != nil && result.DeliveryAgentID == nil {
		s.packed.OnPacked(ctx, result.ID)
		if refreshed, err := s.repo.FindByID(ctx, result.ID); err == nil {
			result = refreshed
		}
	}
	return result, nil
}

// Cancel restores stock and frees the bound agent. Allowed only before the
// order is packed.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	var result *models.Order
	var releasedAgent *uuid.UUID

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByID(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "order not found", "load order")
		}
		if !input.Actor.CanAccess(order.UserID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
		if !cancellable(order.Status) {
			return pkgerrors.New(pkgerrors.CodePreconditionFailed,
				fmt.Sprintf("order cannot be cancelled once %s", order.Status))
		}

		for _, item := range order.Items {
			if err := s.inventory.Release(ctx, tx, item.MedicineID, item.Quantity); err != nil {
				return asDependency(err, "restore stock")
			}
		}
		if order.DeliveryAgentID != nil {
			if err := s.agents.Release(ctx, tx, *order.DeliveryAgentID, order.ID, false); err != nil {
				return asDependency(err, "release agent")
			}
			releasedAgent = order.DeliveryAgentID
		}

		now := s.now().UTC()
		extra := map[string]any{"cancelled_at": now}
		reason := strings.TrimSpace(input.Reason)
		if reason != "" {
			extra["cancel_reason"] = reason
		}
		if order.PaymentStatus == enums.PaymentStatusPaid {
			extra["payment_status"] = enums.PaymentStatusRefunded
		}

		message := defaultMessages[enums.OrderStatusCancelled]
		if reason != "" {
			message = message + ": " + reason
		}
		if err := s.advance(ctx, tx, order, step{
			to:      enums.OrderStatusCancelled,
			message: message,
			extra:   extra,
			actor:   input.Actor,
		}); err != nil {
			return err
		}
		order.CancelledAt = &now
		if reason != "" {
			order.CancelReason = &reason
		}
		if order.PaymentStatus == enums.PaymentStatusPaid {
			order.PaymentStatus = enums.PaymentStatusRefunded
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.NewActorRef(input.Actor.UserID, string(input.Actor.Role)),
			Data: payloads.OrderCancelledEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				UserID:        order.UserID,
				Reason:        reason,
				ReleasedAgent: releasedAgent,
				CancelledAt:   now,
			},
			OccurredAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order cancelled event")
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, result.ID.String()), "order cancelled")
	return result, nil
}

// CompleteDelivery marks an out-for-delivery order delivered, settles cash on
// delivery and frees the agent with one more completed delivery.
func (s *service) CompleteDelivery(ctx context.Context, input CompleteInput) (*models.Order, error) {
	if !input.Actor.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByID(ctx, input.OrderID)
		if err != nil {
			return notFoundOr(err, "order not found", "load order")
		}
		if order.Status != enums.OrderStatusOutForDelivery {
			return pkgerrors.New(pkgerrors.CodePreconditionFailed,
				fmt.Sprintf("order must be out for delivery, is %s", order.Status))
		}
		if order.DeliveryAgentID == nil {
			return pkgerrors.New(pkgerrors.CodePreconditionFailed, "order has no delivery agent")
		}
		agentID := *order.DeliveryAgentID
		if err := s.agents.Release(ctx, tx, agentID, order.ID, true); err != nil {
			return asDependency(err, "release agent")
		}

		now := s.now().UTC()
		extra := map[string]any{"delivered_at": now}
		settle := order.PaymentMethod == enums.PaymentMethodCOD && order.PaymentStatus == enums.PaymentStatusPending
		if settle {
			extra["payment_status"] = enums.PaymentStatusPaid
		}
		if err := s.advance(ctx, tx, order, step{
			to:       enums.OrderStatusDelivered,
			message:  input.Message,
			location: input.Location,
			extra:    extra,
			actor:    input.Actor,
		}); err != nil {
			return err
		}
		order.DeliveredAt = &now
		if settle {
			order.PaymentStatus = enums.PaymentStatusPaid
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.NewActorRef(input.Actor.UserID, string(input.Actor.Role)),
			Data: payloads.OrderDeliveredEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				AgentID:     agentID,
				DeliveredAt: now,
			},
			OccurredAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order delivered event")
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AttachAgentTx records the agent on the order and confirms a placed order.
// The caller owns the transaction and must already hold the agent.
func (s *service) AttachAgentTx(ctx context.Context, tx *gorm.DB, input AttachInput) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodePreconditionFailed, fmt.Sprintf("order is already %s", order.Status))
	}
	if order.DeliveryAgentID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already has a delivery agent").
			WithDetails(map[string]any{"order_id": order.ID, "agent_id": *order.DeliveryAgentID})
	}

	next := order.Status
	if next == enums.OrderStatusPlaced {
		next = enums.OrderStatusConfirmed
	}
	snapshot := input.Agent.Snapshot()
	if err := s.advance(ctx, tx, order, step{
		to:       next,
		message:  fmt.Sprintf("Delivery agent %s assigned", input.Agent.Name),
		extra:    map[string]any{"delivery_agent_id": input.Agent.ID, "agent_snapshot": snapshot},
		guard:    Guard{Unassigned: true},
		conflict: "order already has a delivery agent",
		actor:    input.Actor,
	}); err != nil {
		return nil, err
	}
	agentID := input.Agent.ID
	order.DeliveryAgentID = &agentID
	order.AgentSnapshot = &snapshot

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderAgentAssigned,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.NewActorRef(input.Actor.UserID, string(input.Actor.Role)),
		Data: payloads.AgentAssignedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			AgentID:     agentID,
			AgentName:   input.Agent.Name,
			Automatic:   input.Automatic,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit agent assigned event")
	}
	return order, nil
}

// RecordAgentLocationTx appends a location entry to the agent's active order,
// if there is one. The order status does not change.
func (s *service) RecordAgentLocationTx(ctx context.Context, tx *gorm.DB, agentID uuid.UUID, point types.GeoPoint, label string) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindActiveByAgent(ctx, agentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active order")
	}

	p := point
	if strings.TrimSpace(label) == "" {
		label = fmt.Sprintf("%.5f,%.5f", point.Lat, point.Lng)
	}
	if err := s.advance(ctx, tx, order, step{
		to:       order.Status,
		message:  "Delivery agent location updated",
		location: &Location{Label: label, Point: &p},
		actor:    auth.System,
	}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ListAwaitingAgent(ctx context.Context, idleFor time.Duration, limit int) ([]models.Order, error) {
	rows, err := s.repo.ListAwaitingAgent(ctx, enums.OrderStatusPacked, s.now().UTC().Add(-idleFor), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders awaiting agent")
	}
	return rows, nil
}

type step struct {
	to       enums.OrderStatus
	message  string
	location *Location
	extra    map[string]any
	guard    Guard
	conflict string
	actor    auth.Actor
}

// advance applies one guarded status write plus exactly one tracking entry.
func (s *service) advance(ctx context.Context, tx *gorm.DB, order *models.Order, st step) error {
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()
	from := order.Status

	updates := map[string]any{"status": st.to, "updated_at": now}
	for k, v := range st.extra {
		updates[k] = v
	}
	guard := st.guard
	guard.Status = from
	if !guard.Unassigned {
		if order.DeliveryAgentID == nil {
			guard.Unassigned = true
		} else {
			agentID := *order.DeliveryAgentID
			guard.AgentID = &agentID
		}
	}

	ok, err := repo.UpdateGuarded(ctx, order.ID, guard, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
	}
	if !ok {
		msg := st.conflict
		if msg == "" {
			msg = "order was modified concurrently"
		}
		return pkgerrors.New(pkgerrors.CodeConflict, msg).WithDetails(map[string]any{"order_id": order.ID})
	}

	message := strings.TrimSpace(st.message)
	if message == "" {
		message = defaultMessages[st.to]
	}
	update := models.TrackingUpdate{
		OrderID:    order.ID,
		Status:     st.to,
		Message:    message,
		RecordedAt: now,
	}
	if st.location != nil {
		if label := strings.TrimSpace(st.location.Label); label != "" {
			update.Location = &label
		}
		if st.location.Point != nil {
			lat, lng := st.location.Point.Lat, st.location.Point.Lng
			update.Lat, update.Lng = &lat, &lng
		}
	}
	if err := repo.AppendTracking(ctx, &update); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append tracking update")
	}

	order.Status = st.to
	order.UpdatedAt = now
	order.TrackingUpdates = append(order.TrackingUpdates, update)

	if from == st.to {
		return nil
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.NewActorRef(st.actor.UserID, string(st.actor.Role)),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			From:        from,
			To:          st.to,
			Message:     message,
			Location:    update.Location,
			ChangedAt:   update.RecordedAt,
		},
		OccurredAt: now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit status changed event")
	}
	s.metrics.OrderTransition(string(st.to))
	return nil
}

func cancellable(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusPlaced, enums.OrderStatusConfirmed, enums.OrderStatusProcessing:
		return true
	}
	return false
}

func notFoundOr(err error, notFoundMsg, dependencyMsg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, dependencyMsg)
}

// asDependency keeps typed errors from collaborators and wraps the rest.
func asDependency(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
