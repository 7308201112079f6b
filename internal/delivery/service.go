package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/internal/orders"
	"github.com/medicart/medicart-api/pkg/auth"
	"github.com/medicart/medicart-api/pkg/db"
	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
	"github.com/medicart/medicart-api/pkg/geo"
	"github.com/medicart/medicart-api/pkg/logger"
	"github.com/medicart/medicart-api/pkg/metrics"
	"github.com/medicart/medicart-api/pkg/outbox"
	"github.com/medicart/medicart-api/pkg/outbox/payloads"
	"github.com/medicart/medicart-api/pkg/pagination"
	"github.com/medicart/medicart-api/pkg/types"
)

const (
	// ReasonNoAgents is the conflict detail when auto-assignment finds nobody.
	ReasonNoAgents = "NO_AGENTS_AVAILABLE"
	// ReasonAgentTaken is the conflict detail when another request claimed the agent first.
	ReasonAgentTaken = "AGENT_UNAVAILABLE"

	availableBatchSize = 500
	maxAutoAttempts    = 3
	phoneConstraint    = "delivery_agents_phone_key"
	phoneSQLiteColumn  = "delivery_agents.phone"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OrderGateway is the part of the order workflow assignment drives.
type OrderGateway interface {
	Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	AttachAgentTx(ctx context.Context, tx *gorm.DB, input orders.AttachInput) (*models.Order, error)
	RecordAgentLocationTx(ctx context.Context, tx *gorm.DB, agentID uuid.UUID, point types.GeoPoint, label string) (*models.Order, error)
	CompleteDelivery(ctx context.Context, input orders.CompleteInput) (*models.Order, error)
	ListAwaitingAgent(ctx context.Context, idleFor time.Duration, limit int) ([]models.Order, error)
}

// Service manages the agent registry and binds agents to orders.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input CreateAgentInput) (*models.DeliveryAgent, error)
	Update(ctx context.Context, actor auth.Actor, agentID uuid.UUID, input UpdateAgentInput) (*models.DeliveryAgent, error)
	SetAvailability(ctx context.Context, actor auth.Actor, agentID uuid.UUID, status enums.AgentStatus) (*models.DeliveryAgent, error)
	Get(ctx context.Context, actor auth.Actor, agentID uuid.UUID) (*models.DeliveryAgent, error)
	List(ctx context.Context, actor auth.Actor, filters AgentFilters, params pagination.Params) (pagination.Page[AgentView], error)
	ListAvailable(ctx context.Context, actor auth.Actor, orderID *uuid.UUID) ([]AvailableAgent, error)
	Assign(ctx context.Context, actor auth.Actor, orderID, agentID uuid.UUID) (*models.Order, error)
	AutoAssign(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	UpdateLocation(ctx context.Context, actor auth.Actor, agentID uuid.UUID, input LocationInput) (*models.DeliveryAgent, error)
	Complete(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	SweepUnassigned(ctx context.Context, idleFor time.Duration, limit int) (int, error)
	OnPacked(ctx context.Context, orderID uuid.UUID)
}

type CreateAgentInput struct {
	Name          string
	Phone         string
	Email         *string
	VehicleType   enums.VehicleType
	VehicleNumber string
	VehicleModel  *string
	Rating        float64
	Available     bool
}

// UpdateAgentInput patches profile fields; nil fields are left untouched.
type UpdateAgentInput struct {
	Name          *string
	Phone         *string
	Email         *string
	VehicleType   *enums.VehicleType
	VehicleNumber *string
	VehicleModel  *string
	Rating        *float64
}

type LocationInput struct {
	Lat     float64
	Lng     float64
	Address string
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	orders  OrderGateway
	ranker  geo.Ranker
	metrics *metrics.DomainMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the delivery service. A nil ranker defaults to nearest-first.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, orderGateway OrderGateway, ranker geo.Ranker, m *metrics.DomainMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if orderGateway == nil {
		return nil, fmt.Errorf("order gateway required")
	}
	if ranker == nil {
		ranker = geo.NearestFirst{}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  outbox,
		orders:  orderGateway,
		ranker:  ranker,
		metrics: m,
		logg:    logg,
		now:     time.Now,
	}, nil
}

func requireStaff(actor auth.Actor) error {
	if !actor.IsStaff() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	return nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateAgentInput) (*models.DeliveryAgent, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Phone = strings.TrimSpace(input.Phone)
	input.VehicleNumber = strings.TrimSpace(input.VehicleNumber)
	if input.Name == "" || input.Phone == "" || input.VehicleNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name, phone and vehicle number are required")
	}
	if !input.VehicleType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid vehicle type %q", input.VehicleType))
	}
	if input.Rating < 0 || input.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 0 and 5")
	}

	status := enums.AgentStatusOffline
	if input.Available {
		status = enums.AgentStatusAvailable
	}
	agent := &models.DeliveryAgent{
		ID:            uuid.New(),
		Name:          input.Name,
		Phone:         input.Phone,
		Email:         input.Email,
		VehicleType:   input.VehicleType,
		VehicleNumber: input.VehicleNumber,
		VehicleModel:  input.VehicleModel,
		Status:        status,
		Rating:        input.Rating,
	}
	if err := s.repo.Create(ctx, agent); err != nil {
		if isPhoneTaken(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "phone already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create agent")
	}
	s.logg.Info(s.logg.WithAgentID(ctx, agent.ID.String()), "delivery agent created")
	return agent, nil
}

func (s *service) Update(ctx context.Context, actor auth.Actor, agentID uuid.UUID, input UpdateAgentInput) (*models.DeliveryAgent, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be blank")
		}
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Phone != nil {
		if strings.TrimSpace(*input.Phone) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone cannot be blank")
		}
		updates["phone"] = strings.TrimSpace(*input.Phone)
	}
	if input.Email != nil {
		updates["email"] = *input.Email
	}
	if input.VehicleType != nil {
		if !input.VehicleType.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid vehicle type %q", *input.VehicleType))
		}
		updates["vehicle_type"] = *input.VehicleType
	}
	if input.VehicleNumber != nil {
		updates["vehicle_number"] = strings.TrimSpace(*input.VehicleNumber)
	}
	if input.VehicleModel != nil {
		updates["vehicle_model"] = *input.VehicleModel
	}
	if input.Rating != nil {
		if *input.Rating < 0 || *input.Rating > 5 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 0 and 5")
		}
		updates["rating"] = *input.Rating
	}

	if _, err := s.load(ctx, s.repo, agentID); err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		updates["updated_at"] = s.now().UTC()
		if err := s.repo.Update(ctx, agentID, updates); err != nil {
			if isPhoneTaken(err) {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "phone already registered")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent")
		}
	}
	return s.load(ctx, s.repo, agentID)
}

// SetAvailability is the manual on/off-duty switch. Agents bound to an order
// change status only through assignment and delivery.
func (s *service) SetAvailability(ctx context.Context, actor auth.Actor, agentID uuid.UUID, status enums.AgentStatus) (*models.DeliveryAgent, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if status != enums.AgentStatusAvailable && status != enums.AgentStatusOffline {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be available or offline")
	}
	agent, err := s.load(ctx, s.repo, agentID)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.SetAvailability(ctx, agentID, status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent status")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodePreconditionFailed,
			fmt.Sprintf("agent is %s and cannot change availability", agent.Status))
	}
	return s.load(ctx, s.repo, agentID)
}

func (s *service) Get(ctx context.Context, actor auth.Actor, agentID uuid.UUID) (*models.DeliveryAgent, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.load(ctx, s.repo, agentID)
}

func (s *service) List(ctx context.Context, actor auth.Actor, filters AgentFilters, params pagination.Params) (pagination.Page[AgentView], error) {
	if err := requireStaff(actor); err != nil {
		return pagination.Page[AgentView]{}, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[AgentView]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filters, cursor, params.Limit)
	if err != nil {
		return pagination.Page[AgentView]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agents")
	}
	page := pagination.Build(rows, params.Limit, func(a models.DeliveryAgent) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})
	out := pagination.Page[AgentView]{Items: make([]AgentView, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, a := range page.Items {
		out.Items = append(out.Items, NewAgentView(a))
	}
	return out, nil
}

func (s *service) ListAvailable(ctx context.Context, actor auth.Actor, orderID *uuid.UUID) ([]AvailableAgent, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.rankAvailable(ctx, orderID)
}

// rankAvailable orders the available pool by distance from the order's
// pharmacy when both positions are known.
func (s *service) rankAvailable(ctx context.Context, orderID *uuid.UUID) ([]AvailableAgent, error) {
	if orderID == nil {
		return s.rankFrom(ctx, nil)
	}
	order, err := s.orders.Get(ctx, auth.System, *orderID)
	if err != nil {
		return nil, err
	}
	return s.rankFrom(ctx, pharmacyOrigin(order))
}

func pharmacyOrigin(order *models.Order) *types.GeoPoint {
	if point, ok := types.PointFrom(order.PharmacyLat, order.PharmacyLng); ok {
		return &point
	}
	return nil
}

func (s *service) rankFrom(ctx context.Context, origin *types.GeoPoint) ([]AvailableAgent, error) {
	agents, err := s.repo.ListAvailable(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list available agents")
	}
	candidates := make([]geo.Candidate, len(agents))
	for i, a := range agents {
		candidates[i] = geo.Candidate{ID: a.ID.String(), Rating: a.Rating}
		if point, ok := types.PointFrom(a.Lat, a.Lng); ok {
			candidates[i].Location = &point
		}
	}

	ranked := s.ranker.Rank(origin, candidates)
	out := make([]AvailableAgent, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, AvailableAgent{AgentView: NewAgentView(agents[r.Index]), DistanceKM: r.DistanceKM})
	}
	return out, nil
}

func (s *service) Assign(ctx context.Context, actor auth.Actor, orderID, agentID uuid.UUID) (*models.Order, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.assign(ctx, actor, orderID, agentID, false)
}

// assignableOrder reports order-side problems before any agent is claimed.
// AttachAgentTx repeats these checks inside the transaction.
func (s *service) assignableOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.Get(ctx, auth.System, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodePreconditionFailed, fmt.Sprintf("order is already %s", order.Status))
	}
	if order.DeliveryAgentID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already has a delivery agent").
			WithDetails(map[string]any{"order_id": order.ID, "agent_id": *order.DeliveryAgentID})
	}
	return order, nil
}

// assign claims the agent and binds it to the order in one transaction. Any
// failure after the claim rolls the claim back.
func (s *service) assign(ctx context.Context, actor auth.Actor, orderID, agentID uuid.UUID, automatic bool) (*models.Order, error) {
	if _, err := s.assignableOrder(ctx, orderID); err != nil {
		return nil, err
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		agent, err := s.load(ctx, repo, agentID)
		if err != nil {
			return err
		}
		ok, err := repo.Claim(ctx, agentID, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim agent")
		}
		if !ok {
			s.metrics.AssignmentConflict()
			return pkgerrors.New(pkgerrors.CodeConflict, "delivery agent is not available").
				WithDetails(map[string]any{"reason": ReasonAgentTaken, "agent_id": agentID, "status": agent.Status})
		}
		agent.Status = enums.AgentStatusAssigned
		agent.CurrentOrderID = &orderID

		order, err := s.orders.AttachAgentTx(ctx, tx, orders.AttachInput{
			OrderID:   orderID,
			Agent:     *agent,
			Actor:     actor,
			Automatic: automatic,
		})
		if err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	mode := "manual"
	if automatic {
		mode = "auto"
	}
	s.metrics.AgentAssigned(mode)
	logCtx := s.logg.WithAgentID(s.logg.WithOrderID(ctx, orderID.String()), agentID.String())
	s.logg.Info(s.logg.WithField(logCtx, "mode", mode), "delivery agent assigned")
	return result, nil
}

// AutoAssign tries the best ranked candidates in turn, skipping agents that
// another request claimed in the meantime.
func (s *service) AutoAssign(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	order, err := s.assignableOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.rankFrom(ctx, pharmacyOrigin(order))
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, noAgents(orderID)
	}

	for i, c := range candidates {
		if i == maxAutoAttempts {
			break
		}
		order, err := s.assign(ctx, actor, orderID, c.ID, true)
		if err == nil {
			return order, nil
		}
		if conflictReason(err) != ReasonAgentTaken {
			return nil, err
		}
	}
	return nil, noAgents(orderID)
}

func (s *service) UpdateLocation(ctx context.Context, actor auth.Actor, agentID uuid.UUID, input LocationInput) (*models.DeliveryAgent, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	point := types.GeoPoint{Lat: input.Lat, Lng: input.Lng}
	if err := point.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coordinates")
	}
	var address *string
	if trimmed := strings.TrimSpace(input.Address); trimmed != "" {
		address = &trimmed
	}

	now := s.now().UTC()
	var agent *models.DeliveryAgent
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.load(ctx, repo, agentID); err != nil {
			return err
		}
		if err := repo.UpdateLocation(ctx, agentID, point.Lat, point.Lng, address, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent location")
		}

		order, err := s.orders.RecordAgentLocationTx(ctx, tx, agentID, point, input.Address)
		if err != nil {
			return err
		}
		var orderID *uuid.UUID
		if order != nil {
			orderID = &order.ID
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAgentLocationUpdated,
			AggregateType: enums.AggregateDeliveryAgent,
			AggregateID:   agentID,
			Actor:         outbox.NewActorRef(actor.UserID, string(actor.Role)),
			Data: payloads.AgentLocationUpdatedEvent{
				AgentID: agentID,
				OrderID: orderID,
				Lat:     point.Lat,
				Lng:     point.Lng,
				Address: input.Address,
			},
			OccurredAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit location event")
		}

		agent, err = s.load(ctx, repo, agentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return agent, nil
}

func (s *service) Complete(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	return s.orders.CompleteDelivery(ctx, orders.CompleteInput{OrderID: orderID, Actor: actor})
}

// OnPacked auto-assigns newly packed orders. Failures are logged; the sweep
// job retries later.
func (s *service) OnPacked(ctx context.Context, orderID uuid.UUID) {
	if _, err := s.AutoAssign(ctx, auth.System, orderID); err != nil {
		s.logg.Warn(s.logg.WithField(s.logg.WithOrderID(ctx, orderID.String()), "error", err.Error()), "auto-assign on packed failed")
	}
}

// SweepUnassigned auto-assigns packed orders that have waited idleFor without
// an agent. It stops early once the pool is empty.
func (s *service) SweepUnassigned(ctx context.Context, idleFor time.Duration, limit int) (int, error) {
	pending, err := s.orders.ListAwaitingAgent(ctx, idleFor, limit)
	if err != nil {
		return 0, err
	}

	assigned := 0
	var errs error
	for _, order := range pending {
		if ctx.Err() != nil {
			return assigned, multierr.Append(errs, ctx.Err())
		}
		_, err := s.AutoAssign(ctx, auth.System, order.ID)
		switch {
		case err == nil:
			assigned++
		case conflictReason(err) == ReasonNoAgents:
			return assigned, errs
		case pkgerrors.IsCode(err, pkgerrors.CodeConflict), pkgerrors.IsCode(err, pkgerrors.CodePreconditionFailed):
			// Someone else assigned or moved the order first.
		default:
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
		}
	}
	return assigned, errs
}

func (s *service) load(ctx context.Context, repo Repository, agentID uuid.UUID) (*models.DeliveryAgent, error) {
	agent, err := repo.FindByID(ctx, agentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery agent not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
	}
	return agent, nil
}

func noAgents(orderID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "no delivery agents available").
		WithDetails(map[string]any{"reason": ReasonNoAgents, "order_id": orderID})
}

func conflictReason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(string)
	return reason
}

func isPhoneTaken(err error) bool {
	return db.IsUniqueViolation(err, phoneConstraint) || db.IsUniqueViolation(err, phoneSQLiteColumn)
}
