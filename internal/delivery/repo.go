package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
	"github.com/medicart/medicart-api/pkg/pagination"
)

// Repository persists delivery agents. Claim is the only way an agent leaves
// the available pool.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, agent *models.DeliveryAgent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryAgent, error)
	List(ctx context.Context, filters AgentFilters, cursor *pagination.Cursor, limit int) ([]models.DeliveryAgent, error)
	ListAvailable(ctx context.Context) ([]models.DeliveryAgent, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	SetAvailability(ctx context.Context, id uuid.UUID, status enums.AgentStatus) (bool, error)
	Claim(ctx context.Context, agentID, orderID uuid.UUID) (bool, error)
	MarkBusy(ctx context.Context, agentID, orderID uuid.UUID) (bool, error)
	Release(ctx context.Context, agentID, orderID uuid.UUID, delivered bool) (bool, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64, address *string, at time.Time) error
}

// AgentFilters narrows the admin agent listing.
type AgentFilters struct {
	Status *enums.AgentStatus
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, agent *models.DeliveryAgent) error {
	return r.db.WithContext(ctx).Create(agent).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryAgent, error) {
	var agent models.DeliveryAgent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&agent).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *repository) List(ctx context.Context, filters AgentFilters, cursor *pagination.Cursor, limit int) ([]models.DeliveryAgent, error) {
	q := r.db.WithContext(ctx).Model(&models.DeliveryAgent{})
	if filters.Status != nil {
		q = q.Where("delivery_agents.status = ?", *filters.Status)
	}
	var rows []models.DeliveryAgent
	if err := pagination.Apply(q, "delivery_agents", cursor, limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAvailable returns every available agent, read in primary-key batches so
// ranking always sees the whole pool.
func (r *repository) ListAvailable(ctx context.Context) ([]models.DeliveryAgent, error) {
	var (
		rows  []models.DeliveryAgent
		batch []models.DeliveryAgent
	)
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.AgentStatusAvailable).
		FindInBatches(&batch, availableBatchSize, func(*gorm.DB, int) error {
			rows = append(rows, batch...)
			return nil
		}).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.DeliveryAgent{}).Where("id = ?", id).Updates(updates).Error
}

// SetAvailability toggles between available and offline for agents that are
// not bound to an order.
func (r *repository) SetAvailability(ctx context.Context, id uuid.UUID, status enums.AgentStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.DeliveryAgent{}).
		Where("id = ? AND current_order_id IS NULL AND status IN ?", id,
			[]enums.AgentStatus{enums.AgentStatusAvailable, enums.AgentStatusOffline}).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	return res.RowsAffected == 1, res.Error
}

// Claim flips an available agent to assigned in one conditional write.
func (r *repository) Claim(ctx context.Context, agentID, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.DeliveryAgent{}).
		Where("id = ? AND status = ?", agentID, enums.AgentStatusAvailable).
		Updates(map[string]any{
			"status":           enums.AgentStatusAssigned,
			"current_order_id": orderID,
			"updated_at":       time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) MarkBusy(ctx context.Context, agentID, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.DeliveryAgent{}).
		Where("id = ? AND current_order_id = ? AND status IN ?", agentID, orderID,
			[]enums.AgentStatus{enums.AgentStatusAssigned, enums.AgentStatusBusy}).
		Updates(map[string]any{"status": enums.AgentStatusBusy, "updated_at": time.Now().UTC()})
	return res.RowsAffected == 1, res.Error
}

// Release returns the agent to the pool if it is still bound to orderID.
func (r *repository) Release(ctx context.Context, agentID, orderID uuid.UUID, delivered bool) (bool, error) {
	updates := map[string]any{
		"status":           enums.AgentStatusAvailable,
		"current_order_id": nil,
		"updated_at":       time.Now().UTC(),
	}
	if delivered {
		updates["total_deliveries"] = gorm.Expr("total_deliveries + 1")
	}
	res := r.db.WithContext(ctx).Model(&models.DeliveryAgent{}).
		Where("id = ? AND current_order_id = ?", agentID, orderID).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *repository) UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64, address *string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.DeliveryAgent{}).Where("id = ?", id).Updates(map[string]any{
		"lat":                 lat,
		"lng":                 lng,
		"location_address":    address,
		"location_updated_at": at.UTC(),
		"updated_at":          at.UTC(),
	}).Error
}
