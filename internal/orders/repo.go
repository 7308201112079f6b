package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
	"github.com/medicart/medicart-api/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository returns a gorm-backed order repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order row followed by its items and tracking entries.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(order).Error; err != nil {
		return err
	}
	if len(order.Items) > 0 {
		for i := range order.Items {
			order.Items[i].OrderID = order.ID
			if order.Items[i].ID == uuid.Nil {
				order.Items[i].ID = uuid.New()
			}
		}
		if err := db.Create(&order.Items).Error; err != nil {
			return err
		}
	}
	if len(order.TrackingUpdates) > 0 {
		for i := range order.TrackingUpdates {
			order.TrackingUpdates[i].OrderID = order.ID
			if order.TrackingUpdates[i].ID == uuid.Nil {
				order.TrackingUpdates[i].ID = uuid.New()
			}
		}
		if err := db.Create(&order.TrackingUpdates).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.withDetail(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := r.withDetail(ctx).Where("order_number = ?", orderNumber).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) withDetail(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("name ASC") }).
		Preload("TrackingUpdates", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") })
}

// List returns up to limit+1 orders newest first so callers can build a page.
func (r *repository) List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{}).Preload("Items")
	if filters.UserID != nil {
		q = q.Where("orders.user_id = ?", *filters.UserID)
	}
	if filters.Status != nil {
		q = q.Where("orders.status = ?", *filters.Status)
	}
	if filters.AgentID != nil {
		q = q.Where("orders.delivery_agent_id = ?", *filters.AgentID)
	}

	var rows []models.Order
	if err := pagination.Apply(q, "orders", cursor, limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateGuarded applies updates only while the row still matches guard. The
// boolean reports whether a row changed.
func (r *repository) UpdateGuarded(ctx context.Context, id uuid.UUID, guard Guard, updates map[string]any) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ? AND status = ?", id, guard.Status)
	switch {
	case guard.Unassigned:
		q = q.Where("delivery_agent_id IS NULL")
	case guard.AgentID != nil:
		q = q.Where("delivery_agent_id = ?", *guard.AgentID)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AppendTracking assigns the next sequence number and clamps RecordedAt so the
// log never goes backwards in time.
func (r *repository) AppendTracking(ctx context.Context, update *models.TrackingUpdate) error {
	db := r.db.WithContext(ctx)

	var last []models.TrackingUpdate
	if err := db.Where("order_id = ?", update.OrderID).Order("seq DESC").Limit(1).Find(&last).Error; err != nil {
		return err
	}

	update.Seq = 1
	if len(last) == 1 {
		update.Seq = last[0].Seq + 1
		if update.RecordedAt.Before(last[0].RecordedAt) {
			update.RecordedAt = last[0].RecordedAt
		}
	}
	if update.ID == uuid.Nil {
		update.ID = uuid.New()
	}
	return db.Create(update).Error
}

func (r *repository) FindActiveByAgent(ctx context.Context, agentID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("delivery_agent_id = ?", agentID).
		Where("status NOT IN ?", []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCancelled}).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListAwaitingAgent returns the oldest orders in status that still have no
// agent and were last touched before olderThan.
func (r *repository) ListAwaitingAgent(ctx context.Context, status enums.OrderStatus, olderThan time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND delivery_agent_id IS NULL AND updated_at <= ?", status, olderThan.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
