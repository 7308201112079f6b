package prescriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
	"github.com/medicart/medicart-api/pkg/pagination"
)

// Repository defines prescription persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, p *models.Prescription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Prescription, error)
	List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Prescription, error)
	StartReview(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	RecordDecision(ctx context.Context, id uuid.UUID, decision models.Prescription) (bool, error)
	DeleteUploaded(ctx context.Context, id, userID uuid.UUID) (bool, error)
}

// ListFilters narrows prescription listings.
type ListFilters struct {
	UserID *uuid.UUID
	Status *enums.PrescriptionStatus
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

func (r *repository) Create(ctx context.Context, p *models.Prescription) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Prescription, error) {
	var p models.Prescription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Prescription, error) {
	q := r.db.WithContext(ctx).Model(&models.Prescription{})
	if filters.UserID != nil {
		q = q.Where("prescriptions.user_id = ?", *filters.UserID)
	}
	if filters.Status != nil {
		q = q.Where("prescriptions.status = ?", *filters.Status)
	}
	var rows []models.Prescription
	if err := pagination.Apply(q, "prescriptions", cursor, limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// StartReview moves an uploaded prescription under review.
func (r *repository) StartReview(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Prescription{}).
		Where("id = ? AND status = ?", id, enums.PrescriptionStatusUploaded).
		Updates(map[string]any{"status": enums.PrescriptionStatusUnderReview, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordDecision stamps the review fields only while the prescription is
// still undecided, so a decision is written at most once.
func (r *repository) RecordDecision(ctx context.Context, id uuid.UUID, decision models.Prescription) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Prescription{}).
		Where("id = ? AND status IN ?", id, []enums.PrescriptionStatus{
			enums.PrescriptionStatusUploaded,
			enums.PrescriptionStatusUnderReview,
		}).
		Select("status", "pharmacist_notes", "detected_medicines", "reviewed_by", "reviewed_at", "updated_at").
		Updates(&decision)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteUploaded removes the row while it is still awaiting review.
func (r *repository) DeleteUploaded(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, enums.PrescriptionStatusUploaded).
		Delete(&models.Prescription{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
