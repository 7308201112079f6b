package medicines

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/pagination"
)

// Repository defines catalog persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, medicine *models.Medicine) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Medicine, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Medicine, error)
	List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Medicine, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Categories(ctx context.Context) ([]string, error)
}

// ListFilters narrows catalog listings. Inactive medicines are hidden unless
// IncludeInactive is set.
type ListFilters struct {
	Category             string
	Search               string
	InStock              *bool
	RequiresPrescription *bool
	IncludeInactive      bool
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

func (r *repository) Create(ctx context.Context, medicine *models.Medicine) error {
	return r.db.WithContext(ctx).Create(medicine).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Medicine, error) {
	var medicine models.Medicine
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&medicine).Error; err != nil {
		return nil, err
	}
	return &medicine, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Medicine, error) {
	if len(ids) == 0 {
		return []models.Medicine{}, nil
	}
	var rows []models.Medicine
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Medicine, error) {
	q := r.db.WithContext(ctx).Model(&models.Medicine{})
	if !filters.IncludeInactive {
		q = q.Where("medicines.is_active = ?", true)
	}
	if category := strings.TrimSpace(filters.Category); category != "" {
		q = q.Where("LOWER(medicines.category) = ?", strings.ToLower(category))
	}
	if search := strings.TrimSpace(filters.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		q = q.Where(
			"(LOWER(medicines.name) LIKE ? ESCAPE '\\' OR LOWER(COALESCE(medicines.generic_name, '')) LIKE ? ESCAPE '\\' OR LOWER(COALESCE(medicines.manufacturer, '')) LIKE ? ESCAPE '\\')",
			pattern, pattern, pattern,
		)
	}
	if filters.InStock != nil {
		if *filters.InStock {
			q = q.Where("medicines.stock_quantity > 0")
		} else {
			q = q.Where("medicines.stock_quantity = 0")
		}
	}
	if filters.RequiresPrescription != nil {
		q = q.Where("medicines.requires_prescription = ?", *filters.RequiresPrescription)
	}

	var rows []models.Medicine
	if err := pagination.Apply(q, "medicines", cursor, limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Medicine{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) Categories(ctx context.Context) ([]string, error) {
	var out []string
	err := r.db.WithContext(ctx).Model(&models.Medicine{}).
		Where("is_active = ?", true).
		Distinct("category").
		Order("category ASC").
		Pluck("category", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
