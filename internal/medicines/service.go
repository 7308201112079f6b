package medicines

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/pkg/auth"
	"github.com/medicart/medicart-api/pkg/db/models"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
	"github.com/medicart/medicart-api/pkg/logger"
	"github.com/medicart/medicart-api/pkg/pagination"
	"github.com/medicart/medicart-api/pkg/storage"
)

// Service exposes catalog reads to everyone and writes to staff.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input UpsertInput) (*models.Medicine, error)
	Update(ctx context.Context, actor auth.Actor, id uuid.UUID, input PatchInput) (*models.Medicine, error)
	Deactivate(ctx context.Context, actor auth.Actor, id uuid.UUID) error
	Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Medicine, error)
	List(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (pagination.Page[MedicineView], error)
	Categories(ctx context.Context) ([]string, error)
	UploadImage(ctx context.Context, actor auth.Actor, id uuid.UUID, body io.Reader) (*models.Medicine, error)
}

type UpsertInput struct {
	Name                 string
	GenericName          *string
	Category             string
	Manufacturer         *string
	Description          *string
	PriceCents           int
	StockQuantity        int
	RequiresPrescription bool
}

// PatchInput updates only the non-nil fields.
type PatchInput struct {
	Name                 *string
	GenericName          *string
	Category             *string
	Manufacturer         *string
	Description          *string
	PriceCents           *int
	StockQuantity        *int
	RequiresPrescription *bool
	IsActive             *bool
}

type service struct {
	repo   Repository
	images storage.ImageStore
	logg   *logger.Logger
}

// NewService builds the catalog service. images may be nil when uploads are
// disabled.
func NewService(repo Repository, images storage.ImageStore, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("medicine repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, images: images, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input UpsertInput) (*models.Medicine, error) {
	if !actor.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Category = strings.TrimSpace(input.Category)
	if input.Name == "" || input.Category == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name and category are required")
	}
	if input.PriceCents < 0 || input.StockQuantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price and stock must be >= 0")
	}

	medicine := &models.Medicine{
		ID:                   uuid.New(),
		Name:                 input.Name,
		GenericName:          trimmed(input.GenericName),
		Category:             input.Category,
		Manufacturer:         trimmed(input.Manufacturer),
		Description:          trimmed(input.Description),
		PriceCents:           input.PriceCents,
		StockQuantity:        input.StockQuantity,
		RequiresPrescription: input.RequiresPrescription,
		IsActive:             true,
	}
	if err := s.repo.Create(ctx, medicine); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create medicine")
	}
	return medicine, nil
}

func (s *service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, input PatchInput) (*models.Medicine, error) {
	if !actor.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	updates := map[string]any{}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be blank")
		}
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Category != nil {
		if strings.TrimSpace(*input.Category) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "category cannot be blank")
		}
		updates["category"] = strings.TrimSpace(*input.Category)
	}
	if input.GenericName != nil {
		updates["generic_name"] = trimmed(input.GenericName)
	}
	if input.Manufacturer != nil {
		updates["manufacturer"] = trimmed(input.Manufacturer)
	}
	if input.Description != nil {
		updates["description"] = trimmed(input.Description)
	}
	if input.PriceCents != nil {
		if *input.PriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be >= 0")
		}
		updates["price_cents"] = *input.PriceCents
	}
	if input.StockQuantity != nil {
		if *input.StockQuantity < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock must be >= 0")
		}
		updates["stock_quantity"] = *input.StockQuantity
	}
	if input.RequiresPrescription != nil {
		updates["requires_prescription"] = *input.RequiresPrescription
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		if err := s.repo.Update(ctx, id, updates); err != nil {
			return nil, notFoundOr(err)
		}
	}
	return s.load(ctx, id)
}

// Deactivate hides a medicine from the catalog. Existing orders keep their
// snapshot of it.
func (s *service) Deactivate(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	inactive := false
	_, err := s.Update(ctx, actor, id, PatchInput{IsActive: &inactive})
	return err
}

func (s *service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Medicine, error) {
	medicine, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !medicine.IsActive && !actor.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "medicine not found")
	}
	return medicine, nil
}

func (s *service) List(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (pagination.Page[MedicineView], error) {
	if !actor.IsStaff() {
		filters.IncludeInactive = false
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[MedicineView]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filters, cursor, params.Limit)
	if err != nil {
		return pagination.Page[MedicineView]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list medicines")
	}
	page := pagination.Build(rows, params.Limit, func(m models.Medicine) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	out := pagination.Page[MedicineView]{Items: make([]MedicineView, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, m := range page.Items {
		out.Items = append(out.Items, NewMedicineView(m))
	}
	return out, nil
}

func (s *service) Categories(ctx context.Context) ([]string, error) {
	out, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	return out, nil
}

// UploadImage stores a new photo and then drops the previous object.
func (s *service) UploadImage(ctx context.Context, actor auth.Actor, id uuid.UUID, body io.Reader) (*models.Medicine, error) {
	if !actor.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	if s.images == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "image storage not configured")
	}
	medicine, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	upload, err := storage.Sniff(storage.FolderMedicines, body, storage.ImageTypes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported image")
	}
	stored, err := s.images.Upload(ctx, upload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload image")
	}

	if err := s.repo.Update(ctx, id, map[string]any{
		"image_url":        stored.URL,
		"image_storage_id": stored.StorageID,
		"updated_at":       time.Now().UTC(),
	}); err != nil {
		if destroyErr := s.images.Destroy(ctx, stored.StorageID); destroyErr != nil {
			s.logg.Error(ctx, "discard orphaned medicine image", destroyErr)
		}
		return nil, notFoundOr(err)
	}

	if medicine.ImageStorageID != nil && *medicine.ImageStorageID != "" {
		if err := s.images.Destroy(ctx, *medicine.ImageStorageID); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "storage_id", *medicine.ImageStorageID), "destroy previous medicine image", err)
		}
	}
	return s.load(ctx, id)
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Medicine, error) {
	medicine, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return medicine, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "medicine not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "medicine store")
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
