package prescriptions

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
	"github.com/medicart/medicart-api/pkg/enums"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
	"github.com/medicart/medicart-api/pkg/logger"
	"github.com/medicart/medicart-api/pkg/metrics"
	"github.com/medicart/medicart-api/pkg/outbox"
	"github.com/medicart/medicart-api/pkg/outbox/payloads"
	"github.com/medicart/medicart-api/pkg/pagination"
	"github.com/medicart/medicart-api/pkg/storage"
	"github.com/medicart/medicart-api/pkg/types"
)

const maxDetectedMedicines = 50

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service manages prescription uploads and pharmacist review.
type Service interface {
	Upload(ctx context.Context, input UploadInput) (*models.Prescription, error)
	Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Prescription, error)
	List(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (pagination.Page[PrescriptionView], error)
	StartReview(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Prescription, error)
	Review(ctx context.Context, input ReviewInput) (*models.Prescription, error)
	Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error
	RequireApproved(ctx context.Context, tx *gorm.DB, userID, prescriptionID uuid.UUID) error
}

type UploadInput struct {
	Actor         auth.Actor
	Files         []io.Reader
	PatientName   string
	PatientAge    *int
	DoctorName    string
	HospitalName  *string
	CustomerNotes *string
}

type ReviewInput struct {
	Actor             auth.Actor
	PrescriptionID    uuid.UUID
	Status            enums.PrescriptionStatus
	Notes             *string
	DetectedMedicines []string
}

// ServiceParams groups dependencies for the prescription service.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Images    storage.ImageStore
	MaxImages int
	Metrics   *metrics.DomainMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	images    storage.ImageStore
	maxImages int
	metrics   *metrics.DomainMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("prescription repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Images == nil {
		return nil, fmt.Errorf("image store required")
	}
	if p.MaxImages <= 0 {
		p.MaxImages = 5
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{
		repo:      p.Repo,
		tx:        p.Tx,
		outbox:    p.Outbox,
		images:    p.Images,
		maxImages: p.MaxImages,
		metrics:   p.Metrics,
		logg:      p.Logger,
		now:       p.Now,
	}, nil
}

// Upload stores every file and then inserts the prescription. Stored objects
// are destroyed again when any later step fails.
func (s *service) Upload(ctx context.Context, input UploadInput) (*models.Prescription, error) {
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.Files) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one image is required")
	}
	if len(input.Files) > s.maxImages {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d images per prescription", s.maxImages))
	}
	patient := strings.TrimSpace(input.PatientName)
	doctor := strings.TrimSpace(input.DoctorName)
	if patient == "" || doctor == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "patient and doctor names are required")
	}
	if input.PatientAge != nil && (*input.PatientAge < 0 || *input.PatientAge > 150) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "patient age must be between 0 and 150")
	}

	uploads := make([]storage.Upload, 0, len(input.Files))
	for i, file := range input.Files {
		up, err := storage.Sniff(storage.FolderPrescriptions, file, storage.PrescriptionDocs)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("file %d is not an accepted document", i+1))
		}
		uploads = append(uploads, up)
	}

	stored := make(types.StoredImages, 0, len(uploads))
	for _, up := range uploads {
		img, err := s.images.Upload(ctx, up)
		if err != nil {
			s.discard(ctx, stored)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store prescription image")
		}
		stored = append(stored, img)
	}

	now := s.now().UTC()
	rx := &models.Prescription{
		ID:            uuid.New(),
		UserID:        input.Actor.UserID,
		Images:        stored,
		PatientName:   patient,
		PatientAge:    input.PatientAge,
		DoctorName:    doctor,
		HospitalName:  trimmed(input.HospitalName),
		CustomerNotes: trimmed(input.CustomerNotes),
		Status:        enums.PrescriptionStatusUploaded,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, rx); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create prescription")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPrescriptionUploaded,
			AggregateType: enums.AggregatePrescription,
			AggregateID:   rx.ID,
			Actor:         outbox.NewActorRef(input.Actor.UserID, string(input.Actor.Role)),
			Data: payloads.PrescriptionUploadedEvent{
				PrescriptionID: rx.ID,
				UserID:         rx.UserID,
				ImageCount:     len(stored),
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		s.discard(ctx, stored)
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "prescription_id", rx.ID.String()), "prescription uploaded")
	return rx, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Prescription, error) {
	rx, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(rx.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "prescription belongs to another user")
	}
	return rx, nil
}

// List shows customers their own prescriptions; staff see the review queue
// and may filter by owner.
func (s *service) List(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (pagination.Page[PrescriptionView], error) {
	if !actor.IsStaff() {
		uid := actor.UserID
		filters.UserID = &uid
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return pagination.Page[PrescriptionView]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[PrescriptionView]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filters, cursor, params.Limit)
	if err != nil {
		return pagination.Page[PrescriptionView]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list prescriptions")
	}
	page := pagination.Build(rows, params.Limit, func(p models.Prescription) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	out := pagination.Page[PrescriptionView]{Items: make([]PrescriptionView, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, p := range page.Items {
		out.Items = append(out.Items, NewPrescriptionView(p))
	}
	return out, nil
}

// StartReview claims an uploaded prescription for review. Calling it on a
// prescription already under review is a no-op.
func (s *service) StartReview(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Prescription, error) {
	if !actor.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "pharmacist or admin role required")
	}
	moved, err := s.repo.StartReview(ctx, id, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start review")
	}
	rx, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if !moved && rx.Status.IsReviewed() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "prescription already reviewed").
			WithDetails(map[string]any{"status": rx.Status})
	}
	return rx, nil
}

// Review records the pharmacist decision exactly once.
func (s *service) Review(ctx context.Context, input ReviewInput) (*models.Prescription, error) {
	if !input.Actor.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "pharmacist or admin role required")
	}
	if input.Status != enums.PrescriptionStatusApproved && input.Status != enums.PrescriptionStatusRejected {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be approved or rejected")
	}
	detected, err := normalizeDetected(input.DetectedMedicines)
	if err != nil {
		return nil, err
	}
	if input.Status == enums.PrescriptionStatusRejected && trimmed(input.Notes) == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notes are required when rejecting")
	}

	now := s.now().UTC()
	reviewer := input.Actor.UserID
	var reviewed *models.Prescription

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.RecordDecision(ctx, input.PrescriptionID, models.Prescription{
			Status:            input.Status,
			PharmacistNotes:   trimmed(input.Notes),
			DetectedMedicines: detected,
			ReviewedBy:        &reviewer,
			ReviewedAt:        &now,
			UpdatedAt:         now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record review")
		}
		current, err := s.load(ctx, repo, input.PrescriptionID)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "prescription already reviewed").
				WithDetails(map[string]any{"status": current.Status})
		}
		reviewed = current

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPrescriptionReviewed,
			AggregateType: enums.AggregatePrescription,
			AggregateID:   current.ID,
			Actor:         outbox.NewActorRef(reviewer, string(input.Actor.Role)),
			Data: payloads.PrescriptionReviewedEvent{
				PrescriptionID: current.ID,
				UserID:         current.UserID,
				Status:         current.Status,
				ReviewedBy:     reviewer,
				ReviewedAt:     now,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PrescriptionReviewed(string(reviewed.Status))
	ctx = s.logg.WithField(ctx, "prescription_id", reviewed.ID.String())
	s.logg.Info(s.logg.WithField(ctx, "status", string(reviewed.Status)), "prescription reviewed")
	return reviewed, nil
}

// Delete lets the owner withdraw a prescription before review starts.
func (s *service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	rx, err := s.load(ctx, s.repo, id)
	if err != nil {
		return err
	}
	if actor.UserID != rx.UserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can delete a prescription")
	}
	if rx.Status != enums.PrescriptionStatusUploaded {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, "prescription is already being reviewed").
			WithDetails(map[string]any{"status": rx.Status})
	}
	deleted, err := s.repo.DeleteUploaded(ctx, id, actor.UserID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete prescription")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, "prescription is already being reviewed")
	}
	s.discard(ctx, rx.Images)
	return nil
}

// RequireApproved backs checkout of prescription-only medicines.
func (s *service) RequireApproved(ctx context.Context, tx *gorm.DB, userID, prescriptionID uuid.UUID) error {
	rx, err := s.load(ctx, s.repo.WithTx(tx), prescriptionID)
	if err != nil {
		return err
	}
	if rx.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "prescription not found")
	}
	if rx.Status != enums.PrescriptionStatusApproved {
		return pkgerrors.New(pkgerrors.CodeValidation, "prescription is not approved").
			WithDetails(map[string]any{"prescription_id": rx.ID, "status": rx.Status})
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Prescription, error) {
	rx, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "prescription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load prescription")
	}
	return rx, nil
}

func (s *service) discard(ctx context.Context, images types.StoredImages) {
	for _, id := range images.StorageIDs() {
		if err := s.images.Destroy(ctx, id); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "storage_id", id), "destroy prescription image", err)
		}
	}
}

func normalizeDetected(in []string) ([]string, error) {
	if len(in) > maxDetectedMedicines {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d detected medicines", maxDetectedMedicines))
	}
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, name := range in {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out, nil
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
