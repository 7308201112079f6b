package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/medicart/medicart-api/api/middleware"
	"github.com/medicart/medicart-api/api/responses"
	"github.com/medicart/medicart-api/api/validators"
	"github.com/medicart/medicart-api/internal/medicines"
	"github.com/medicart/medicart-api/pkg/auth"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
	"github.com/medicart/medicart-api/pkg/logger"
	"github.com/medicart/medicart-api/pkg/pagination"
)

const medicineImageField = "image"

type createMedicineRequest struct {
	Name                 string  `json:"name" validate:"required,max=200"`
	GenericName          *string `json:"generic_name" validate:"omitempty,max=200"`
	Category             string  `json:"category" validate:"required,max=100"`
	Manufacturer         *string `json:"manufacturer" validate:"omitempty,max=200"`
	Description          *string `json:"description" validate:"omitempty,max=4000"`
	PriceCents           int     `json:"price_cents" validate:"gte=0"`
	StockQuantity        int     `json:"stock_quantity" validate:"gte=0"`
	RequiresPrescription bool    `json:"requires_prescription"`
}

type updateMedicineRequest struct {
	Name                 *string `json:"name" validate:"omitempty,max=200"`
	GenericName          *string `json:"generic_name" validate:"omitempty,max=200"`
	Category             *string `json:"category" validate:"omitempty,max=100"`
	Manufacturer         *string `json:"manufacturer" validate:"omitempty,max=200"`
	Description          *string `json:"description" validate:"omitempty,max=4000"`
	PriceCents           *int    `json:"price_cents" validate:"omitempty,gte=0"`
	StockQuantity        *int    `json:"stock_quantity" validate:"omitempty,gte=0"`
	RequiresPrescription *bool   `json:"requires_prescription"`
	IsActive             *bool   `json:"is_active"`
}

// MedicineList serves the catalog. Anonymous callers and customers only see
// active medicines; staff may pass include_inactive.
func MedicineList(svc medicines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "medicine service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inStock, err := validators.ParseQueryBool(r, "in_stock")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rx, err := validators.ParseQueryBool(r, "requires_prescription")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		includeInactive, err := validators.ParseQueryBool(r, "include_inactive")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := r.URL.Query()
		filters := medicines.ListFilters{
			Category:             validators.SanitizeString(query.Get("category"), 100),
			Search:               validators.SanitizeString(query.Get("q"), 100),
			InStock:              inStock,
			RequiresPrescription: rx,
			IncludeInactive:      includeInactive != nil && *includeInactive,
		}
		actor, _ := middleware.ActorFromContext(r.Context())
		page, err := svc.List(r.Context(), actor, filters, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(query.Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func MedicineDetail(svc medicines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "medicineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, _ := middleware.ActorFromContext(r.Context())
		medicine, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, medicines.NewMedicineView(*medicine))
	}
}

func MedicineCategories(svc medicines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := svc.Categories(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"categories": categories})
	}
}

func AdminMedicineCreate(svc medicines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createMedicineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		medicine, err := svc.Create(r.Context(), actor, medicines.UpsertInput{
			Name:                 payload.Name,
			GenericName:          payload.GenericName,
			Category:             payload.Category,
			Manufacturer:         payload.Manufacturer,
			Description:          payload.Description,
			PriceCents:           payload.PriceCents,
			StockQuantity:        payload.StockQuantity,
			RequiresPrescription: payload.RequiresPrescription,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, medicines.NewMedicineView(*medicine))
	}
}

func AdminMedicineUpdate(svc medicines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := actorAndID(w, r, logg, "medicineId")
		if !ok {
			return
		}
		var payload updateMedicineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		medicine, err := svc.Update(r.Context(), actor, id, medicines.PatchInput{
			Name:                 payload.Name,
			GenericName:          payload.GenericName,
			Category:             payload.Category,
			Manufacturer:         payload.Manufacturer,
			Description:          payload.Description,
			PriceCents:           payload.PriceCents,
			StockQuantity:        payload.StockQuantity,
			RequiresPrescription: payload.RequiresPrescription,
			IsActive:             payload.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, medicines.NewMedicineView(*medicine))
	}
}

func AdminMedicineDeactivate(svc medicines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := actorAndID(w, r, logg, "medicineId")
		if !ok {
			return
		}
		if err := svc.Deactivate(r.Context(), actor, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AdminMedicineImage accepts a multipart form with a single "image" file.
func AdminMedicineImage(svc medicines.Service, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := actorAndID(w, r, logg, "medicineId")
		if !ok {
			return
		}
		if err := validators.ParseMultipartForm(w, r, maxBytes, 1); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		headers, err := validators.FormFiles(r, medicineImageField, maxBytes, 1)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		file, err := headers[0].Open()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read image"))
			return
		}
		defer file.Close()

		medicine, err := svc.UploadImage(r.Context(), actor, id, file)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, medicines.NewMedicineView(*medicine))
	}
}

// actorAndID resolves the caller and a UUID path parameter, writing the
// error response itself when either is missing.
func actorAndID(w http.ResponseWriter, r *http.Request, logg *logger.Logger, param string) (auth.Actor, uuid.UUID, bool) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return auth.Actor{}, uuid.Nil, false
	}
	id, err := validators.ParseUUIDParam(r, param)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return auth.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}
