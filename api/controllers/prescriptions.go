package controllers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/medicart/medicart-api/api/middleware"
	"github.com/medicart/medicart-api/api/responses"
	"github.com/medicart/medicart-api/api/validators"
	"github.com/medicart/medicart-api/internal/prescriptions"
	"github.com/medicart/medicart-api/pkg/enums"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
	"github.com/medicart/medicart-api/pkg/logger"
)

const prescriptionImagesField = "images"

type reviewPrescriptionRequest struct {
	Status            string   `json:"status" validate:"required,oneof=approved rejected"`
	Notes             *string  `json:"notes" validate:"omitempty,max=1000"`
	DetectedMedicines []string `json:"detected_medicines" validate:"omitempty,max=50,dive,max=200"`
}

// PrescriptionUpload accepts multipart form data: one or more "images" files
// plus patient_name, patient_age, doctor_name, hospital_name and
// customer_notes fields.
func PrescriptionUpload(svc prescriptions.Service, maxFileBytes int64, maxFiles int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := validators.ParseMultipartForm(w, r, maxFileBytes, maxFiles); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		headers, err := validators.FormFiles(r, prescriptionImagesField, maxFileBytes, maxFiles)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := prescriptions.UploadInput{
			Actor:         actor,
			PatientName:   validators.SanitizeString(r.FormValue("patient_name"), 120),
			DoctorName:    validators.SanitizeString(r.FormValue("doctor_name"), 120),
			HospitalName:  optionalFormValue(r, "hospital_name", 200),
			CustomerNotes: optionalFormValue(r, "customer_notes", 1000),
		}
		if raw := strings.TrimSpace(r.FormValue("patient_age")); raw != "" {
			age, err := strconv.Atoi(raw)
			if err != nil || age < 0 || age > 150 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "patient_age must be between 0 and 150"))
				return
			}
			input.PatientAge = &age
		}

		files := make([]io.Reader, 0, len(headers))
		for _, header := range headers {
			file, err := header.Open()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read image"))
				return
			}
			defer file.Close()
			files = append(files, file)
		}
		input.Files = files

		prescription, err := svc.Upload(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, prescriptions.NewPrescriptionView(*prescription))
	}
}

func optionalFormValue(r *http.Request, key string, maxLen int) *string {
	v := validators.SanitizeString(r.FormValue(key), maxLen)
	if v == "" {
		return nil
	}
	return &v
}

// PrescriptionList lists the caller's prescriptions; staff see the review
// queue and may filter by user_id and status.
func PrescriptionList(svc prescriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.ParseQueryUUID(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters := prescriptions.ListFilters{UserID: userID}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParsePrescriptionStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filters.Status = &status
		}
		page, err := svc.List(r.Context(), actor, filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func PrescriptionDetail(svc prescriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := actorAndID(w, r, logg, "prescriptionId")
		if !ok {
			return
		}
		prescription, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, prescriptions.NewPrescriptionView(*prescription))
	}
}

func PrescriptionDelete(svc prescriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := actorAndID(w, r, logg, "prescriptionId")
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), actor, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func AdminPrescriptionStartReview(svc prescriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := actorAndID(w, r, logg, "prescriptionId")
		if !ok {
			return
		}
		prescription, err := svc.StartReview(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, prescriptions.NewPrescriptionView(*prescription))
	}
}

func AdminPrescriptionReview(svc prescriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := actorAndID(w, r, logg, "prescriptionId")
		if !ok {
			return
		}
		var payload reviewPrescriptionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		prescription, err := svc.Review(r.Context(), prescriptions.ReviewInput{
			Actor:             actor,
			PrescriptionID:    id,
			Status:            enums.PrescriptionStatus(payload.Status),
			Notes:             payload.Notes,
			DetectedMedicines: payload.DetectedMedicines,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, prescriptions.NewPrescriptionView(*prescription))
	}
}
