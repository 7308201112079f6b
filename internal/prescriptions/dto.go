package prescriptions

import (
	"time"

	"github.com/google/uuid"

	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
)

type ImageView struct {
	URL string `json:"url"`
}

type PrescriptionView struct {
	ID                uuid.UUID                `json:"id"`
	UserID            uuid.UUID                `json:"user_id"`
	Images            []ImageView              `json:"images"`
	PatientName       string                   `json:"patient_name"`
	PatientAge        *int                     `json:"patient_age,omitempty"`
	DoctorName        string                   `json:"doctor_name"`
	HospitalName      *string                  `json:"hospital_name,omitempty"`
	CustomerNotes     *string                  `json:"customer_notes,omitempty"`
	Status            enums.PrescriptionStatus `json:"status"`
	PharmacistNotes   *string                  `json:"pharmacist_notes,omitempty"`
	DetectedMedicines []string                 `json:"detected_medicines"`
	ReviewedBy        *uuid.UUID               `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time               `json:"reviewed_at,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

// NewPrescriptionView hides storage ids; clients only ever see URLs.
func NewPrescriptionView(p models.Prescription) PrescriptionView {
	images := make([]ImageView, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, ImageView{URL: img.URL})
	}
	detected := p.DetectedMedicines
	if detected == nil {
		detected = []string{}
	}
	return PrescriptionView{
		ID:                p.ID,
		UserID:            p.UserID,
		Images:            images,
		PatientName:       p.PatientName,
		PatientAge:        p.PatientAge,
		DoctorName:        p.DoctorName,
		HospitalName:      p.HospitalName,
		CustomerNotes:     p.CustomerNotes,
		Status:            p.Status,
		PharmacistNotes:   p.PharmacistNotes,
		DetectedMedicines: detected,
		ReviewedBy:        p.ReviewedBy,
		ReviewedAt:        p.ReviewedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
