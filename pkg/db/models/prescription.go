package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/medicart/medicart-api/pkg/enums"
	"github.com/medicart/medicart-api/pkg/types"
)

// Prescription is a user upload awaiting or carrying a pharmacist decision.
type Prescription struct {
	ID                uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	Images            types.StoredImages       `gorm:"column:images;type:jsonb;serializer:json;not null"`
	PatientName       string                   `gorm:"column:patient_name;not null"`
	PatientAge        *int                     `gorm:"column:patient_age"`
	DoctorName        string                   `gorm:"column:doctor_name;not null"`
	HospitalName      *string                  `gorm:"column:hospital_name"`
	CustomerNotes     *string                  `gorm:"column:customer_notes"`
	Status            enums.PrescriptionStatus `gorm:"column:status;type:text;not null;default:'uploaded'"`
	PharmacistNotes   *string                  `gorm:"column:pharmacist_notes"`
	DetectedMedicines []string                 `gorm:"column:detected_medicines;type:jsonb;serializer:json"`
	ReviewedBy        *uuid.UUID               `gorm:"column:reviewed_by;type:uuid"`
	ReviewedAt        *time.Time               `gorm:"column:reviewed_at"`
	CreatedAt         time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
