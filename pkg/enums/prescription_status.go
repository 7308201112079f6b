package enums

import "fmt"

// PrescriptionStatus tracks pharmacist review of an uploaded prescription.
type PrescriptionStatus string

const (
	PrescriptionStatusUploaded    PrescriptionStatus = "uploaded"
	PrescriptionStatusUnderReview PrescriptionStatus = "under_review"
	PrescriptionStatusApproved    PrescriptionStatus = "approved"
	PrescriptionStatusRejected    PrescriptionStatus = "rejected"
)

var validPrescriptionStatuses = []PrescriptionStatus{
	PrescriptionStatusUploaded,
	PrescriptionStatusUnderReview,
	PrescriptionStatusApproved,
	PrescriptionStatusRejected,
}

// String implements fmt.Stringer.
func (s PrescriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PrescriptionStatus.
func (s PrescriptionStatus) IsValid() bool {
	for _, candidate := range validPrescriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsReviewed reports whether a review decision has been recorded.
func (s PrescriptionStatus) IsReviewed() bool {
	return s == PrescriptionStatusApproved || s == PrescriptionStatusRejected
}

// ParsePrescriptionStatus converts raw input into a PrescriptionStatus.
func ParsePrescriptionStatus(value string) (PrescriptionStatus, error) {
	for _, candidate := range validPrescriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid prescription status %q", value)
}
