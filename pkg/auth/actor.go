package auth

import (
	"github.com/google/uuid"

	"github.com/medicart/medicart-api/pkg/enums"
)

// Actor is the verified caller of a service operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) IsStaff() bool {
	return a.Role.IsStaff()
}

// CanAccess reports whether the actor owns the resource or is staff.
func (a Actor) CanAccess(ownerID uuid.UUID) bool {
	return a.IsStaff() || (a.UserID != uuid.Nil && a.UserID == ownerID)
}

// System is the actor used by background jobs.
var System = Actor{Role: enums.UserRoleAdmin}
