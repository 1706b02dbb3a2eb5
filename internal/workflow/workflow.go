// Package workflow implements the maintenance-request lifecycle core: role
// resolution, the fixed status-transition graph with its role policy, and the
// executor that applies validated transitions together with their mandated
// side effects.
package workflow

import (
	"errors"

	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("request not found")
	ErrForbidden       = errors.New("transition not allowed")
	ErrConflict        = errors.New("request state changed, please retry")
	ErrMissingDuration = errors.New("a positive duration in minutes is required to mark a request repaired")
	ErrMissingReason   = errors.New("a reason is required to scrap a request")
	ErrInvalidStatus   = errors.New("unknown request status")
)

// Membership is the resolved acting context: the caller's role within their
// organization. The zero value means unaffiliated.
type Membership struct {
	Role           models.Role
	OrganizationID uuid.UUID
}

// Affiliated reports whether the user belongs to an organization.
func (m Membership) Affiliated() bool {
	return m.OrganizationID != uuid.Nil
}

// Assignment is the slice of request state the transition policy depends on:
// which technician, if any, currently holds the request.
type Assignment struct {
	TechnicianID *uuid.UUID
}

// Assigned reports whether a technician holds the request.
func (a Assignment) Assigned() bool {
	return a.TechnicianID != nil && *a.TechnicianID != uuid.Nil
}

// AssignedTo reports whether the request is held by the given technician.
func (a Assignment) AssignedTo(userID uuid.UUID) bool {
	return a.Assigned() && *a.TechnicianID == userID
}

// AssignmentOf extracts the assignment state from a request row.
func AssignmentOf(req *models.MaintenanceRequest) Assignment {
	return Assignment{TechnicianID: req.TechnicianID}
}
