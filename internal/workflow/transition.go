package workflow

import (
	"fmt"

	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/google/uuid"
)

// transitions is the fixed status graph. No self-loops, no skipping; repaired
// and scrap have no outbound edges.
var transitions = map[models.RequestStatus][]models.RequestStatus{
	models.StatusNew:        {models.StatusInProgress},
	models.StatusInProgress: {models.StatusRepaired, models.StatusScrap},
	models.StatusRepaired:   nil,
	models.StatusScrap:      nil,
}

// legalPath names the graph for rejection messages so the UI can explain
// what the user should have done instead.
const legalPath = "new → in_progress → repaired/scrap"

// Decision is the outcome of validating a proposed transition. Override marks
// an admin/manager move that is not a graph edge; the executor logs those
// distinctly.
type Decision struct {
	Allowed  bool
	Override bool
	Reason   string
}

func allow() Decision             { return Decision{Allowed: true} }
func override() Decision          { return Decision{Allowed: true, Override: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// edgeExists reports whether current→target is in the fixed graph.
func edgeExists(current, target models.RequestStatus) bool {
	for _, next := range transitions[current] {
		if next == target {
			return true
		}
	}
	return false
}

// Validate decides whether the actor may move a request from current to
// target. Pure: no I/O, no clock. The assignment carries the only request
// state the policy depends on.
func Validate(role models.Role, current, target models.RequestStatus, assignment Assignment, actorID uuid.UUID) Decision {
	if !current.Valid() || !target.Valid() {
		return deny("unknown status")
	}
	if current == target {
		return deny(fmt.Sprintf("request is already %s", current))
	}

	onGraph := edgeExists(current, target)

	switch role {
	case models.RoleAdmin, models.RoleManager:
		if onGraph {
			return allow()
		}
		// Explicit override path, not a graph edge. Includes reopening a
		// terminal request and skipping intermediate statuses.
		return override()

	case models.RoleTechnician:
		if !onGraph {
			return deny(offGraphReason(current, target))
		}
		if !assignment.Assigned() {
			if current == models.StatusNew {
				// Pickup: claiming an unassigned new request.
				return allow()
			}
			return deny("request is unassigned; only a manager can move it")
		}
		if assignment.AssignedTo(actorID) {
			return allow()
		}
		return deny("request is assigned to another technician")

	case models.RoleRequester:
		return deny("requesters cannot change request status")

	case models.RoleNone:
		return deny("not a member of this organization")
	}

	// Unknown role: fail closed.
	return deny("no privilege to change request status")
}

func offGraphReason(current, target models.RequestStatus) string {
	return fmt.Sprintf("cannot move a request from %s to %s; follow %s", current, target, legalPath)
}

// CanMove reports whether any outbound transition is currently permitted for
// the actor. The board uses it to decide whether a card is draggable at all;
// the actual drop target still goes through Validate.
func CanMove(role models.Role, current models.RequestStatus, assignment Assignment, actorID uuid.UUID) bool {
	for _, target := range []models.RequestStatus{
		models.StatusNew,
		models.StatusInProgress,
		models.StatusRepaired,
		models.StatusScrap,
	} {
		if target == current {
			continue
		}
		if Validate(role, current, target, assignment, actorID).Allowed {
			return true
		}
	}
	return false
}
