package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/gearguard/gearguard/internal/feed"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Log actions recorded for transitions. Override moves get their own action
// so the audit trail distinguishes them from ordinary graph edges.
const (
	ActionStatusChanged    = "status_changed"
	ActionStatusOverridden = "status_overridden"
	ActionPickedUp         = "picked_up"
)

// TaskEnqueuer enqueues background compensation work. Satisfied by the tasks
// package's asynq-backed enqueuer; nil disables enqueueing.
type TaskEnqueuer interface {
	EnqueueScrapReconcile(ctx context.Context, orgID, requestID uuid.UUID) error
}

// Context carries the acting user and the optional fields individual
// transitions require.
type Context struct {
	Actor   Membership
	ActorID uuid.UUID

	// Required when the target is repaired.
	DurationMinutes *int
	// Required when the target is scrap.
	Reason string
	// Optional free-text work summary, logged with the transition.
	Note string
}

// Result reports an applied transition. LogPending is set when the audit log
// write failed; the transition itself still stands.
type Result struct {
	Request    *models.MaintenanceRequest
	LogPending bool
}

// Executor applies validated transitions. The status write, the auto-claim
// and the equipment-scrap side effect share one transaction; the audit log
// entry is best-effort and written after commit.
type Executor struct {
	db     *gorm.DB
	hub    *feed.Hub
	tasks  TaskEnqueuer
	logger *slog.Logger
}

func NewExecutor(db *gorm.DB, hub *feed.Hub, tasks TaskEnqueuer, logger *slog.Logger) *Executor {
	return &Executor{db: db, hub: hub, tasks: tasks, logger: logger}
}

// Execute moves a request to target on behalf of ec.Actor. The transition is
// re-validated against the row's current status before any write, so a stale
// caller gets ErrForbidden or ErrConflict instead of a silent overwrite.
func (e *Executor) Execute(ctx context.Context, requestID uuid.UUID, target models.RequestStatus, ec Context) (*Result, error) {
	if !target.Valid() {
		return nil, ErrInvalidStatus
	}

	var req models.MaintenanceRequest
	if err := e.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", requestID, ec.Actor.OrganizationID).
		First(&req).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading request: %w", err)
	}

	decision := Validate(ec.Actor.Role, req.Status, target, AssignmentOf(&req), ec.ActorID)
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	// Required-field checks happen before any write.
	switch target {
	case models.StatusRepaired:
		if ec.DurationMinutes == nil || *ec.DurationMinutes <= 0 {
			return nil, ErrMissingDuration
		}
	case models.StatusScrap:
		if ec.Reason == "" {
			return nil, ErrMissingReason
		}
	}

	current := req.Status
	pickup := target == models.StatusInProgress &&
		!AssignmentOf(&req).Assigned() &&
		ec.Actor.Role == models.RoleTechnician

	updates := map[string]interface{}{"status": target}
	if pickup {
		// Auto-claim: assignment lands in the same UPDATE as the status so
		// no reader ever observes the transition half-applied.
		updates["technician_id"] = ec.ActorID
	}
	if target == models.StatusRepaired {
		updates["duration_minutes"] = *ec.DurationMinutes
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Guard on the status we validated against; a concurrent transition
		// makes this a no-op and we report a conflict instead of clobbering.
		res := tx.Model(&models.MaintenanceRequest{}).
			Where("id = ? AND organization_id = ? AND status = ?", req.ID, ec.Actor.OrganizationID, current).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		if target == models.StatusScrap {
			// Scrap request ⇒ scrapped equipment, atomically with the status
			// write. The worker's reconcile task re-asserts this invariant as
			// a safety net for rows mutated outside this path.
			if err := tx.Model(&models.Equipment{}).
				Where("id = ?", req.EquipmentID).
				Update("status", models.EquipmentStatusScrapped).Error; err != nil {
				return fmt.Errorf("scrapping equipment: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := e.db.WithContext(ctx).
		Where("id = ?", req.ID).
		First(&req).Error; err != nil {
		return nil, fmt.Errorf("reloading request: %w", err)
	}

	result := &Result{Request: &req}

	// Audit trail is best-effort: a failed log write is surfaced but never
	// rolls back the transition.
	logEntry := models.RequestLog{
		OrganizationID: req.OrganizationID,
		RequestID:      req.ID,
		ActorID:        ec.ActorID,
		Action:         e.logAction(decision, pickup),
		Note:           e.logNote(current, target, ec),
	}
	if err := e.db.WithContext(ctx).Create(&logEntry).Error; err != nil {
		result.LogPending = true
		e.logger.Warn("request log write failed",
			"request_id", req.ID,
			"action", logEntry.Action,
			"error", err,
		)
	}

	if target == models.StatusScrap && e.tasks != nil {
		if err := e.tasks.EnqueueScrapReconcile(ctx, req.OrganizationID, req.ID); err != nil {
			e.logger.Warn("scrap reconcile enqueue failed", "request_id", req.ID, "error", err)
		}
	}

	if e.hub != nil {
		e.hub.Publish(feed.RowEvent(feed.EventUpdate, "maintenance_requests", req.OrganizationID, ec.ActorID, &req))
	}

	return result, nil
}

func (e *Executor) logAction(decision Decision, pickup bool) string {
	switch {
	case decision.Override:
		return ActionStatusOverridden
	case pickup:
		return ActionPickedUp
	default:
		return ActionStatusChanged
	}
}

func (e *Executor) logNote(current, target models.RequestStatus, ec Context) string {
	note := fmt.Sprintf("%s → %s", current, target)
	if target == models.StatusScrap {
		note += ": " + ec.Reason
	}
	if ec.Note != "" {
		note += "; " + ec.Note
	}
	return note
}
