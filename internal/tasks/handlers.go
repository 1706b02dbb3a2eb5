package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/gearguard/gearguard/internal/feed"
	"github.com/gearguard/gearguard/pkg/util"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

type Handler struct {
	db     *gorm.DB
	hub    *feed.Hub
	logger *slog.Logger
}

func NewHandler(db *gorm.DB, hub *feed.Hub, logger *slog.Logger) *Handler {
	return &Handler{db: db, hub: hub, logger: logger}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeScrapReconcile, h.HandleScrapReconcile)
	mux.HandleFunc(TypeInviteExpiry, h.HandleInviteExpiry)
	mux.HandleFunc(TypeScheduleTick, h.HandleScheduleTick)
}

// HandleScrapReconcile re-asserts the invariant that a scrapped request's
// equipment is scrapped. The executor writes both in one transaction, so this
// normally finds nothing to do; asynq retries make it the safety net when it
// does.
func (h *Handler) HandleScrapReconcile(ctx context.Context, t *asynq.Task) error {
	var payload ScrapReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshaling payload: %w", err)
	}

	var req models.MaintenanceRequest
	if err := h.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", payload.RequestID, payload.OrganizationID).
		First(&req).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return fmt.Errorf("loading request: %w", err)
	}
	if req.Status != models.StatusScrap {
		return nil
	}

	res := h.db.WithContext(ctx).Model(&models.Equipment{}).
		Where("id = ? AND status <> ?", req.EquipmentID, models.EquipmentStatusScrapped).
		Update("status", models.EquipmentStatusScrapped)
	if res.Error != nil {
		return fmt.Errorf("scrapping equipment: %w", res.Error)
	}

	if res.RowsAffected > 0 {
		h.logger.Warn("closed scrap invariant gap",
			"request_id", req.ID,
			"equipment_id", req.EquipmentID,
		)
		var equipment models.Equipment
		if err := h.db.WithContext(ctx).First(&equipment, req.EquipmentID).Error; err == nil && h.hub != nil {
			h.hub.Publish(feed.RowEvent(feed.EventUpdate, "equipment", req.OrganizationID, req.CreatedByID, &equipment))
		}
	}
	return nil
}

// HandleInviteExpiry marks pending team invites past their deadline expired.
func (h *Handler) HandleInviteExpiry(ctx context.Context, t *asynq.Task) error {
	res := h.db.WithContext(ctx).Model(&models.TeamInvite{}).
		Where("status = ? AND expires_at < ?", models.InvitePending, time.Now()).
		Update("status", models.InviteExpired)
	if res.Error != nil {
		return fmt.Errorf("expiring invites: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		h.logger.Info("expired team invites", "count", res.RowsAffected)
	}
	return nil
}

// HandleScheduleTick generates preventive maintenance requests for every
// enabled schedule whose next run has elapsed.
func (h *Handler) HandleScheduleTick(ctx context.Context, t *asynq.Task) error {
	now := time.Now()

	var schedules []models.MaintenanceSchedule
	if err := h.db.WithContext(ctx).
		Where("is_enabled = ? AND next_run_at <= ?", true, now.Unix()).
		Find(&schedules).Error; err != nil {
		return fmt.Errorf("loading due schedules: %w", err)
	}

	for _, schedule := range schedules {
		if err := h.runSchedule(ctx, schedule, now); err != nil {
			h.logger.Error("schedule run failed", "schedule_id", schedule.ID, "error", err)
		}
	}
	return nil
}

func (h *Handler) runSchedule(ctx context.Context, schedule models.MaintenanceSchedule, now time.Time) error {
	var equipment models.Equipment
	if err := h.db.WithContext(ctx).First(&equipment, schedule.EquipmentID).Error; err != nil {
		return fmt.Errorf("loading equipment: %w", err)
	}

	nextRun, err := util.NextCronTime(schedule.CronExpr, now)
	if err != nil {
		return fmt.Errorf("computing next run: %w", err)
	}

	if equipment.IsScrapped() {
		// Nothing to maintain anymore; push the schedule forward so the
		// tick stops picking it up every run.
		return h.db.WithContext(ctx).Model(&schedule).
			Updates(map[string]interface{}{"is_enabled": false, "next_run_at": nextRun.Unix()}).Error
	}

	scheduled := time.Unix(schedule.NextRunAt, 0).UTC()
	request := models.MaintenanceRequest{
		OrganizationID: schedule.OrganizationID,
		Title:          schedule.Title,
		EquipmentID:    schedule.EquipmentID,
		Type:           models.RequestTypePreventive,
		Priority:       schedule.Priority,
		Status:         models.StatusNew,
		TeamID:         schedule.TeamID,
		ScheduledDate:  &scheduled,
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Attribute generated requests to the org's oldest admin; schedules
		// have no acting user of their own.
		var admin models.User
		if err := tx.Where("organization_id = ? AND role = ?", schedule.OrganizationID, models.RoleAdmin).
			Order("created_at ASC").
			First(&admin).Error; err != nil {
			return fmt.Errorf("resolving schedule actor: %w", err)
		}
		request.CreatedByID = admin.ID

		if err := tx.Create(&request).Error; err != nil {
			return err
		}

		lastRun := schedule.NextRunAt
		return tx.Model(&schedule).Updates(map[string]interface{}{
			"next_run_at":     nextRun.Unix(),
			"last_run_at":     lastRun,
			"last_request_id": request.ID,
		}).Error
	})
	if err != nil {
		return err
	}

	h.logger.Info("generated preventive request",
		"schedule_id", schedule.ID,
		"request_id", request.ID,
	)
	if h.hub != nil {
		h.hub.Publish(feed.RowEvent(feed.EventInsert, "maintenance_requests", request.OrganizationID, request.CreatedByID, &request))
	}
	return nil
}
