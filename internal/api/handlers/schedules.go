package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gearguard/gearguard/internal/api/dto"
	"github.com/gearguard/gearguard/internal/api/middleware"
	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/gearguard/gearguard/pkg/util"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScheduleHandler manages recurring preventive maintenance schedules. The
// worker's scheduler tick does the actual request creation.
type ScheduleHandler struct {
	db *gorm.DB
}

func NewScheduleHandler(db *gorm.DB) *ScheduleHandler {
	return &ScheduleHandler{db: db}
}

type ScheduleRequest struct {
	Title       string  `json:"title"`
	EquipmentID string  `json:"equipment_id"`
	CronExpr    string  `json:"cron_expr"`
	Priority    string  `json:"priority,omitempty"`
	TeamID      *string `json:"team_id,omitempty"`
}

func (r ScheduleRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if r.Title == "" {
		errs["title"] = "Title is required"
	}
	if _, err := uuid.Parse(r.EquipmentID); err != nil {
		errs["equipment_id"] = "Valid equipment ID is required"
	}
	if err := util.ValidateCronExpr(r.CronExpr); err != nil {
		errs["cron_expr"] = "Invalid cron expression"
	}
	switch models.RequestPriority(r.Priority) {
	case "", models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
	default:
		errs["priority"] = "Invalid priority"
	}
	return errs
}

// List handles GET /api/v1/schedules
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var schedules []models.MaintenanceSchedule
	if err := h.db.Where("organization_id = ?", orgID).
		Order("next_run_at ASC").
		Find(&schedules).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list schedules"})
		return
	}

	writeJSON(w, http.StatusOK, schedules)
}

// Create handles POST /api/v1/schedules
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	equipmentID, _ := uuid.Parse(req.EquipmentID)
	var equipment models.Equipment
	if err := h.db.Where("id = ? AND organization_id = ?", equipmentID, orgID).
		First(&equipment).Error; err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Equipment not found"})
		return
	}
	if equipment.IsScrapped() {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Scrapped equipment cannot be scheduled"})
		return
	}

	next, err := util.NextCronTime(req.CronExpr, time.Now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cron expression"})
		return
	}

	schedule := models.MaintenanceSchedule{
		OrganizationID: orgID,
		EquipmentID:    equipmentID,
		Title:          req.Title,
		CronExpr:       req.CronExpr,
		Priority:       models.PriorityMedium,
		IsEnabled:      true,
		NextRunAt:      next.Unix(),
	}
	if req.Priority != "" {
		schedule.Priority = models.RequestPriority(req.Priority)
	}
	if req.TeamID != nil && *req.TeamID != "" {
		id, err := uuid.Parse(*req.TeamID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid team ID"})
			return
		}
		var team models.Team
		if err := h.db.Where("id = ? AND organization_id = ?", id, orgID).First(&team).Error; err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Team not found"})
			return
		}
		schedule.TeamID = &id
	}

	if err := h.db.Create(&schedule).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create schedule"})
		return
	}

	writeJSON(w, http.StatusCreated, schedule)
}

type UpdateScheduleRequest struct {
	Title     *string `json:"title,omitempty"`
	CronExpr  *string `json:"cron_expr,omitempty"`
	Priority  *string `json:"priority,omitempty"`
	IsEnabled *bool   `json:"is_enabled,omitempty"`
}

// Update handles PUT /api/v1/schedules/:id
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid schedule ID"})
		return
	}

	var req UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	var schedule models.MaintenanceSchedule
	if err := h.db.Where("id = ? AND organization_id = ?", scheduleID, orgID).
		First(&schedule).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Schedule not found"})
		return
	}

	updates := make(map[string]interface{})
	if req.Title != nil {
		if *req.Title == "" {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Title cannot be empty"})
			return
		}
		updates["title"] = *req.Title
	}
	if req.CronExpr != nil {
		next, err := util.NextCronTime(*req.CronExpr, time.Now())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cron expression"})
			return
		}
		updates["cron_expr"] = *req.CronExpr
		updates["next_run_at"] = next.Unix()
	}
	if req.Priority != nil {
		switch models.RequestPriority(*req.Priority) {
		case models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
			updates["priority"] = *req.Priority
		default:
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid priority"})
			return
		}
	}
	if req.IsEnabled != nil {
		updates["is_enabled"] = *req.IsEnabled
	}
	if len(updates) == 0 {
		writeJSON(w, http.StatusOK, schedule)
		return
	}

	if err := h.db.Model(&schedule).Updates(updates).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update schedule"})
		return
	}

	writeJSON(w, http.StatusOK, schedule)
}

// Trigger handles POST /api/v1/schedules/:id/trigger. It generates the
// schedule's preventive request immediately instead of waiting for the next
// cron occurrence, then advances the schedule as if it had fired.
func (h *ScheduleHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())
	userID := middleware.GetUserID(r.Context())

	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid schedule ID"})
		return
	}

	var schedule models.MaintenanceSchedule
	if err := h.db.Where("id = ? AND organization_id = ?", scheduleID, orgID).
		First(&schedule).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Schedule not found"})
		return
	}

	var equipment models.Equipment
	if err := h.db.Where("id = ? AND organization_id = ?", schedule.EquipmentID, orgID).
		First(&equipment).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Equipment not found"})
		return
	}
	if equipment.IsScrapped() {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Equipment is scrapped"})
		return
	}

	now := time.Now()
	next, err := util.NextCronTime(schedule.CronExpr, now)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Invalid cron expression"})
		return
	}

	scheduled := now
	request := models.MaintenanceRequest{
		OrganizationID: orgID,
		Title:          schedule.Title,
		EquipmentID:    schedule.EquipmentID,
		Type:           models.RequestTypePreventive,
		Priority:       schedule.Priority,
		Status:         models.StatusNew,
		TeamID:         schedule.TeamID,
		ScheduledDate:  &scheduled,
		CreatedByID:    userID,
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&request).Error; err != nil {
			return err
		}
		lastRun := now.Unix()
		return tx.Model(&schedule).Updates(map[string]interface{}{
			"last_run_at":     lastRun,
			"last_request_id": request.ID,
			"next_run_at":     next.Unix(),
		}).Error
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to trigger schedule"})
		return
	}

	writeJSON(w, http.StatusCreated, request)
}

// Delete handles DELETE /api/v1/schedules/:id
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	scheduleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid schedule ID"})
		return
	}

	result := h.db.Where("id = ? AND organization_id = ?", scheduleID, orgID).
		Delete(&models.MaintenanceSchedule{})
	if result.Error != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete schedule"})
		return
	}
	if result.RowsAffected == 0 {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Schedule not found"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Schedule deleted"})
}
