package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gearguard/gearguard/internal/api/dto"
	"github.com/gearguard/gearguard/internal/api/middleware"
	"github.com/gearguard/gearguard/internal/api/validation"
	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/gearguard/gearguard/internal/feed"
	"github.com/gearguard/gearguard/internal/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestHandler covers maintenance request CRUD plus the transition
// endpoint. Status never changes through Update; every move goes through the
// workflow executor so role checks, required fields and side effects apply
// uniformly.
type RequestHandler struct {
	db       *gorm.DB
	hub      *feed.Hub
	resolver *workflow.Resolver
	executor *workflow.Executor
}

func NewRequestHandler(db *gorm.DB, hub *feed.Hub, resolver *workflow.Resolver, executor *workflow.Executor) *RequestHandler {
	return &RequestHandler{db: db, hub: hub, resolver: resolver, executor: executor}
}

type CreateRequestRequest struct {
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	EquipmentID   string  `json:"equipment_id"`
	Type          string  `json:"type,omitempty"`
	Priority      string  `json:"priority,omitempty"`
	TeamID        *string `json:"team_id,omitempty"`
	TechnicianID  *string `json:"technician_id,omitempty"`
	ScheduledDate string  `json:"scheduled_date,omitempty"`
}

func (r CreateRequestRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if r.Title == "" {
		errs["title"] = "Title is required"
	} else if !validation.MaxLen(r.Title, 255) {
		errs["title"] = "Title is too long"
	}
	if !validation.IsValidUUID(r.EquipmentID) {
		errs["equipment_id"] = "Valid equipment ID is required"
	}
	switch models.RequestType(r.Type) {
	case "", models.RequestTypeCorrective:
	case models.RequestTypePreventive:
		if r.ScheduledDate == "" {
			errs["scheduled_date"] = "Scheduled date is required for preventive requests"
		}
	default:
		errs["type"] = "Invalid request type"
	}
	switch models.RequestPriority(r.Priority) {
	case "", models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
	default:
		errs["priority"] = "Invalid priority"
	}
	if r.ScheduledDate != "" {
		if _, ok := validation.ParseDate(r.ScheduledDate); !ok {
			errs["scheduled_date"] = "Invalid date format"
		}
	}
	return errs
}

// List handles GET /api/v1/requests
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	query := h.db.Model(&models.MaintenanceRequest{}).Where("organization_id = ?", orgID)

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if reqType := r.URL.Query().Get("type"); reqType != "" {
		query = query.Where("type = ?", reqType)
	}
	if priority := r.URL.Query().Get("priority"); priority != "" {
		query = query.Where("priority = ?", priority)
	}
	if equipmentID := r.URL.Query().Get("equipment_id"); equipmentID != "" {
		if id, err := uuid.Parse(equipmentID); err == nil {
			query = query.Where("equipment_id = ?", id)
		}
	}
	if technicianID := r.URL.Query().Get("technician_id"); technicianID != "" {
		if id, err := uuid.Parse(technicianID); err == nil {
			query = query.Where("technician_id = ?", id)
		}
	}
	if search := r.URL.Query().Get("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("title LIKE ? OR description LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count requests"})
		return
	}

	var requests []models.MaintenanceRequest
	if err := query.
		Preload("Equipment").
		Preload("Technician").
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&requests).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list requests"})
		return
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       requests,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: dto.TotalPages(total, pagination.PerPage),
	})
}

// Create handles POST /api/v1/requests. New requests always start in the new
// column; scrapped equipment rejects further requests.
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())
	userID := middleware.GetUserID(r.Context())

	var req CreateRequestRequest
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
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Scrapped equipment cannot receive requests"})
		return
	}

	request := models.MaintenanceRequest{
		OrganizationID: orgID,
		Title:          req.Title,
		Description:    req.Description,
		EquipmentID:    equipmentID,
		Type:           models.RequestTypeCorrective,
		Priority:       models.PriorityMedium,
		Status:         models.StatusNew,
		CreatedByID:    userID,
	}
	if req.Type != "" {
		request.Type = models.RequestType(req.Type)
	}
	if req.Priority != "" {
		request.Priority = models.RequestPriority(req.Priority)
	}
	if req.ScheduledDate != "" {
		t, _ := validation.ParseDate(req.ScheduledDate)
		request.ScheduledDate = &t
	}
	// The equipment's maintenance team is the default; an explicit team wins.
	if equipment.TeamID != nil {
		request.TeamID = equipment.TeamID
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
		request.TeamID = &id
	}
	if req.TechnicianID != nil && *req.TechnicianID != "" {
		id, err := uuid.Parse(*req.TechnicianID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid technician ID"})
			return
		}
		var tech models.User
		if err := h.db.Where("id = ? AND organization_id = ?", id, orgID).First(&tech).Error; err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Technician not found"})
			return
		}
		request.TechnicianID = &id
	}

	if err := h.db.Create(&request).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create request"})
		return
	}

	h.hub.Publish(feed.RowEvent(feed.EventInsert, "maintenance_requests", orgID, userID, &request))
	writeJSON(w, http.StatusCreated, request)
}

// Get handles GET /api/v1/requests/:id
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request ID"})
		return
	}

	var request models.MaintenanceRequest
	if err := h.db.
		Preload("Equipment").
		Preload("Technician").
		Preload("Logs", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ? AND organization_id = ?", requestID, orgID).
		First(&request).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Request not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get request"})
		return
	}

	writeJSON(w, http.StatusOK, request)
}

type UpdateRequestRequest struct {
	Title         *string `json:"title,omitempty"`
	Description   *string `json:"description,omitempty"`
	Priority      *string `json:"priority,omitempty"`
	TeamID        *string `json:"team_id,omitempty"`
	TechnicianID  *string `json:"technician_id,omitempty"`
	ScheduledDate *string `json:"scheduled_date,omitempty"`
}

// Update handles PUT /api/v1/requests/:id. Metadata only; status and
// equipment are immutable here.
func (h *RequestHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())
	userID := middleware.GetUserID(r.Context())

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request ID"})
		return
	}

	var req UpdateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	var request models.MaintenanceRequest
	if err := h.db.Where("id = ? AND organization_id = ?", requestID, orgID).
		First(&request).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Request not found"})
		return
	}
	if request.Status.Terminal() {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Closed requests cannot be edited"})
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
	if req.Description != nil {
		updates["description"] = *req.Description
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
	if req.TeamID != nil {
		if *req.TeamID == "" {
			updates["team_id"] = nil
		} else {
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
			updates["team_id"] = id
		}
	}
	if req.TechnicianID != nil {
		if *req.TechnicianID == "" {
			updates["technician_id"] = nil
		} else {
			id, err := uuid.Parse(*req.TechnicianID)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid technician ID"})
				return
			}
			var tech models.User
			if err := h.db.Where("id = ? AND organization_id = ?", id, orgID).First(&tech).Error; err != nil {
				writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Technician not found"})
				return
			}
			updates["technician_id"] = id
		}
	}
	if req.ScheduledDate != nil {
		if *req.ScheduledDate == "" {
			if request.Type == models.RequestTypePreventive {
				writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Preventive requests require a scheduled date"})
				return
			}
			updates["scheduled_date"] = nil
		} else {
			t, ok := validation.ParseDate(*req.ScheduledDate)
			if !ok {
				writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid date format"})
				return
			}
			updates["scheduled_date"] = t
		}
	}
	if len(updates) == 0 {
		writeJSON(w, http.StatusOK, request)
		return
	}

	if err := h.db.Model(&request).Updates(updates).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update request"})
		return
	}

	h.hub.Publish(feed.RowEvent(feed.EventUpdate, "maintenance_requests", orgID, userID, &request))
	writeJSON(w, http.StatusOK, request)
}

type TransitionRequest struct {
	Status          string `json:"status"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Note            string `json:"note,omitempty"`
}

type TransitionResponse struct {
	Request    *models.MaintenanceRequest `json:"request"`
	LogPending bool                       `json:"log_pending,omitempty"`
}

// Transition handles POST /api/v1/requests/:id/transition. All status
// movement funnels through here.
func (h *RequestHandler) Transition(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request ID"})
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	target := models.RequestStatus(req.Status)
	if !target.Valid() {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid target status"})
		return
	}

	// Membership comes from the store, not the token: role changes take
	// effect on the next transition, not the next login.
	membership, err := h.resolver.Resolve(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}
	if !membership.Affiliated() {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Organization membership required"})
		return
	}

	result, err := h.executor.Execute(r.Context(), requestID, target, workflow.Context{
		Actor:           membership,
		ActorID:         userID,
		DurationMinutes: req.DurationMinutes,
		Reason:          req.Reason,
		Note:            req.Note,
	})
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrNotFound):
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Request not found"})
		case errors.Is(err, workflow.ErrForbidden):
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, workflow.ErrConflict):
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Request was modified concurrently"})
		case errors.Is(err, workflow.ErrMissingDuration):
			writeJSON(w, http.StatusUnprocessableEntity, dto.ErrorResponse{Error: "Positive duration_minutes is required to mark repaired"})
		case errors.Is(err, workflow.ErrMissingReason):
			writeJSON(w, http.StatusUnprocessableEntity, dto.ErrorResponse{Error: "Reason is required to scrap a request"})
		case errors.Is(err, workflow.ErrInvalidStatus):
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid target status"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to apply transition"})
		}
		return
	}

	writeJSON(w, http.StatusOK, TransitionResponse{
		Request:    result.Request,
		LogPending: result.LogPending,
	})
}

// Logs handles GET /api/v1/requests/:id/logs
func (h *RequestHandler) Logs(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request ID"})
		return
	}

	var request models.MaintenanceRequest
	if err := h.db.Select("id").
		Where("id = ? AND organization_id = ?", requestID, orgID).
		First(&request).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Request not found"})
		return
	}

	var logs []models.RequestLog
	if err := h.db.Where("request_id = ? AND organization_id = ?", requestID, orgID).
		Order("created_at ASC").
		Find(&logs).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list logs"})
		return
	}

	writeJSON(w, http.StatusOK, logs)
}
