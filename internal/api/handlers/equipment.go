package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gearguard/gearguard/internal/api/dto"
	"github.com/gearguard/gearguard/internal/api/middleware"
	"github.com/gearguard/gearguard/internal/api/validation"
	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/gearguard/gearguard/internal/feed"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EquipmentHandler struct {
	db  *gorm.DB
	hub *feed.Hub
}

func NewEquipmentHandler(db *gorm.DB, hub *feed.Hub) *EquipmentHandler {
	return &EquipmentHandler{db: db, hub: hub}
}

// CreateEquipmentRequest represents the request to register an asset
type CreateEquipmentRequest struct {
	Name         string  `json:"name"`
	SerialNumber string  `json:"serial_number,omitempty"`
	Location     string  `json:"location,omitempty"`
	Description  string  `json:"description,omitempty"`
	CategoryID   *string `json:"category_id,omitempty"`
	TeamID       *string `json:"team_id,omitempty"`
	TechnicianID *string `json:"technician_id,omitempty"`
	PurchaseDate string  `json:"purchase_date,omitempty"`
	WarrantyDate string  `json:"warranty_date,omitempty"`
}

func (r CreateEquipmentRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name == "" {
		errors["name"] = "Name is required"
	} else if !validation.MaxLen(r.Name, 255) {
		errors["name"] = "Name is too long"
	}
	for field, id := range map[string]*string{
		"category_id": r.CategoryID, "team_id": r.TeamID, "technician_id": r.TechnicianID,
	} {
		if id != nil && *id != "" && !validation.IsValidUUID(*id) {
			errors[field] = "Invalid ID format"
		}
	}
	for field, value := range map[string]string{
		"purchase_date": r.PurchaseDate, "warranty_date": r.WarrantyDate,
	} {
		if value != "" {
			if _, ok := validation.ParseDate(value); !ok {
				errors[field] = "Invalid date format"
			}
		}
	}
	return errors
}

// UpdateEquipmentRequest represents a partial equipment update
type UpdateEquipmentRequest struct {
	Name         *string `json:"name,omitempty"`
	SerialNumber *string `json:"serial_number,omitempty"`
	Location     *string `json:"location,omitempty"`
	Description  *string `json:"description,omitempty"`
	CategoryID   *string `json:"category_id,omitempty"`
	TeamID       *string `json:"team_id,omitempty"`
	TechnicianID *string `json:"technician_id,omitempty"`
}

// List handles GET /api/v1/equipment
func (h *EquipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	query := h.db.Model(&models.Equipment{}).Where("organization_id = ?", orgID)

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if categoryID := r.URL.Query().Get("category_id"); categoryID != "" {
		if id, err := uuid.Parse(categoryID); err == nil {
			query = query.Where("category_id = ?", id)
		}
	}
	if teamID := r.URL.Query().Get("team_id"); teamID != "" {
		if id, err := uuid.Parse(teamID); err == nil {
			query = query.Where("team_id = ?", id)
		}
	}
	if search := r.URL.Query().Get("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("name LIKE ? OR serial_number LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count equipment"})
		return
	}

	var equipment []models.Equipment
	if err := query.
		Preload("Category").
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&equipment).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list equipment"})
		return
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       equipment,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: dto.TotalPages(total, pagination.PerPage),
	})
}

// Create handles POST /api/v1/equipment
func (h *EquipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())
	userID := middleware.GetUserID(r.Context())

	var req CreateEquipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	equipment := models.Equipment{
		OrganizationID: orgID,
		Name:           req.Name,
		SerialNumber:   req.SerialNumber,
		Status:         models.EquipmentStatusActive,
		Location:       req.Location,
		Description:    req.Description,
	}

	if id, ok, errMsg := h.resolveRef(orgID, req.CategoryID, &models.EquipmentCategory{}); errMsg != "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: errMsg})
		return
	} else if ok {
		equipment.CategoryID = &id
	}
	if id, ok, errMsg := h.resolveRef(orgID, req.TeamID, &models.Team{}); errMsg != "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: errMsg})
		return
	} else if ok {
		equipment.TeamID = &id
	}
	if req.TechnicianID != nil && *req.TechnicianID != "" {
		id, _ := uuid.Parse(*req.TechnicianID)
		var tech models.User
		if err := h.db.Where("id = ? AND organization_id = ?", id, orgID).First(&tech).Error; err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Technician not found"})
			return
		}
		equipment.TechnicianID = &id
	}
	if req.PurchaseDate != "" {
		t, _ := validation.ParseDate(req.PurchaseDate)
		equipment.PurchaseDate = &t
	}
	if req.WarrantyDate != "" {
		t, _ := validation.ParseDate(req.WarrantyDate)
		equipment.WarrantyDate = &t
	}

	if err := h.db.Create(&equipment).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create equipment"})
		return
	}

	h.hub.Publish(feed.RowEvent(feed.EventInsert, "equipment", orgID, userID, &equipment))
	writeJSON(w, http.StatusCreated, equipment)
}

// Get handles GET /api/v1/equipment/:id
func (h *EquipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	equipmentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid equipment ID"})
		return
	}

	var equipment models.Equipment
	if err := h.db.
		Preload("Category").
		Where("id = ? AND organization_id = ?", equipmentID, orgID).
		First(&equipment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Equipment not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get equipment"})
		return
	}

	writeJSON(w, http.StatusOK, equipment)
}

// Update handles PUT /api/v1/equipment/:id. Scrapped equipment is terminal
// and rejects all edits.
func (h *EquipmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())
	userID := middleware.GetUserID(r.Context())

	equipmentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid equipment ID"})
		return
	}

	var req UpdateEquipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	var equipment models.Equipment
	if err := h.db.Where("id = ? AND organization_id = ?", equipmentID, orgID).
		First(&equipment).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Equipment not found"})
		return
	}
	if equipment.IsScrapped() {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Scrapped equipment cannot be edited"})
		return
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if req.Name != nil {
		if *req.Name == "" {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Name cannot be empty"})
			return
		}
		updates["name"] = *req.Name
	}
	if req.SerialNumber != nil {
		updates["serial_number"] = *req.SerialNumber
	}
	if req.Location != nil {
		updates["location"] = *req.Location
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.CategoryID != nil {
		if id, ok, errMsg := h.resolveRef(orgID, req.CategoryID, &models.EquipmentCategory{}); errMsg != "" {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: errMsg})
			return
		} else if ok {
			updates["category_id"] = id
		} else {
			updates["category_id"] = nil
		}
	}
	if req.TeamID != nil {
		if id, ok, errMsg := h.resolveRef(orgID, req.TeamID, &models.Team{}); errMsg != "" {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: errMsg})
			return
		} else if ok {
			updates["team_id"] = id
		} else {
			updates["team_id"] = nil
		}
	}

	if err := h.db.Model(&equipment).Updates(updates).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update equipment"})
		return
	}

	h.hub.Publish(feed.RowEvent(feed.EventUpdate, "equipment", orgID, userID, &equipment))
	writeJSON(w, http.StatusOK, equipment)
}

// Delete handles DELETE /api/v1/equipment/:id. Soft delete; assets with
// open maintenance requests must be resolved (or scrapped) first.
func (h *EquipmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())
	userID := middleware.GetUserID(r.Context())

	equipmentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid equipment ID"})
		return
	}

	var equipment models.Equipment
	if err := h.db.Where("id = ? AND organization_id = ?", equipmentID, orgID).
		First(&equipment).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Equipment not found"})
		return
	}

	var open int64
	if err := h.db.Model(&models.MaintenanceRequest{}).
		Where("equipment_id = ? AND status IN ?", equipmentID,
			[]models.RequestStatus{models.StatusNew, models.StatusInProgress}).
		Count(&open).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete equipment"})
		return
	}
	if open > 0 {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Equipment has open maintenance requests"})
		return
	}

	if err := h.db.Delete(&equipment).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete equipment"})
		return
	}

	h.hub.Publish(feed.RowEvent(feed.EventDelete, "equipment", orgID, userID, &equipment))
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Equipment deleted"})
}

// resolveRef verifies an optional org-scoped reference. Returns the parsed
// id, whether it was supplied, and an error message when the row is missing.
func (h *EquipmentHandler) resolveRef(orgID uuid.UUID, ref *string, model interface{}) (uuid.UUID, bool, string) {
	if ref == nil || *ref == "" {
		return uuid.Nil, false, ""
	}
	id, err := uuid.Parse(*ref)
	if err != nil {
		return uuid.Nil, false, "Invalid ID format"
	}
	if err := h.db.Where("id = ? AND organization_id = ?", id, orgID).First(model).Error; err != nil {
		return uuid.Nil, false, "Referenced record not found"
	}
	return id, true, ""
}
