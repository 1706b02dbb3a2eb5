package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gearguard/gearguard/internal/api/dto"
	"github.com/gearguard/gearguard/internal/api/middleware"
	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CategoryHandler struct {
	db *gorm.DB
}

func NewCategoryHandler(db *gorm.DB) *CategoryHandler {
	return &CategoryHandler{db: db}
}

type CategoryRequest struct {
	Name string `json:"name"`
}

// List handles GET /api/v1/categories
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var categories []models.EquipmentCategory
	if err := h.db.Where("organization_id = ?", orgID).
		Order("name ASC").
		Find(&categories).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list categories"})
		return
	}

	writeJSON(w, http.StatusOK, categories)
}

// Create handles POST /api/v1/categories
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var req CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Name is required"})
		return
	}

	category := models.EquipmentCategory{OrganizationID: orgID, Name: req.Name}
	if err := h.db.Create(&category).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create category"})
		return
	}

	writeJSON(w, http.StatusCreated, category)
}

// Update handles PUT /api/v1/categories/:id
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	categoryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid category ID"})
		return
	}

	var req CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Name is required"})
		return
	}

	result := h.db.Model(&models.EquipmentCategory{}).
		Where("id = ? AND organization_id = ?", categoryID, orgID).
		Update("name", req.Name)
	if result.Error != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update category"})
		return
	}
	if result.RowsAffected == 0 {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Category not found"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Category updated"})
}

// Delete handles DELETE /api/v1/categories/:id
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	categoryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid category ID"})
		return
	}

	// Keep equipment rows; they just lose the category reference.
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Equipment{}).
			Where("category_id = ? AND organization_id = ?", categoryID, orgID).
			Update("category_id", nil).Error; err != nil {
			return err
		}
		result := tx.Where("id = ? AND organization_id = ?", categoryID, orgID).
			Delete(&models.EquipmentCategory{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Category not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete category"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Category deleted"})
}
