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

type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// Me handles GET /api/v1/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}

	writeJSON(w, http.StatusOK, userToDTO(&user))
}

// List handles GET /api/v1/users. Organization members only.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	query := h.db.Model(&models.User{}).Where("organization_id = ?", orgID)
	if role := r.URL.Query().Get("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	var users []models.User
	if err := query.Order("name ASC").Find(&users).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list users"})
		return
	}

	out := make([]dto.UserDTO, 0, len(users))
	for i := range users {
		out = append(out, userToDTO(&users[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

type UpdateUserRoleRequest struct {
	Role models.Role `json:"role"`
}

// UpdateRole handles PUT /api/v1/users/:id/role. Admin only; role changes
// take effect on the target's next workflow action, not their next login.
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())
	actorID := middleware.GetUserID(r.Context())

	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid user ID"})
		return
	}

	var req UpdateUserRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Role.Valid() {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Valid role is required"})
		return
	}

	// The token claim is not trusted for role administration.
	var actor models.User
	if err := h.db.First(&actor, actorID).Error; err != nil ||
		actor.Role != models.RoleAdmin ||
		actor.OrganizationID == nil || *actor.OrganizationID != orgID {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Admin role required"})
		return
	}
	if targetID == actorID && req.Role != models.RoleAdmin {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Admins cannot demote themselves"})
		return
	}

	result := h.db.Model(&models.User{}).
		Where("id = ? AND organization_id = ?", targetID, orgID).
		Update("role", req.Role)
	if result.Error != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update role"})
		return
	}
	if result.RowsAffected == 0 {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "User not found"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Role updated"})
}
