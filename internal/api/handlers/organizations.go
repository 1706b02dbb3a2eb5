package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gearguard/gearguard/internal/api/dto"
	"github.com/gearguard/gearguard/internal/api/middleware"
	"github.com/gearguard/gearguard/internal/auth"
	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrganizationHandler covers the two privileged onboarding operations the
// row-level rules would otherwise forbid: creating an organization (caller
// becomes its admin) and deciding join requests (profile, request and role
// change in one transaction). Both fail closed when the caller does not hold
// the required position.
type OrganizationHandler struct {
	db         *gorm.DB
	jwtService *auth.JWTService
}

func NewOrganizationHandler(db *gorm.DB, jwtService *auth.JWTService) *OrganizationHandler {
	return &OrganizationHandler{db: db, jwtService: jwtService}
}

type CreateOrganizationRequest struct {
	Name string `json:"name"`
}

func (r CreateOrganizationRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(r.Name) == "" {
		errors["name"] = "Name is required"
	}
	return errors
}

// Create handles POST /api/v1/organizations. The caller must be
// unaffiliated; they become the new organization's admin and receive a fresh
// token carrying the membership.
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}
	if user.OrganizationID != nil {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Already a member of an organization"})
		return
	}

	org := models.Organization{Name: req.Name, Slug: slugify(req.Name)}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&org).Error; err != nil {
			return err
		}
		return tx.Model(&user).Updates(map[string]interface{}{
			"organization_id": org.ID,
			"role":            models.RoleAdmin,
		}).Error
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create organization"})
		return
	}

	token, err := h.jwtService.GenerateToken(user.ID, org.ID, user.Email, models.RoleAdmin)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to issue token"})
		return
	}
	setTokenCookie(w, token)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"organization": org,
		"token":        token,
	})
}

type CreateJoinRequestRequest struct {
	OrganizationID string `json:"organization_id"`
}

// CreateJoinRequest handles POST /api/v1/join-requests. Unaffiliated users
// petition to join an organization; an admin decides later.
func (h *OrganizationHandler) CreateJoinRequest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateJoinRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	orgID, err := uuid.Parse(req.OrganizationID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid organization ID"})
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}
	if user.OrganizationID != nil {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Already a member of an organization"})
		return
	}

	var org models.Organization
	if err := h.db.First(&org, orgID).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Organization not found"})
		return
	}

	var existing models.JoinRequest
	if err := h.db.Where("user_id = ? AND organization_id = ? AND status = ?",
		userID, orgID, models.JoinRequestPending).First(&existing).Error; err == nil {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Join request already pending"})
		return
	}

	join := models.JoinRequest{
		OrganizationID: orgID,
		UserID:         userID,
		Status:         models.JoinRequestPending,
	}
	if err := h.db.Create(&join).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create join request"})
		return
	}

	writeJSON(w, http.StatusCreated, join)
}

// ListJoinRequests handles GET /api/v1/join-requests (admin only, enforced
// by route middleware).
func (h *OrganizationHandler) ListJoinRequests(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	query := h.db.Model(&models.JoinRequest{}).
		Preload("User").
		Where("organization_id = ?", orgID)
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var requests []models.JoinRequest
	if err := query.Order("created_at DESC").Find(&requests).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list join requests"})
		return
	}

	writeJSON(w, http.StatusOK, requests)
}

type DecideJoinRequestRequest struct {
	// Role granted on approval; defaults to requester.
	Role models.Role `json:"role,omitempty"`
}

// ApproveJoinRequest handles POST /api/v1/join-requests/{id}/approve.
// Profile, role and request row change in one transaction so no observer
// sees a member without a role or an approved request without a membership.
func (h *OrganizationHandler) ApproveJoinRequest(w http.ResponseWriter, r *http.Request) {
	h.decideJoinRequest(w, r, true)
}

// RejectJoinRequest handles POST /api/v1/join-requests/{id}/reject.
func (h *OrganizationHandler) RejectJoinRequest(w http.ResponseWriter, r *http.Request) {
	h.decideJoinRequest(w, r, false)
}

func (h *OrganizationHandler) decideJoinRequest(w http.ResponseWriter, r *http.Request, approve bool) {
	orgID := middleware.GetOrganizationID(r.Context())
	actorID := middleware.GetUserID(r.Context())

	// Verify the caller really is this organization's admin; the JWT claim
	// alone is not trusted for the privileged path.
	var actor models.User
	if err := h.db.First(&actor, actorID).Error; err != nil ||
		actor.Role != models.RoleAdmin ||
		actor.OrganizationID == nil || *actor.OrganizationID != orgID {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Admin role required"})
		return
	}

	joinID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid join request ID"})
		return
	}

	role := models.RoleRequester
	if approve {
		var req DecideJoinRequestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Role != models.RoleNone {
			if !req.Role.Valid() {
				writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid role"})
				return
			}
			role = req.Role
		}
	}

	var join models.JoinRequest
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND organization_id = ?", joinID, orgID).
			First(&join).Error; err != nil {
			return err
		}
		if join.Status != models.JoinRequestPending {
			return errAlreadyDecided
		}

		status := models.JoinRequestRejected
		if approve {
			status = models.JoinRequestApproved
		}
		if err := tx.Model(&join).Updates(map[string]interface{}{
			"status":        status,
			"decided_by_id": actorID,
		}).Error; err != nil {
			return err
		}

		if approve {
			return tx.Model(&models.User{}).
				Where("id = ?", join.UserID).
				Updates(map[string]interface{}{
					"organization_id": orgID,
					"role":            role,
				}).Error
		}
		return nil
	})
	if err != nil {
		switch {
		case err == gorm.ErrRecordNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Join request not found"})
		case err == errAlreadyDecided:
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Join request already decided"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to decide join request"})
		}
		return
	}

	writeJSON(w, http.StatusOK, join)
}

var errAlreadyDecided = errDecided{}

type errDecided struct{}

func (errDecided) Error() string { return "join request already decided" }

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "'", "")
	// Add timestamp to ensure uniqueness
	return slug + "-" + time.Now().Format("0601021504")
}
