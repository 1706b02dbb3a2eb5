package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gearguard/gearguard/internal/api/dto"
	"github.com/gearguard/gearguard/internal/api/middleware"
	"github.com/gearguard/gearguard/internal/api/validation"
	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TeamHandler struct {
	db           *gorm.DB
	inviteExpiry time.Duration
}

func NewTeamHandler(db *gorm.DB, inviteExpiry time.Duration) *TeamHandler {
	if inviteExpiry <= 0 {
		inviteExpiry = 72 * time.Hour
	}
	return &TeamHandler{db: db, inviteExpiry: inviteExpiry}
}

type TeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// List handles GET /api/v1/teams
func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var teams []models.Team
	if err := h.db.Where("organization_id = ?", orgID).
		Preload("Members").
		Order("name ASC").
		Find(&teams).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list teams"})
		return
	}

	writeJSON(w, http.StatusOK, teams)
}

// Create handles POST /api/v1/teams
func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var req TeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Name is required"})
		return
	}

	team := models.Team{
		OrganizationID: orgID,
		Name:           req.Name,
		Description:    req.Description,
	}
	if err := h.db.Create(&team).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create team"})
		return
	}

	writeJSON(w, http.StatusCreated, team)
}

// Get handles GET /api/v1/teams/:id
func (h *TeamHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	teamID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid team ID"})
		return
	}

	var team models.Team
	if err := h.db.Where("id = ? AND organization_id = ?", teamID, orgID).
		Preload("Members").
		First(&team).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Team not found"})
		return
	}

	writeJSON(w, http.StatusOK, team)
}

// Update handles PUT /api/v1/teams/:id
func (h *TeamHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	teamID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid team ID"})
		return
	}

	var req TeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Name is required"})
		return
	}

	result := h.db.Model(&models.Team{}).
		Where("id = ? AND organization_id = ?", teamID, orgID).
		Updates(map[string]interface{}{"name": req.Name, "description": req.Description})
	if result.Error != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update team"})
		return
	}
	if result.RowsAffected == 0 {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Team not found"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Team updated"})
}

// Delete handles DELETE /api/v1/teams/:id. Membership rows go with the team;
// equipment keeps its team_id and simply points at a soft-deleted row until
// reassigned.
func (h *TeamHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	teamID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid team ID"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND organization_id = ?", teamID, orgID).
			Delete(&models.Team{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("team_id = ?", teamID).Delete(&models.TeamMember{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Team not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete team"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Team deleted"})
}

type TeamMemberRequest struct {
	UserID string `json:"user_id"`
}

// AddMember handles POST /api/v1/teams/:id/members
func (h *TeamHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	teamID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid team ID"})
		return
	}

	var req TeamMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid user ID"})
		return
	}

	var team models.Team
	if err := h.db.Where("id = ? AND organization_id = ?", teamID, orgID).First(&team).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Team not found"})
		return
	}
	var user models.User
	if err := h.db.Where("id = ? AND organization_id = ?", userID, orgID).First(&user).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "User not found in organization"})
		return
	}

	member := models.TeamMember{TeamID: teamID, UserID: userID}
	if err := h.db.Where(member).FirstOrCreate(&member).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to add member"})
		return
	}

	writeJSON(w, http.StatusCreated, dto.SuccessResponse{Message: "Member added"})
}

// RemoveMember handles DELETE /api/v1/teams/:id/members/:userID
func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	teamID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid team ID"})
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid user ID"})
		return
	}

	var team models.Team
	if err := h.db.Where("id = ? AND organization_id = ?", teamID, orgID).First(&team).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Team not found"})
		return
	}

	result := h.db.Where("team_id = ? AND user_id = ?", teamID, userID).
		Delete(&models.TeamMember{})
	if result.Error != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to remove member"})
		return
	}
	if result.RowsAffected == 0 {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Member not found"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Member removed"})
}

type CreateInviteRequest struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role,omitempty"`
}

// CreateInvite handles POST /api/v1/teams/:id/invites
func (h *TeamHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())
	actorID := middleware.GetUserID(r.Context())

	teamID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid team ID"})
		return
	}

	var req CreateInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if !validation.IsValidEmail(req.Email) {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid email"})
		return
	}
	role := req.Role
	if role == models.RoleNone {
		role = models.RoleTechnician
	}
	if !role.Valid() || role == models.RoleAdmin {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid invite role"})
		return
	}

	var team models.Team
	if err := h.db.Where("id = ? AND organization_id = ?", teamID, orgID).First(&team).Error; err != nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Team not found"})
		return
	}

	invite := models.TeamInvite{
		OrganizationID: orgID,
		TeamID:         teamID,
		Email:          req.Email,
		Token:          newInviteToken(),
		Role:           role,
		Status:         models.InvitePending,
		InvitedByID:    actorID,
		ExpiresAt:      time.Now().Add(h.inviteExpiry),
	}
	if err := h.db.Create(&invite).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create invite"})
		return
	}

	// Token is returned once at creation; it is excluded from reads.
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"invite": invite,
		"token":  invite.Token,
	})
}

type AcceptInviteRequest struct {
	Token string `json:"token"`
}

// AcceptInvite handles POST /api/v1/invites/accept. The caller redeems a
// token: they join the inviting organization (if unaffiliated) with the
// invited role and become a member of the team.
func (h *TeamHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req AcceptInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Token is required"})
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var invite models.TeamInvite
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("token = ?", req.Token).First(&invite).Error; err != nil {
			return err
		}
		if !invite.Acceptable(time.Now()) {
			return errInviteUnusable
		}
		if user.Email != invite.Email {
			return errInviteWrongUser
		}
		if user.OrganizationID != nil && *user.OrganizationID != invite.OrganizationID {
			return errInviteWrongOrg
		}

		if user.OrganizationID == nil {
			if err := tx.Model(&user).Updates(map[string]interface{}{
				"organization_id": invite.OrganizationID,
				"role":            invite.Role,
			}).Error; err != nil {
				return err
			}
		}

		member := models.TeamMember{TeamID: invite.TeamID, UserID: user.ID}
		if err := tx.Where(member).FirstOrCreate(&member).Error; err != nil {
			return err
		}

		return tx.Model(&invite).Update("status", models.InviteAccepted).Error
	})
	if err != nil {
		switch err {
		case gorm.ErrRecordNotFound:
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Invite not found"})
		case errInviteUnusable:
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Invite is no longer valid"})
		case errInviteWrongUser:
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Invite was issued to a different email"})
		case errInviteWrongOrg:
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Already a member of another organization"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to accept invite"})
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Invite accepted"})
}

var (
	errInviteUnusable  = inviteError("invite no longer valid")
	errInviteWrongUser = inviteError("invite issued to a different email")
	errInviteWrongOrg  = inviteError("member of another organization")
)

type inviteError string

func (e inviteError) Error() string { return string(e) }

func newInviteToken() string {
	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
