package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gearguard/gearguard/internal/api/dto"
	"github.com/gearguard/gearguard/internal/api/middleware"
	"github.com/gearguard/gearguard/internal/board"
	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/gearguard/gearguard/internal/feed"
	"github.com/gearguard/gearguard/internal/workflow"
	"gorm.io/gorm"
)

// BoardHandler serves the Kanban projection of the organization's requests
// and the change-feed stream clients use to keep it current.
type BoardHandler struct {
	db       *gorm.DB
	hub      *feed.Hub
	resolver *workflow.Resolver
}

func NewBoardHandler(db *gorm.DB, hub *feed.Hub, resolver *workflow.Resolver) *BoardHandler {
	return &BoardHandler{db: db, hub: hub, resolver: resolver}
}

// Board handles GET /api/v1/board. Columns are fixed and ordered; card
// draggability reflects what the caller's role may move from each column.
func (h *BoardHandler) Board(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())
	userID := middleware.GetUserID(r.Context())

	membership, err := h.resolver.Resolve(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}
	if !membership.Affiliated() {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Organization membership required"})
		return
	}

	var requests []models.MaintenanceRequest
	if err := h.db.WithContext(r.Context()).
		Preload("Equipment").
		Preload("Technician").
		Where("organization_id = ?", orgID).
		Find(&requests).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load board"})
		return
	}

	filter := board.Filter{
		Search:   r.URL.Query().Get("search"),
		Priority: models.RequestPriority(r.URL.Query().Get("priority")),
	}

	projection := board.NewProjection(membership, userID, requests)
	writeJSON(w, http.StatusOK, projection.Board(filter))
}

// Feed handles GET /api/v1/feed. Server-sent events, one event per committed
// row change in the caller's organization. The stream ends when the client
// disconnects.
func (h *BoardHandler) Feed(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := h.hub.Subscribe(r.Context(), orgID)
	for evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
		flusher.Flush()
	}
}
