package handlers

import (
	"net/http"
	"time"

	"github.com/gearguard/gearguard/internal/api/dto"
	"github.com/gearguard/gearguard/internal/api/middleware"
	"github.com/gearguard/gearguard/internal/database/models"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	db *gorm.DB
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

type DashboardStats struct {
	RequestsByStatus map[models.RequestStatus]int64 `json:"requests_by_status"`
	OpenRequests     int64                          `json:"open_requests"`
	OverduePreventive int64                         `json:"overdue_preventive"`
	ActiveEquipment  int64                          `json:"active_equipment"`
	ScrappedEquipment int64                         `json:"scrapped_equipment"`
	Technicians      int64                          `json:"technicians"`
}

// Stats handles GET /api/v1/dashboard/stats. One round of aggregate counts
// for the landing tiles.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	stats := DashboardStats{
		RequestsByStatus: make(map[models.RequestStatus]int64, 4),
	}

	type statusCount struct {
		Status models.RequestStatus
		Count  int64
	}
	var counts []statusCount
	if err := h.db.Model(&models.MaintenanceRequest{}).
		Select("status, COUNT(*) as count").
		Where("organization_id = ?", orgID).
		Group("status").
		Scan(&counts).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load stats"})
		return
	}
	for _, status := range []models.RequestStatus{
		models.StatusNew, models.StatusInProgress, models.StatusRepaired, models.StatusScrap,
	} {
		stats.RequestsByStatus[status] = 0
	}
	for _, c := range counts {
		stats.RequestsByStatus[c.Status] = c.Count
	}
	stats.OpenRequests = stats.RequestsByStatus[models.StatusNew] +
		stats.RequestsByStatus[models.StatusInProgress]

	if err := h.db.Model(&models.MaintenanceRequest{}).
		Where("organization_id = ? AND type = ? AND status IN ? AND scheduled_date < ?",
			orgID, models.RequestTypePreventive,
			[]models.RequestStatus{models.StatusNew, models.StatusInProgress},
			time.Now()).
		Count(&stats.OverduePreventive).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load stats"})
		return
	}

	if err := h.db.Model(&models.Equipment{}).
		Where("organization_id = ? AND status = ?", orgID, models.EquipmentStatusActive).
		Count(&stats.ActiveEquipment).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load stats"})
		return
	}
	if err := h.db.Model(&models.Equipment{}).
		Where("organization_id = ? AND status = ?", orgID, models.EquipmentStatusScrapped).
		Count(&stats.ScrappedEquipment).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load stats"})
		return
	}

	if err := h.db.Model(&models.User{}).
		Where("organization_id = ? AND role = ? AND is_active = ?", orgID, models.RoleTechnician, true).
		Count(&stats.Technicians).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load stats"})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
