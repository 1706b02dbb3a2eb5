package models

import "github.com/google/uuid"

// MaintenanceSchedule generates recurring preventive maintenance requests.
// The worker's scheduler tick creates a preventive MaintenanceRequest each
// time NextRunAt elapses and advances it along the cron expression.
type MaintenanceSchedule struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	EquipmentID    uuid.UUID `gorm:"type:uuid;index;not null" json:"equipment_id"`

	Title    string          `gorm:"not null" json:"title"`
	CronExpr string          `gorm:"size:100;not null" json:"cron_expr"` // e.g. "0 6 1 * *" (monthly)
	Priority RequestPriority `gorm:"not null;default:'medium'" json:"priority"`
	TeamID   *uuid.UUID      `gorm:"type:uuid;index" json:"team_id,omitempty"`

	IsEnabled bool `gorm:"default:true;index" json:"is_enabled"`

	// Timing (Unix timestamps, UTC)
	NextRunAt     int64      `gorm:"index" json:"next_run_at"`
	LastRunAt     *int64     `json:"last_run_at,omitempty"`
	LastRequestID *uuid.UUID `gorm:"type:uuid" json:"last_request_id,omitempty"`

	// Relationships
	Organization *Organization       `gorm:"foreignKey:OrganizationID" json:"-"`
	Equipment    *Equipment          `gorm:"foreignKey:EquipmentID" json:"-"`
	LastRequest  *MaintenanceRequest `gorm:"foreignKey:LastRequestID" json:"-"`
}

func (MaintenanceSchedule) TableName() string {
	return "maintenance_schedules"
}
