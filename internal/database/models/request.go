package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the workflow state of a maintenance request. Transitions
// between statuses follow a fixed directed graph enforced by the workflow
// package; repaired and scrap are terminal.
type RequestStatus string

const (
	StatusNew        RequestStatus = "new"
	StatusInProgress RequestStatus = "in_progress"
	StatusRepaired   RequestStatus = "repaired"
	StatusScrap      RequestStatus = "scrap"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusRepaired, StatusScrap:
		return true
	}
	return false
}

// Terminal reports whether no ordinary transition leaves this status.
func (s RequestStatus) Terminal() bool {
	return s == StatusRepaired || s == StatusScrap
}

type RequestType string

const (
	RequestTypeCorrective RequestType = "corrective"
	RequestTypePreventive RequestType = "preventive"
)

type RequestPriority string

const (
	PriorityLow    RequestPriority = "low"
	PriorityMedium RequestPriority = "medium"
	PriorityHigh   RequestPriority = "high"
)

type MaintenanceRequest struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`

	Title       string `gorm:"not null" json:"title"`
	Description string `json:"description,omitempty"`

	// Required at creation, immutable afterwards.
	EquipmentID uuid.UUID `gorm:"type:uuid;index;not null" json:"equipment_id"`

	Type     RequestType     `gorm:"not null;default:'corrective'" json:"type"`
	Priority RequestPriority `gorm:"not null;default:'medium'" json:"priority"`
	Status   RequestStatus   `gorm:"not null;index;default:'new'" json:"status"`

	TeamID       *uuid.UUID `gorm:"type:uuid;index" json:"team_id,omitempty"`
	TechnicianID *uuid.UUID `gorm:"type:uuid;index" json:"technician_id,omitempty"`

	// Required when Type is preventive.
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`
	// Collected when the request reaches repaired.
	DurationMinutes *int `json:"duration_minutes,omitempty"`

	CreatedByID uuid.UUID `gorm:"type:uuid;index;not null" json:"created_by_id"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	Equipment    *Equipment    `gorm:"foreignKey:EquipmentID" json:"equipment,omitempty"`
	Team         *Team         `gorm:"foreignKey:TeamID" json:"-"`
	Technician   *User         `gorm:"foreignKey:TechnicianID" json:"technician,omitempty"`
	CreatedBy    *User         `gorm:"foreignKey:CreatedByID" json:"-"`
	Logs         []RequestLog  `gorm:"foreignKey:RequestID" json:"logs,omitempty"`
}

func (MaintenanceRequest) TableName() string {
	return "maintenance_requests"
}

// RequestLog is an append-only audit entry tied to a request. The application
// never updates or deletes rows in this table.
type RequestLog struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	RequestID      uuid.UUID `gorm:"type:uuid;index;not null" json:"request_id"`
	ActorID        uuid.UUID `gorm:"type:uuid;not null" json:"actor_id"`
	Action         string    `gorm:"not null" json:"action"`
	Note           string    `json:"note,omitempty"`

	// Relationships
	Request *MaintenanceRequest `gorm:"foreignKey:RequestID" json:"-"`
	Actor   *User               `gorm:"foreignKey:ActorID" json:"-"`
}

func (RequestLog) TableName() string {
	return "request_logs"
}
