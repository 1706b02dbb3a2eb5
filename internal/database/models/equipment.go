package models

import (
	"time"

	"github.com/google/uuid"
)

type EquipmentStatus string

const (
	EquipmentStatusActive   EquipmentStatus = "active"
	EquipmentStatusScrapped EquipmentStatus = "scrapped"
)

type EquipmentCategory struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	Name           string    `gorm:"not null" json:"name"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	Equipment    []Equipment   `gorm:"foreignKey:CategoryID" json:"-"`
}

func (EquipmentCategory) TableName() string {
	return "equipment_categories"
}

type Equipment struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`

	Name         string          `gorm:"not null" json:"name"`
	SerialNumber string          `gorm:"index" json:"serial_number,omitempty"`
	Status       EquipmentStatus `gorm:"not null;index;default:'active'" json:"status"`
	Location     string          `json:"location,omitempty"`
	Description  string          `json:"description,omitempty"`

	CategoryID *uuid.UUID `gorm:"type:uuid;index" json:"category_id,omitempty"`
	// Default maintenance team for this asset.
	TeamID *uuid.UUID `gorm:"type:uuid;index" json:"team_id,omitempty"`
	// Preferred technician, if any.
	TechnicianID *uuid.UUID `gorm:"type:uuid;index" json:"technician_id,omitempty"`

	PurchaseDate *time.Time `json:"purchase_date,omitempty"`
	WarrantyDate *time.Time `json:"warranty_date,omitempty"`

	// Relationships
	Organization *Organization        `gorm:"foreignKey:OrganizationID" json:"-"`
	Category     *EquipmentCategory   `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Team         *Team                `gorm:"foreignKey:TeamID" json:"-"`
	Technician   *User                `gorm:"foreignKey:TechnicianID" json:"-"`
	Requests     []MaintenanceRequest `gorm:"foreignKey:EquipmentID" json:"-"`
}

func (Equipment) TableName() string {
	return "equipment"
}

// IsScrapped reports whether the asset is terminal. Scrapped equipment cannot
// be edited and cannot be the target of new maintenance requests.
func (e *Equipment) IsScrapped() bool {
	return e.Status == EquipmentStatusScrapped
}
