package models

import "github.com/google/uuid"

type Team struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	Name           string    `gorm:"not null" json:"name"`
	Description    string    `json:"description,omitempty"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	Members      []User        `gorm:"many2many:team_members" json:"members,omitempty"`
}

func (Team) TableName() string {
	return "teams"
}

type TeamMember struct {
	TeamID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;primaryKey"`
}

func (TeamMember) TableName() string {
	return "team_members"
}
