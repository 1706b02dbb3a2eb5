package models

import "github.com/google/uuid"

// Role is the closed set of per-organization roles. A user holds exactly one
// role within exactly one organization; RoleNone marks an unaffiliated
// profile. Keeping this a typed enum (rather than free-form strings) lets the
// workflow layer switch exhaustively over it.
type Role string

const (
	RoleNone       Role = ""
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleTechnician Role = "technician"
	RoleRequester  Role = "requester"
)

// Valid reports whether r names a real role (RoleNone excluded).
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleTechnician, RoleRequester:
		return true
	}
	return false
}

type User struct {
	Base
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Name         string `json:"name"`

	// Nil until the user creates or joins an organization.
	OrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	Role           Role       `gorm:"default:''" json:"role"`
	IsActive       bool       `gorm:"default:true" json:"is_active"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	Teams        []Team        `gorm:"many2many:team_members" json:"-"`
}

func (User) TableName() string {
	return "users"
}
