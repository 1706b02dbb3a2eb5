package models

import (
	"time"

	"github.com/google/uuid"
)

type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestApproved JoinRequestStatus = "approved"
	JoinRequestRejected JoinRequestStatus = "rejected"
)

// JoinRequest is a user's petition to join an organization. Approval is a
// privileged operation: it atomically updates the profile, the request row
// and the role in one transaction.
type JoinRequest struct {
	Base
	OrganizationID uuid.UUID         `gorm:"type:uuid;index;not null" json:"organization_id"`
	UserID         uuid.UUID         `gorm:"type:uuid;index;not null" json:"user_id"`
	Status         JoinRequestStatus `gorm:"not null;index;default:'pending'" json:"status"`
	DecidedByID    *uuid.UUID        `gorm:"type:uuid" json:"decided_by_id,omitempty"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	User         *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (JoinRequest) TableName() string {
	return "join_requests"
}

type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteExpired  InviteStatus = "expired"
	InviteRevoked  InviteStatus = "revoked"
)

// TeamInvite lets an admin or manager pull a user into a team by email. The
// opaque token doubles as the acceptance credential.
type TeamInvite struct {
	Base
	OrganizationID uuid.UUID    `gorm:"type:uuid;index;not null" json:"organization_id"`
	TeamID         uuid.UUID    `gorm:"type:uuid;index;not null" json:"team_id"`
	Email          string       `gorm:"index;not null" json:"email"`
	Token          string       `gorm:"uniqueIndex;not null" json:"-"`
	Role           Role         `gorm:"not null;default:'technician'" json:"role"`
	Status         InviteStatus `gorm:"not null;index;default:'pending'" json:"status"`
	InvitedByID    uuid.UUID    `gorm:"type:uuid;not null" json:"invited_by_id"`
	ExpiresAt      time.Time    `gorm:"not null" json:"expires_at"`

	// Relationships
	Team      *Team `gorm:"foreignKey:TeamID" json:"-"`
	InvitedBy *User `gorm:"foreignKey:InvitedByID" json:"-"`
}

func (TeamInvite) TableName() string {
	return "team_invites"
}

// Acceptable reports whether the invite can still be redeemed.
func (i *TeamInvite) Acceptable(now time.Time) bool {
	return i.Status == InvitePending && now.Before(i.ExpiresAt)
}
