package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrUnknownUser is returned when the authenticated identity has no profile
// row. Distinct from an unaffiliated profile, which resolves cleanly to a
// zero Membership.
var ErrUnknownUser = errors.New("no profile for user")

// Resolver looks up the acting user's role and organization. It must succeed
// before any workflow operation is attempted; a store failure is reported as
// an error so callers treat it as unauthorized rather than unaffiliated.
type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (Membership, error) {
	var user models.User
	if err := r.db.WithContext(ctx).
		Select("organization_id", "role", "is_active").
		First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Membership{}, ErrUnknownUser
		}
		return Membership{}, fmt.Errorf("resolving membership: %w", err)
	}

	if user.OrganizationID == nil || !user.IsActive {
		return Membership{}, nil
	}

	role := user.Role
	if !role.Valid() {
		// Affiliated profile with a missing or unknown role should not
		// happen; fall back to no privilege rather than failing open.
		role = models.RoleNone
	}

	return Membership{
		Role:           role,
		OrganizationID: *user.OrganizationID,
	}, nil
}
