package workflow_test

import (
	"testing"

	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/gearguard/gearguard/internal/workflow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func assigned(id uuid.UUID) workflow.Assignment {
	return workflow.Assignment{TechnicianID: &id}
}

func TestValidate_GraphEdges(t *testing.T) {
	actor := uuid.New()

	tests := []struct {
		name    string
		role    models.Role
		current models.RequestStatus
		target  models.RequestStatus
		assign  workflow.Assignment
		allowed bool
	}{
		{"manager new to in_progress", models.RoleManager, models.StatusNew, models.StatusInProgress, workflow.Assignment{}, true},
		{"manager in_progress to repaired", models.RoleManager, models.StatusInProgress, models.StatusRepaired, workflow.Assignment{}, true},
		{"manager in_progress to scrap", models.RoleManager, models.StatusInProgress, models.StatusScrap, workflow.Assignment{}, true},
		{"admin new to in_progress", models.RoleAdmin, models.StatusNew, models.StatusInProgress, workflow.Assignment{}, true},
		{"technician pickup unassigned new", models.RoleTechnician, models.StatusNew, models.StatusInProgress, workflow.Assignment{}, true},
		{"technician own in_progress to repaired", models.RoleTechnician, models.StatusInProgress, models.StatusRepaired, assigned(actor), true},
		{"technician own in_progress to scrap", models.RoleTechnician, models.StatusInProgress, models.StatusScrap, assigned(actor), true},
		{"technician other's in_progress", models.RoleTechnician, models.StatusInProgress, models.StatusRepaired, assigned(uuid.New()), false},
		{"technician unassigned in_progress", models.RoleTechnician, models.StatusInProgress, models.StatusRepaired, workflow.Assignment{}, false},
		{"requester new to in_progress", models.RoleRequester, models.StatusNew, models.StatusInProgress, workflow.Assignment{}, false},
		{"requester in_progress to repaired", models.RoleRequester, models.StatusInProgress, models.StatusRepaired, assigned(actor), false},
		{"unaffiliated new to in_progress", models.RoleNone, models.StatusNew, models.StatusInProgress, workflow.Assignment{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := workflow.Validate(tt.role, tt.current, tt.target, tt.assign, actor)
			assert.Equal(t, tt.allowed, d.Allowed)
			if tt.allowed {
				assert.False(t, d.Override, "graph edges are never overrides")
			} else {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestValidate_OffGraphMoves(t *testing.T) {
	actor := uuid.New()

	offGraph := []struct {
		current, target models.RequestStatus
	}{
		{models.StatusNew, models.StatusRepaired},
		{models.StatusNew, models.StatusScrap},
		{models.StatusInProgress, models.StatusNew},
		{models.StatusRepaired, models.StatusNew},
		{models.StatusRepaired, models.StatusInProgress},
		{models.StatusRepaired, models.StatusScrap},
		{models.StatusScrap, models.StatusNew},
		{models.StatusScrap, models.StatusInProgress},
		{models.StatusScrap, models.StatusRepaired},
	}

	for _, move := range offGraph {
		t.Run(string(move.current)+"_to_"+string(move.target), func(t *testing.T) {
			// Admins and managers may leave the graph, flagged as overrides.
			for _, role := range []models.Role{models.RoleAdmin, models.RoleManager} {
				d := workflow.Validate(role, move.current, move.target, assigned(actor), actor)
				assert.True(t, d.Allowed, "%s should be allowed off-graph", role)
				assert.True(t, d.Override, "%s off-graph move must be an override", role)
			}

			// Everyone else is held to the graph, even on their own requests.
			for _, role := range []models.Role{models.RoleTechnician, models.RoleRequester, models.RoleNone} {
				d := workflow.Validate(role, move.current, move.target, assigned(actor), actor)
				assert.False(t, d.Allowed, "%s must not move off-graph", role)
			}
		})
	}
}

func TestValidate_NoSelfLoops(t *testing.T) {
	actor := uuid.New()
	statuses := []models.RequestStatus{
		models.StatusNew, models.StatusInProgress, models.StatusRepaired, models.StatusScrap,
	}
	roles := []models.Role{
		models.RoleAdmin, models.RoleManager, models.RoleTechnician, models.RoleRequester,
	}

	for _, role := range roles {
		for _, status := range statuses {
			d := workflow.Validate(role, status, status, assigned(actor), actor)
			assert.False(t, d.Allowed, "%s must not re-apply %s", role, status)
		}
	}
}

func TestValidate_UnknownStatus(t *testing.T) {
	d := workflow.Validate(models.RoleAdmin, "bogus", models.StatusNew, workflow.Assignment{}, uuid.New())
	assert.False(t, d.Allowed)

	d = workflow.Validate(models.RoleAdmin, models.StatusNew, "bogus", workflow.Assignment{}, uuid.New())
	assert.False(t, d.Allowed)
}

func TestValidate_TechnicianCannotPickupAssigned(t *testing.T) {
	actor := uuid.New()
	other := uuid.New()

	// Assigned to someone else: no pickup even from new.
	d := workflow.Validate(models.RoleTechnician, models.StatusNew, models.StatusInProgress, assigned(other), actor)
	assert.False(t, d.Allowed)

	// Assigned to the actor: proceeding is fine.
	d = workflow.Validate(models.RoleTechnician, models.StatusNew, models.StatusInProgress, assigned(actor), actor)
	assert.True(t, d.Allowed)
}

func TestCanMove(t *testing.T) {
	actor := uuid.New()

	tests := []struct {
		name    string
		role    models.Role
		current models.RequestStatus
		assign  workflow.Assignment
		want    bool
	}{
		{"manager can always move open requests", models.RoleManager, models.StatusNew, workflow.Assignment{}, true},
		{"manager can reopen terminal requests", models.RoleManager, models.StatusRepaired, workflow.Assignment{}, true},
		{"technician can pick up new", models.RoleTechnician, models.StatusNew, workflow.Assignment{}, true},
		{"technician can close own in_progress", models.RoleTechnician, models.StatusInProgress, assigned(actor), true},
		{"technician stuck on other's request", models.RoleTechnician, models.StatusInProgress, assigned(uuid.New()), false},
		{"technician stuck on terminal", models.RoleTechnician, models.StatusRepaired, assigned(actor), false},
		{"requester never moves", models.RoleRequester, models.StatusNew, workflow.Assignment{}, false},
		{"unaffiliated never moves", models.RoleNone, models.StatusNew, workflow.Assignment{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, workflow.CanMove(tt.role, tt.current, tt.assign, actor))
		})
	}
}
