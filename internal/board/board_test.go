package board_test

import (
	"testing"
	"time"

	"github.com/gearguard/gearguard/internal/board"
	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/gearguard/gearguard/internal/feed"
	"github.com/gearguard/gearguard/internal/workflow"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRequest(status models.RequestStatus, title string) models.MaintenanceRequest {
	return models.MaintenanceRequest{
		Base: models.Base{
			ID:        uuid.New(),
			CreatedAt: time.Now(),
		},
		OrganizationID: uuid.New(),
		Title:          title,
		EquipmentID:    uuid.New(),
		Type:           models.RequestTypeCorrective,
		Priority:       models.PriorityMedium,
		Status:         status,
		CreatedByID:    uuid.New(),
	}
}

func manager() workflow.Membership {
	return workflow.Membership{Role: models.RoleManager, OrganizationID: uuid.New()}
}

func columnFor(b board.Board, status models.RequestStatus) board.Column {
	for _, col := range b.Columns {
		if col.Status == status {
			return col
		}
	}
	return board.Column{}
}

func TestBoard_FixedColumnOrder(t *testing.T) {
	p := board.NewProjection(manager(), uuid.New(), nil)
	b := p.Board(board.Filter{})

	require.Len(t, b.Columns, 4)
	assert.Equal(t, models.StatusNew, b.Columns[0].Status)
	assert.Equal(t, models.StatusInProgress, b.Columns[1].Status)
	assert.Equal(t, models.StatusRepaired, b.Columns[2].Status)
	assert.Equal(t, models.StatusScrap, b.Columns[3].Status)
}

func TestBoard_GroupsByStatus(t *testing.T) {
	reqs := []models.MaintenanceRequest{
		makeRequest(models.StatusNew, "broken pump"),
		makeRequest(models.StatusNew, "leaking valve"),
		makeRequest(models.StatusInProgress, "jammed conveyor"),
		makeRequest(models.StatusScrap, "dead forklift"),
	}
	p := board.NewProjection(manager(), uuid.New(), reqs)
	b := p.Board(board.Filter{})

	assert.Equal(t, 2, columnFor(b, models.StatusNew).Count)
	assert.Equal(t, 1, columnFor(b, models.StatusInProgress).Count)
	assert.Equal(t, 0, columnFor(b, models.StatusRepaired).Count)
	assert.Equal(t, 1, columnFor(b, models.StatusScrap).Count)
}

func TestBoard_Filters(t *testing.T) {
	high := makeRequest(models.StatusNew, "broken pump")
	high.Priority = models.PriorityHigh
	low := makeRequest(models.StatusNew, "squeaky door")
	low.Priority = models.PriorityLow

	p := board.NewProjection(manager(), uuid.New(), []models.MaintenanceRequest{high, low})

	b := p.Board(board.Filter{Priority: models.PriorityHigh})
	assert.Equal(t, 1, columnFor(b, models.StatusNew).Count)
	assert.Equal(t, "broken pump", columnFor(b, models.StatusNew).Cards[0].Request.Title)

	b = p.Board(board.Filter{Search: "PUMP"})
	assert.Equal(t, 1, columnFor(b, models.StatusNew).Count)

	b = p.Board(board.Filter{Search: "nothing matches"})
	assert.Equal(t, 0, columnFor(b, models.StatusNew).Count)
}

func TestBoard_OptimisticMoveAndRollback(t *testing.T) {
	req := makeRequest(models.StatusNew, "broken pump")
	p := board.NewProjection(manager(), uuid.New(), []models.MaintenanceRequest{req})

	decision := p.BeginMove(req.ID, models.StatusInProgress)
	require.True(t, decision.Allowed)

	// The card appears in the target column immediately, marked pending.
	b := p.Board(board.Filter{})
	assert.Equal(t, 0, columnFor(b, models.StatusNew).Count)
	inProgress := columnFor(b, models.StatusInProgress)
	require.Equal(t, 1, inProgress.Count)
	assert.True(t, inProgress.Cards[0].Pending)

	// Rollback restores the confirmed position.
	p.RollbackMove(req.ID)
	b = p.Board(board.Filter{})
	assert.Equal(t, 1, columnFor(b, models.StatusNew).Count)
	assert.Equal(t, 0, columnFor(b, models.StatusInProgress).Count)
}

func TestBoard_BeginMoveRejectsForbidden(t *testing.T) {
	req := makeRequest(models.StatusNew, "broken pump")
	viewer := workflow.Membership{Role: models.RoleRequester, OrganizationID: uuid.New()}
	p := board.NewProjection(viewer, uuid.New(), []models.MaintenanceRequest{req})

	decision := p.BeginMove(req.ID, models.StatusInProgress)
	assert.False(t, decision.Allowed)

	// No speculative state recorded for rejected moves.
	b := p.Board(board.Filter{})
	assert.Equal(t, 1, columnFor(b, models.StatusNew).Count)
}

func TestBoard_ApplyEventConfirmsMove(t *testing.T) {
	viewerID := uuid.New()
	req := makeRequest(models.StatusNew, "broken pump")
	p := board.NewProjection(manager(), viewerID, []models.MaintenanceRequest{req})

	require.True(t, p.BeginMove(req.ID, models.StatusInProgress).Allowed)

	confirmed := req
	confirmed.Status = models.StatusInProgress
	evt := feed.RowEvent(feed.EventUpdate, "maintenance_requests", req.OrganizationID, viewerID, &confirmed)

	notice := p.ApplyEvent(evt)
	assert.Nil(t, notice, "own updates produce no notice")

	b := p.Board(board.Filter{})
	inProgress := columnFor(b, models.StatusInProgress)
	require.Equal(t, 1, inProgress.Count)
	assert.False(t, inProgress.Cards[0].Pending, "confirmed rows are no longer pending")
}

func TestBoard_ApplyEventIdempotent(t *testing.T) {
	viewerID := uuid.New()
	req := makeRequest(models.StatusNew, "broken pump")
	p := board.NewProjection(manager(), viewerID, []models.MaintenanceRequest{req})

	moved := req
	moved.Status = models.StatusInProgress
	evt := feed.RowEvent(feed.EventUpdate, "maintenance_requests", req.OrganizationID, uuid.New(), &moved)

	p.ApplyEvent(evt)
	first := p.Board(board.Filter{})
	p.ApplyEvent(evt)
	second := p.Board(board.Filter{})

	assert.Equal(t, first, second, "re-delivered events must not change the board")
	assert.Equal(t, 1, columnFor(second, models.StatusInProgress).Count)
}

func TestBoard_ApplyEventRemoteNotice(t *testing.T) {
	viewerID := uuid.New()
	req := makeRequest(models.StatusNew, "broken pump")
	p := board.NewProjection(manager(), viewerID, []models.MaintenanceRequest{req})

	moved := req
	moved.Status = models.StatusScrap
	evt := feed.RowEvent(feed.EventUpdate, "maintenance_requests", req.OrganizationID, uuid.New(), &moved)

	notice := p.ApplyEvent(evt)
	require.NotNil(t, notice)
	assert.Equal(t, req.ID, notice.RequestID)
	assert.Equal(t, models.StatusScrap, notice.Status)
	assert.Equal(t, "broken pump", notice.Title)
}

func TestBoard_ApplyEventInsertAndDelete(t *testing.T) {
	viewerID := uuid.New()
	p := board.NewProjection(manager(), viewerID, nil)

	req := makeRequest(models.StatusNew, "new arrival")
	insert := feed.RowEvent(feed.EventInsert, "maintenance_requests", req.OrganizationID, uuid.New(), &req)
	p.ApplyEvent(insert)
	assert.Equal(t, 1, columnFor(p.Board(board.Filter{}), models.StatusNew).Count)

	del := feed.RowEvent(feed.EventDelete, "maintenance_requests", req.OrganizationID, uuid.New(), &req)
	p.ApplyEvent(del)
	assert.Equal(t, 0, columnFor(p.Board(board.Filter{}), models.StatusNew).Count)
}

func TestBoard_ApplyEventIgnoresOtherTables(t *testing.T) {
	p := board.NewProjection(manager(), uuid.New(), nil)
	req := makeRequest(models.StatusNew, "not a request row")
	evt := feed.RowEvent(feed.EventInsert, "equipment", req.OrganizationID, uuid.New(), &req)

	assert.Nil(t, p.ApplyEvent(evt))
	assert.Equal(t, 0, columnFor(p.Board(board.Filter{}), models.StatusNew).Count)
}

func TestBoard_DraggableReflectsRole(t *testing.T) {
	viewerID := uuid.New()
	unassigned := makeRequest(models.StatusNew, "unassigned")
	other := uuid.New()
	assignedToOther := makeRequest(models.StatusInProgress, "someone else's")
	assignedToOther.TechnicianID = &other

	viewer := workflow.Membership{Role: models.RoleTechnician, OrganizationID: uuid.New()}
	p := board.NewProjection(viewer, viewerID, []models.MaintenanceRequest{unassigned, assignedToOther})
	b := p.Board(board.Filter{})

	assert.True(t, columnFor(b, models.StatusNew).Cards[0].Draggable, "technician can pick up unassigned new requests")
	assert.False(t, columnFor(b, models.StatusInProgress).Cards[0].Draggable, "technician cannot move another's request")
}
