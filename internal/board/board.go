// Package board projects an organization's maintenance requests into the
// fixed Kanban columns and tracks optimistic local moves until the change
// feed delivers the authoritative row.
package board

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/gearguard/gearguard/internal/feed"
	"github.com/gearguard/gearguard/internal/workflow"
	"github.com/google/uuid"
)

// Columns is the fixed, ordered column list.
var Columns = []models.RequestStatus{
	models.StatusNew,
	models.StatusInProgress,
	models.StatusRepaired,
	models.StatusScrap,
}

type Filter struct {
	Search   string
	Priority models.RequestPriority
}

type Card struct {
	Request   *models.MaintenanceRequest `json:"request"`
	Draggable bool                       `json:"draggable"`
	// True while an optimistic local move is awaiting confirmation.
	Pending bool `json:"pending,omitempty"`
}

type Column struct {
	Status models.RequestStatus `json:"status"`
	Cards  []Card               `json:"cards"`
	Count  int                  `json:"count"`
}

type Board struct {
	Columns []Column `json:"columns"`
}

// Notice describes a remote change worth telling the user about.
type Notice struct {
	RequestID uuid.UUID            `json:"request_id"`
	Title     string               `json:"title"`
	Status    models.RequestStatus `json:"status"`
}

// Projection is one user's live view of the board. Confirmed rows come from
// the store or the change feed; pending moves are local speculation kept
// separate so a rejected write can be rolled back without losing state.
type Projection struct {
	mu       sync.Mutex
	viewer   workflow.Membership
	viewerID uuid.UUID

	confirmed map[uuid.UUID]*models.MaintenanceRequest
	pending   map[uuid.UUID]models.RequestStatus
}

func NewProjection(viewer workflow.Membership, viewerID uuid.UUID, requests []models.MaintenanceRequest) *Projection {
	p := &Projection{
		viewer:    viewer,
		viewerID:  viewerID,
		confirmed: make(map[uuid.UUID]*models.MaintenanceRequest, len(requests)),
		pending:   make(map[uuid.UUID]models.RequestStatus),
	}
	for i := range requests {
		req := requests[i]
		p.confirmed[req.ID] = &req
	}
	return p
}

// Board groups the current rows into columns, applying pending moves on top
// of confirmed state.
func (p *Projection) Board(filter Filter) Board {
	p.mu.Lock()
	defer p.mu.Unlock()

	byStatus := make(map[models.RequestStatus][]Card)
	for _, req := range p.confirmed {
		if !matches(req, filter) {
			continue
		}
		status := req.Status
		pendingMove, isPending := p.pending[req.ID]
		if isPending {
			status = pendingMove
		}
		byStatus[status] = append(byStatus[status], Card{
			Request:   req,
			Draggable: workflow.CanMove(p.viewer.Role, status, workflow.AssignmentOf(req), p.viewerID),
			Pending:   isPending,
		})
	}

	board := Board{Columns: make([]Column, 0, len(Columns))}
	for _, status := range Columns {
		cards := byStatus[status]
		sort.Slice(cards, func(i, j int) bool {
			a, b := cards[i].Request, cards[j].Request
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.ID.String() < b.ID.String()
		})
		board.Columns = append(board.Columns, Column{
			Status: status,
			Cards:  cards,
			Count:  len(cards),
		})
	}
	return board
}

// BeginMove records an optimistic move after checking it against the local
// copy. The server write still validates authoritatively; a rejection there
// is undone with RollbackMove.
func (p *Projection) BeginMove(requestID uuid.UUID, target models.RequestStatus) workflow.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	req, ok := p.confirmed[requestID]
	if !ok {
		return workflow.Decision{Reason: "unknown request"}
	}
	decision := workflow.Validate(p.viewer.Role, req.Status, target, workflow.AssignmentOf(req), p.viewerID)
	if decision.Allowed {
		p.pending[requestID] = target
	}
	return decision
}

// RollbackMove discards a pending move, restoring the confirmed position.
func (p *Projection) RollbackMove(requestID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, requestID)
}

// ApplyEvent reconciles one change-feed event into the projection. Applying
// the same event twice yields the same groupings as applying it once; the
// feed gives no stronger guarantee than at-least-once delivery. A non-nil
// Notice is returned for updates that did not originate from the viewer.
func (p *Projection) ApplyEvent(evt feed.Event) *Notice {
	if evt.Table != "maintenance_requests" {
		return nil
	}

	var row models.MaintenanceRequest
	if err := json.Unmarshal(evt.Row, &row); err != nil || row.ID == uuid.Nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch evt.Type {
	case feed.EventDelete:
		delete(p.confirmed, row.ID)
		delete(p.pending, row.ID)
		return nil
	case feed.EventInsert, feed.EventUpdate:
		p.confirmed[row.ID] = &row
		// The authoritative row supersedes any speculation about it.
		delete(p.pending, row.ID)
	}

	if evt.Type == feed.EventUpdate && evt.ActorID != p.viewerID {
		return &Notice{RequestID: row.ID, Title: row.Title, Status: row.Status}
	}
	return nil
}

func matches(req *models.MaintenanceRequest, filter Filter) bool {
	if filter.Priority != "" && req.Priority != filter.Priority {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(req.Title), needle) &&
			!strings.Contains(strings.ToLower(req.Description), needle) {
			return false
		}
	}
	return true
}
