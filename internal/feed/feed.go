// Package feed implements the tenant-scoped change feed. Every committed row
// mutation is published to the hub and fanned out to the subscribers of the
// owning organization; connected clients use the stream to reconcile their
// local board state. Delivery is at-least-once with no ordering guarantee, so
// consumers must apply events idempotently.
package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event describes one row mutation within an organization.
type Event struct {
	Type      EventType       `json:"event_type"`
	Table     string          `json:"table"`
	OrgID     uuid.UUID       `json:"organization_id"`
	ActorID   uuid.UUID       `json:"actor_id,omitempty"`
	Row       json.RawMessage `json:"row"`
	Timestamp time.Time       `json:"timestamp"`
}

type subscriber struct {
	orgID uuid.UUID
	ch    chan Event
}

// Hub fan-outs change events to all subscribers of the event's organization.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]*subscriber)}
}

// Subscribe registers a subscriber for one organization's events and returns
// the channel events arrive on. The subscription ends and the channel is
// closed when ctx is done; callers tie ctx to the board session so closing
// the view tears the subscription down.
func (h *Hub) Subscribe(ctx context.Context, orgID uuid.UUID) <-chan Event {
	sub := &subscriber{orgID: orgID, ch: make(chan Event, 16)}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(sub.ch)
		h.mu.Unlock()
	}()

	return sub.ch
}

// Publish fan-outs the event to all subscribers of its organization.
func (h *Hub) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.orgID != evt.OrgID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// SubscriberCount reports the number of live subscriptions for an
// organization.
func (h *Hub) SubscriberCount(orgID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sub := range h.subs {
		if sub.orgID == orgID {
			n++
		}
	}
	return n
}

// RowEvent marshals row and builds an event for it. Marshal failures return
// an event with a null row rather than an error; the payload is advisory and
// subscribers refetch authoritative state anyway.
func RowEvent(typ EventType, table string, orgID, actorID uuid.UUID, row interface{}) Event {
	data, err := json.Marshal(row)
	if err != nil {
		data = []byte("null")
	}
	return Event{
		Type:      typ,
		Table:     table,
		OrgID:     orgID,
		ActorID:   actorID,
		Row:       data,
		Timestamp: time.Now().UTC(),
	}
}
