package feed_test

import (
	"context"
	"testing"
	"time"

	"github.com/gearguard/gearguard/internal/feed"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_DeliversToOrgSubscribers(t *testing.T) {
	hub := feed.NewHub()
	orgID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := hub.Subscribe(ctx, orgID)

	hub.Publish(feed.RowEvent(feed.EventInsert, "equipment", orgID, uuid.New(), map[string]string{"name": "pump"}))

	select {
	case evt := <-events:
		assert.Equal(t, feed.EventInsert, evt.Type)
		assert.Equal(t, "equipment", evt.Table)
		assert.Equal(t, orgID, evt.OrgID)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestHub_ScopesByOrganization(t *testing.T) {
	hub := feed.NewHub()
	orgA := uuid.New()
	orgB := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eventsA := hub.Subscribe(ctx, orgA)
	eventsB := hub.Subscribe(ctx, orgB)

	hub.Publish(feed.RowEvent(feed.EventUpdate, "maintenance_requests", orgA, uuid.New(), nil))

	select {
	case <-eventsA:
	case <-time.After(time.Second):
		t.Fatal("org A subscriber missed its event")
	}

	select {
	case evt := <-eventsB:
		t.Fatalf("org B subscriber received foreign event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnsubscribesOnContextCancel(t *testing.T) {
	hub := feed.NewHub()
	orgID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	events := hub.Subscribe(ctx, orgID)
	require.Equal(t, 1, hub.SubscriberCount(orgID))

	cancel()

	// Channel closes once the subscription is torn down.
	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-events:
			if !open {
				assert.Equal(t, 0, hub.SubscriberCount(orgID))
				return
			}
		case <-deadline:
			t.Fatal("subscription channel never closed")
		}
	}
}

func TestHub_DropsWhenSubscriberSlow(t *testing.T) {
	hub := feed.NewHub()
	orgID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := hub.Subscribe(ctx, orgID)

	// Overflow the buffer; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(feed.RowEvent(feed.EventUpdate, "maintenance_requests", orgID, uuid.New(), nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The buffered prefix is still readable.
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("no events buffered for the subscriber")
	}
}

func TestRowEvent_MarshalFailureYieldsNullRow(t *testing.T) {
	evt := feed.RowEvent(feed.EventInsert, "equipment", uuid.New(), uuid.New(), make(chan int))
	assert.Equal(t, "null", string(evt.Row))
}
