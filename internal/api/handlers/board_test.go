package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gearguard/gearguard/internal/api/handlers"
	"github.com/gearguard/gearguard/internal/api/middleware"
	"github.com/gearguard/gearguard/internal/board"
	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/gearguard/gearguard/internal/feed"
	"github.com/gearguard/gearguard/internal/testutil"
	"github.com/gearguard/gearguard/internal/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBoardTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup, *feed.Hub) {
	tc := testutil.NewTestContext(t)

	hub := feed.NewHub()
	resolver := workflow.NewResolver(tc.DB)
	handler := handlers.NewBoardHandler(tc.DB, hub, resolver)

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService))
	r.Use(middleware.RequireOrganization)
	r.Get("/api/v1/board", handler.Board)
	r.Get("/api/v1/feed", handler.Feed)

	return r, tc, hub
}

func TestBoardHandler_Board(t *testing.T) {
	router, tc, _ := setupBoardTestRouter(t)
	defer tc.Cleanup()

	equipment := testutil.CreateTestEquipment(t, tc.DB, tc.Org)
	testutil.CreateTestRequest(t, tc.DB, tc.Org, equipment, tc.User, models.StatusNew)
	testutil.CreateTestRequest(t, tc.DB, tc.Org, equipment, tc.User, models.StatusInProgress)

	// A foreign organization's request must never appear.
	otherOrg := testutil.CreateTestOrg(t, tc.DB)
	otherAdmin := testutil.CreateTestUser(t, tc.DB, otherOrg, models.RoleAdmin)
	otherEquip := testutil.CreateTestEquipment(t, tc.DB, otherOrg)
	testutil.CreateTestRequest(t, tc.DB, otherOrg, otherEquip, otherAdmin, models.StatusNew)

	req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/board", nil, tc.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	testutil.AssertStatus(t, rec, http.StatusOK)

	var b board.Board
	testutil.DecodeResponse(t, rec, &b)

	require.Len(t, b.Columns, 4)
	assert.Equal(t, models.StatusNew, b.Columns[0].Status)
	assert.Equal(t, 1, b.Columns[0].Count)
	assert.Equal(t, 1, b.Columns[1].Count)
	assert.Equal(t, 0, b.Columns[2].Count)
	assert.Equal(t, 0, b.Columns[3].Count)

	// Admin viewer can drag everything.
	assert.True(t, b.Columns[0].Cards[0].Draggable)
}

func TestBoardHandler_BoardFilters(t *testing.T) {
	router, tc, _ := setupBoardTestRouter(t)
	defer tc.Cleanup()

	equipment := testutil.CreateTestEquipment(t, tc.DB, tc.Org)
	high := testutil.CreateTestRequest(t, tc.DB, tc.Org, equipment, tc.User, models.StatusNew)
	require.NoError(t, tc.DB.Model(high).Update("priority", models.PriorityHigh).Error)
	testutil.CreateTestRequest(t, tc.DB, tc.Org, equipment, tc.User, models.StatusNew)

	req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/board?priority=high", nil, tc.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	testutil.AssertStatus(t, rec, http.StatusOK)

	var b board.Board
	testutil.DecodeResponse(t, rec, &b)
	assert.Equal(t, 1, b.Columns[0].Count)
}

func TestBoardHandler_UnaffiliatedForbidden(t *testing.T) {
	router, tc, _ := setupBoardTestRouter(t)
	defer tc.Cleanup()

	// Tokens outlive membership: the board re-resolves it from the store.
	member := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleTechnician)
	staleToken := testutil.GenerateTestToken(t, tc.JWTService, member)

	t.Run("membership revoked since token issue", func(t *testing.T) {
		// Update via a bare model so GORM does not re-save the Organization
		// association attached to member, which would restore organization_id.
		require.NoError(t, tc.DB.Model(&models.User{Base: models.Base{ID: member.ID}}).Updates(map[string]interface{}{
			"organization_id": nil,
			"role":            "",
		}).Error)

		req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/board", nil, staleToken)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		testutil.AssertStatus(t, rec, http.StatusForbidden)
	})

	t.Run("profile deleted since token issue", func(t *testing.T) {
		require.NoError(t, tc.DB.Unscoped().Delete(member).Error)

		req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/board", nil, staleToken)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		testutil.AssertStatus(t, rec, http.StatusUnauthorized)
	})
}

func TestBoardHandler_FeedStreamsEvents(t *testing.T) {
	router, tc, hub := setupBoardTestRouter(t)
	defer tc.Cleanup()

	req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/feed", nil, tc.Token)

	// Serve in a goroutine; publish once the subscription registers, then
	// disconnect the client.
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		done <- rec
	}()

	deadline := time.Now().Add(time.Second)
	for hub.SubscriberCount(tc.Org.ID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("feed subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	hub.Publish(feed.RowEvent(feed.EventUpdate, "maintenance_requests", tc.Org.ID, tc.User.ID, map[string]string{"title": "pump"}))
	cancel()

	rec := <-done
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: update")
	assert.Contains(t, body, "maintenance_requests")
}
