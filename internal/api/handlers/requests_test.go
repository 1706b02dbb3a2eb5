package handlers_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gearguard/gearguard/internal/api/dto"
	"github.com/gearguard/gearguard/internal/api/handlers"
	"github.com/gearguard/gearguard/internal/api/middleware"
	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/gearguard/gearguard/internal/feed"
	"github.com/gearguard/gearguard/internal/testutil"
	"github.com/gearguard/gearguard/internal/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRequestTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)

	hub := feed.NewHub()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := workflow.NewResolver(tc.DB)
	executor := workflow.NewExecutor(tc.DB, hub, nil, logger)
	handler := handlers.NewRequestHandler(tc.DB, hub, resolver, executor)

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService))
	r.Use(middleware.RequireOrganization)
	r.Route("/api/v1/requests", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Post("/", handler.Create)
		r.Get("/{id}", handler.Get)
		r.Put("/{id}", handler.Update)
		r.Post("/{id}/transition", handler.Transition)
		r.Get("/{id}/logs", handler.Logs)
	})

	return r, tc
}

func TestRequestHandler_Create(t *testing.T) {
	router, tc := setupRequestTestRouter(t)
	defer tc.Cleanup()

	equipment := testutil.CreateTestEquipment(t, tc.DB, tc.Org)

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
	}{
		{
			name: "corrective request",
			body: map[string]interface{}{
				"title":        "Pump is leaking",
				"equipment_id": equipment.ID.String(),
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "preventive request with scheduled date",
			body: map[string]interface{}{
				"title":          "Quarterly service",
				"equipment_id":   equipment.ID.String(),
				"type":           "preventive",
				"scheduled_date": "2026-09-15",
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "preventive request without scheduled date",
			body: map[string]interface{}{
				"title":        "Quarterly service",
				"equipment_id": equipment.ID.String(),
				"type":         "preventive",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "missing title",
			body: map[string]interface{}{
				"equipment_id": equipment.ID.String(),
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown equipment",
			body: map[string]interface{}{
				"title":        "Ghost machine",
				"equipment_id": uuid.New().String(),
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "invalid priority",
			body: map[string]interface{}{
				"title":        "Pump is leaking",
				"equipment_id": equipment.ID.String(),
				"priority":     "urgent",
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/requests", tt.body, tc.Token)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			testutil.AssertStatus(t, rec, tt.wantStatus)

			if tt.wantStatus == http.StatusCreated {
				var created models.MaintenanceRequest
				testutil.DecodeResponse(t, rec, &created)
				assert.Equal(t, models.StatusNew, created.Status, "requests always start in new")
				assert.Equal(t, tc.User.ID, created.CreatedByID)
			}
		})
	}
}

func TestRequestHandler_CreateRejectsScrappedEquipment(t *testing.T) {
	router, tc := setupRequestTestRouter(t)
	defer tc.Cleanup()

	equipment := testutil.CreateTestEquipment(t, tc.DB, tc.Org)
	require.NoError(t, tc.DB.Model(equipment).Update("status", models.EquipmentStatusScrapped).Error)

	req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/requests", map[string]interface{}{
		"title":        "Fix the scrapped one",
		"equipment_id": equipment.ID.String(),
	}, tc.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	testutil.AssertStatus(t, rec, http.StatusConflict)
}

func TestRequestHandler_PreventiveRoundTrip(t *testing.T) {
	router, tc := setupRequestTestRouter(t)
	defer tc.Cleanup()

	equipment := testutil.CreateTestEquipment(t, tc.DB, tc.Org)

	req := testutil.AuthenticatedRequest(t, http.MethodPost, "/api/v1/requests", map[string]interface{}{
		"title":          "Quarterly service",
		"equipment_id":   equipment.ID.String(),
		"type":           "preventive",
		"scheduled_date": "2026-09-15",
	}, tc.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	testutil.AssertStatus(t, rec, http.StatusCreated)

	var created models.MaintenanceRequest
	testutil.DecodeResponse(t, rec, &created)
	require.NotNil(t, created.ScheduledDate)

	// Reading it back yields the same calendar date.
	getReq := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/requests/"+created.ID.String(), nil, tc.Token)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	testutil.AssertStatus(t, getRec, http.StatusOK)

	var fetched models.MaintenanceRequest
	testutil.DecodeResponse(t, getRec, &fetched)
	require.NotNil(t, fetched.ScheduledDate)
	assert.Equal(t, "2026-09-15", fetched.ScheduledDate.Format("2006-01-02"))
	assert.Equal(t, models.RequestTypePreventive, fetched.Type)
}

func TestRequestHandler_Transition(t *testing.T) {
	router, tc := setupRequestTestRouter(t)
	defer tc.Cleanup()

	equipment := testutil.CreateTestEquipment(t, tc.DB, tc.Org)
	tech := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleTechnician)
	techToken := testutil.GenerateTestToken(t, tc.JWTService, tech)
	requester := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleRequester)
	requesterToken := testutil.GenerateTestToken(t, tc.JWTService, requester)

	t.Run("technician pickup auto-claims", func(t *testing.T) {
		request := testutil.CreateTestRequest(t, tc.DB, tc.Org, equipment, requester, models.StatusNew)

		req := testutil.AuthenticatedRequest(t, http.MethodPost,
			"/api/v1/requests/"+request.ID.String()+"/transition",
			map[string]interface{}{"status": "in_progress"}, techToken)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		testutil.AssertStatus(t, rec, http.StatusOK)

		var resp handlers.TransitionResponse
		testutil.DecodeResponse(t, rec, &resp)
		assert.Equal(t, models.StatusInProgress, resp.Request.Status)
		require.NotNil(t, resp.Request.TechnicianID)
		assert.Equal(t, tech.ID, *resp.Request.TechnicianID)
	})

	t.Run("requester cannot transition", func(t *testing.T) {
		request := testutil.CreateTestRequest(t, tc.DB, tc.Org, equipment, requester, models.StatusNew)

		req := testutil.AuthenticatedRequest(t, http.MethodPost,
			"/api/v1/requests/"+request.ID.String()+"/transition",
			map[string]interface{}{"status": "in_progress"}, requesterToken)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		testutil.AssertStatus(t, rec, http.StatusForbidden)
	})

	t.Run("repaired without duration is unprocessable", func(t *testing.T) {
		request := testutil.CreateTestRequest(t, tc.DB, tc.Org, equipment, requester, models.StatusInProgress)
		require.NoError(t, tc.DB.Model(request).Update("technician_id", tech.ID).Error)

		req := testutil.AuthenticatedRequest(t, http.MethodPost,
			"/api/v1/requests/"+request.ID.String()+"/transition",
			map[string]interface{}{"status": "repaired"}, techToken)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		testutil.AssertStatus(t, rec, http.StatusUnprocessableEntity)
	})

	t.Run("scrap without reason is unprocessable", func(t *testing.T) {
		request := testutil.CreateTestRequest(t, tc.DB, tc.Org, equipment, requester, models.StatusInProgress)

		req := testutil.AuthenticatedRequest(t, http.MethodPost,
			"/api/v1/requests/"+request.ID.String()+"/transition",
			map[string]interface{}{"status": "scrap"}, tc.Token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		testutil.AssertStatus(t, rec, http.StatusUnprocessableEntity)
	})

	t.Run("scrap marks equipment scrapped", func(t *testing.T) {
		scrapTarget := testutil.CreateTestEquipment(t, tc.DB, tc.Org)
		request := testutil.CreateTestRequest(t, tc.DB, tc.Org, scrapTarget, requester, models.StatusInProgress)

		req := testutil.AuthenticatedRequest(t, http.MethodPost,
			"/api/v1/requests/"+request.ID.String()+"/transition",
			map[string]interface{}{"status": "scrap", "reason": "frame cracked"}, tc.Token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		testutil.AssertStatus(t, rec, http.StatusOK)

		var equip models.Equipment
		require.NoError(t, tc.DB.First(&equip, scrapTarget.ID).Error)
		assert.Equal(t, models.EquipmentStatusScrapped, equip.Status)
	})

	t.Run("invalid target status", func(t *testing.T) {
		request := testutil.CreateTestRequest(t, tc.DB, tc.Org, equipment, requester, models.StatusNew)

		req := testutil.AuthenticatedRequest(t, http.MethodPost,
			"/api/v1/requests/"+request.ID.String()+"/transition",
			map[string]interface{}{"status": "fixed"}, tc.Token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		testutil.AssertStatus(t, rec, http.StatusBadRequest)
	})
}

func TestRequestHandler_TransitionWritesLog(t *testing.T) {
	router, tc := setupRequestTestRouter(t)
	defer tc.Cleanup()

	equipment := testutil.CreateTestEquipment(t, tc.DB, tc.Org)
	request := testutil.CreateTestRequest(t, tc.DB, tc.Org, equipment, tc.User, models.StatusNew)

	req := testutil.AuthenticatedRequest(t, http.MethodPost,
		"/api/v1/requests/"+request.ID.String()+"/transition",
		map[string]interface{}{"status": "in_progress"}, tc.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	testutil.AssertStatus(t, rec, http.StatusOK)

	logsReq := testutil.AuthenticatedRequest(t, http.MethodGet,
		"/api/v1/requests/"+request.ID.String()+"/logs", nil, tc.Token)
	logsRec := httptest.NewRecorder()
	router.ServeHTTP(logsRec, logsReq)
	testutil.AssertStatus(t, logsRec, http.StatusOK)

	var logs []models.RequestLog
	testutil.DecodeResponse(t, logsRec, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, tc.User.ID, logs[0].ActorID)
	assert.Contains(t, logs[0].Note, "in_progress")
}

func TestRequestHandler_List(t *testing.T) {
	router, tc := setupRequestTestRouter(t)
	defer tc.Cleanup()

	equipment := testutil.CreateTestEquipment(t, tc.DB, tc.Org)
	testutil.CreateTestRequest(t, tc.DB, tc.Org, equipment, tc.User, models.StatusNew)
	testutil.CreateTestRequest(t, tc.DB, tc.Org, equipment, tc.User, models.StatusNew)
	testutil.CreateTestRequest(t, tc.DB, tc.Org, equipment, tc.User, models.StatusInProgress)

	t.Run("lists all", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/requests", nil, tc.Token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		testutil.AssertStatus(t, rec, http.StatusOK)

		var resp dto.PaginatedResponse
		testutil.DecodeResponse(t, rec, &resp)
		assert.Equal(t, int64(3), resp.Total)
	})

	t.Run("filters by status", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/requests?status=in_progress", nil, tc.Token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		testutil.AssertStatus(t, rec, http.StatusOK)

		var resp dto.PaginatedResponse
		testutil.DecodeResponse(t, rec, &resp)
		assert.Equal(t, int64(1), resp.Total)
	})

	t.Run("paginates", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/requests?page=1&per_page=2", nil, tc.Token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		testutil.AssertStatus(t, rec, http.StatusOK)

		var resp dto.PaginatedResponse
		testutil.DecodeResponse(t, rec, &resp)
		assert.Equal(t, int64(3), resp.Total)
		assert.Equal(t, 2, resp.TotalPages)
	})
}

func TestRequestHandler_TenantIsolation(t *testing.T) {
	router, tc := setupRequestTestRouter(t)
	defer tc.Cleanup()

	otherOrg := testutil.CreateTestOrg(t, tc.DB)
	otherAdmin := testutil.CreateTestUser(t, tc.DB, otherOrg, models.RoleAdmin)
	otherEquip := testutil.CreateTestEquipment(t, tc.DB, otherOrg)
	foreign := testutil.CreateTestRequest(t, tc.DB, otherOrg, otherEquip, otherAdmin, models.StatusNew)

	t.Run("foreign request invisible", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, http.MethodGet,
			"/api/v1/requests/"+foreign.ID.String(), nil, tc.Token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		testutil.AssertStatus(t, rec, http.StatusNotFound)
	})

	t.Run("foreign request not transitionable", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, http.MethodPost,
			"/api/v1/requests/"+foreign.ID.String()+"/transition",
			map[string]interface{}{"status": "in_progress"}, tc.Token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		testutil.AssertStatus(t, rec, http.StatusNotFound)
	})

	t.Run("foreign rows excluded from list", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, http.MethodGet, "/api/v1/requests", nil, tc.Token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		testutil.AssertStatus(t, rec, http.StatusOK)

		var resp dto.PaginatedResponse
		testutil.DecodeResponse(t, rec, &resp)
		assert.Equal(t, int64(0), resp.Total)
	})
}

func TestRequestHandler_UpdateClosedRequestRejected(t *testing.T) {
	router, tc := setupRequestTestRouter(t)
	defer tc.Cleanup()

	equipment := testutil.CreateTestEquipment(t, tc.DB, tc.Org)
	request := testutil.CreateTestRequest(t, tc.DB, tc.Org, equipment, tc.User, models.StatusRepaired)

	req := testutil.AuthenticatedRequest(t, http.MethodPut,
		"/api/v1/requests/"+request.ID.String(),
		map[string]interface{}{"title": "new title"}, tc.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	testutil.AssertStatus(t, rec, http.StatusConflict)
}
