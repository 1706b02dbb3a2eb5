package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gearguard/gearguard/internal/auth"
	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.Organization{},
		&models.User{},
		&models.Team{},
		&models.TeamMember{},
		&models.TeamInvite{},
		&models.JoinRequest{},
		&models.EquipmentCategory{},
		&models.Equipment{},
		&models.MaintenanceRequest{},
		&models.RequestLog{},
		&models.MaintenanceSchedule{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// CreateTestOrg creates a test organization
func CreateTestOrg(t *testing.T, db *gorm.DB) *models.Organization {
	t.Helper()

	org := &models.Organization{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name: "Test Organization",
		Slug: "test-org-" + uuid.New().String()[:8],
	}

	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}

	return org
}

// CreateTestUser creates a test user with the given organization and role.
// Pass a nil org for an unaffiliated user.
func CreateTestUser(t *testing.T, db *gorm.DB, org *models.Organization, role models.Role) *models.User {
	t.Helper()

	hash, err := auth.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Email:        "test-" + uuid.New().String()[:8] + "@example.com",
		PasswordHash: hash,
		Name:         "Test User",
		Role:         role,
		IsActive:     true,
	}
	if org != nil {
		user.OrganizationID = &org.ID
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	user.Organization = org
	return user
}

// CreateTestTeam creates a test team in the organization
func CreateTestTeam(t *testing.T, db *gorm.DB, org *models.Organization) *models.Team {
	t.Helper()

	team := &models.Team{
		Base:           models.Base{ID: uuid.New()},
		OrganizationID: org.ID,
		Name:           "Test Team " + uuid.New().String()[:8],
	}
	if err := db.Create(team).Error; err != nil {
		t.Fatalf("failed to create test team: %v", err)
	}
	return team
}

// CreateTestEquipment creates an active piece of equipment
func CreateTestEquipment(t *testing.T, db *gorm.DB, org *models.Organization) *models.Equipment {
	t.Helper()

	equipment := &models.Equipment{
		Base:           models.Base{ID: uuid.New()},
		OrganizationID: org.ID,
		Name:           "Test Equipment " + uuid.New().String()[:8],
		SerialNumber:   uuid.New().String()[:12],
		Status:         models.EquipmentStatusActive,
	}
	if err := db.Create(equipment).Error; err != nil {
		t.Fatalf("failed to create test equipment: %v", err)
	}
	return equipment
}

// CreateTestRequest creates a maintenance request in the given status
func CreateTestRequest(t *testing.T, db *gorm.DB, org *models.Organization, equipment *models.Equipment, createdBy *models.User, status models.RequestStatus) *models.MaintenanceRequest {
	t.Helper()

	request := &models.MaintenanceRequest{
		Base:           models.Base{ID: uuid.New()},
		OrganizationID: org.ID,
		Title:          "Test Request " + uuid.New().String()[:8],
		EquipmentID:    equipment.ID,
		Type:           models.RequestTypeCorrective,
		Priority:       models.PriorityMedium,
		Status:         status,
		CreatedByID:    createdBy.ID,
	}
	if err := db.Create(request).Error; err != nil {
		t.Fatalf("failed to create test request: %v", err)
	}
	return request
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	orgID := uuid.Nil
	if user.OrganizationID != nil {
		orgID = *user.OrganizationID
	}
	token, err := jwtService.GenerateToken(user.ID, orgID, user.Email, user.Role)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// DecodeResponse decodes a JSON response body into v
func DecodeResponse(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Org        *models.Organization
	User       *models.User
	Token      string
}

// NewTestContext creates a complete test setup with DB, org, admin user and
// token
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	org := CreateTestOrg(t, db)
	user := CreateTestUser(t, db, org, models.RoleAdmin)
	token := GenerateTestToken(t, jwtService, user)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Org:        org,
		User:       user,
		Token:      token,
	}
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
