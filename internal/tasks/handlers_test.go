package tasks_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/gearguard/gearguard/internal/feed"
	"github.com/gearguard/gearguard/internal/tasks"
	"github.com/gearguard/gearguard/internal/testutil"
	"github.com/gearguard/gearguard/pkg/util"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTaskHandler(t *testing.T) (*tasks.Handler, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return tasks.NewHandler(db, feed.NewHub(), logger), db
}

func scrapReconcileTask(t *testing.T, orgID, requestID uuid.UUID) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(map[string]string{
		"organization_id": orgID.String(),
		"request_id":      requestID.String(),
	})
	require.NoError(t, err)
	return asynq.NewTask(tasks.TypeScrapReconcile, payload)
}

func TestHandleScrapReconcile(t *testing.T) {
	handler, db := newTaskHandler(t)

	org := testutil.CreateTestOrg(t, db)
	user := testutil.CreateTestUser(t, db, org, models.RoleAdmin)

	t.Run("closes invariant gap", func(t *testing.T) {
		equip := testutil.CreateTestEquipment(t, db, org)
		req := testutil.CreateTestRequest(t, db, org, equip, user, models.StatusScrap)

		// Equipment left active: the gap the safety net exists for.
		err := handler.HandleScrapReconcile(context.Background(), scrapReconcileTask(t, org.ID, req.ID))
		require.NoError(t, err)

		var reloaded models.Equipment
		require.NoError(t, db.First(&reloaded, equip.ID).Error)
		assert.Equal(t, models.EquipmentStatusScrapped, reloaded.Status)
	})

	t.Run("no-op when equipment already scrapped", func(t *testing.T) {
		equip := testutil.CreateTestEquipment(t, db, org)
		require.NoError(t, db.Model(equip).Update("status", models.EquipmentStatusScrapped).Error)
		req := testutil.CreateTestRequest(t, db, org, equip, user, models.StatusScrap)

		err := handler.HandleScrapReconcile(context.Background(), scrapReconcileTask(t, org.ID, req.ID))
		require.NoError(t, err)
	})

	t.Run("no-op when request is not scrap", func(t *testing.T) {
		equip := testutil.CreateTestEquipment(t, db, org)
		req := testutil.CreateTestRequest(t, db, org, equip, user, models.StatusInProgress)

		err := handler.HandleScrapReconcile(context.Background(), scrapReconcileTask(t, org.ID, req.ID))
		require.NoError(t, err)

		var reloaded models.Equipment
		require.NoError(t, db.First(&reloaded, equip.ID).Error)
		assert.Equal(t, models.EquipmentStatusActive, reloaded.Status)
	})
}

func TestHandleInviteExpiry(t *testing.T) {
	handler, db := newTaskHandler(t)

	org := testutil.CreateTestOrg(t, db)
	admin := testutil.CreateTestUser(t, db, org, models.RoleAdmin)
	team := testutil.CreateTestTeam(t, db, org)

	expired := models.TeamInvite{
		OrganizationID: org.ID,
		TeamID:         team.ID,
		Email:          "late@example.com",
		Token:          "expired-token",
		Role:           models.RoleTechnician,
		Status:         models.InvitePending,
		InvitedByID:    admin.ID,
		ExpiresAt:      time.Now().Add(-time.Hour),
	}
	fresh := models.TeamInvite{
		OrganizationID: org.ID,
		TeamID:         team.ID,
		Email:          "ontime@example.com",
		Token:          "fresh-token",
		Role:           models.RoleTechnician,
		Status:         models.InvitePending,
		InvitedByID:    admin.ID,
		ExpiresAt:      time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(&expired).Error)
	require.NoError(t, db.Create(&fresh).Error)

	err := handler.HandleInviteExpiry(context.Background(), asynq.NewTask(tasks.TypeInviteExpiry, nil))
	require.NoError(t, err)

	// Separate destinations: reusing one would leak the first row's primary
	// key into the second query's conditions.
	var expiredReloaded, freshReloaded models.TeamInvite
	require.NoError(t, db.Where("token = ?", "expired-token").First(&expiredReloaded).Error)
	assert.Equal(t, models.InviteExpired, expiredReloaded.Status)

	require.NoError(t, db.Where("token = ?", "fresh-token").First(&freshReloaded).Error)
	assert.Equal(t, models.InvitePending, freshReloaded.Status)
}

func TestHandleScheduleTick(t *testing.T) {
	handler, db := newTaskHandler(t)

	org := testutil.CreateTestOrg(t, db)
	testutil.CreateTestUser(t, db, org, models.RoleAdmin)

	newSchedule := func(equip *models.Equipment, due bool) *models.MaintenanceSchedule {
		next := time.Now().Add(time.Hour)
		if due {
			next = time.Now().Add(-time.Minute)
		}
		schedule := &models.MaintenanceSchedule{
			OrganizationID: org.ID,
			EquipmentID:    equip.ID,
			Title:          "Monthly lubrication",
			CronExpr:       "0 6 1 * *",
			Priority:       models.PriorityLow,
			IsEnabled:      true,
			NextRunAt:      next.Unix(),
		}
		require.NoError(t, db.Create(schedule).Error)
		return schedule
	}

	t.Run("due schedule generates preventive request", func(t *testing.T) {
		equip := testutil.CreateTestEquipment(t, db, org)
		schedule := newSchedule(equip, true)

		err := handler.HandleScheduleTick(context.Background(), asynq.NewTask(tasks.TypeScheduleTick, nil))
		require.NoError(t, err)

		var request models.MaintenanceRequest
		require.NoError(t, db.Where("equipment_id = ?", equip.ID).First(&request).Error)
		assert.Equal(t, models.RequestTypePreventive, request.Type)
		assert.Equal(t, models.StatusNew, request.Status)
		require.NotNil(t, request.ScheduledDate)

		// Schedule advanced past now along its cron expression.
		var reloaded models.MaintenanceSchedule
		require.NoError(t, db.First(&reloaded, schedule.ID).Error)
		assert.Greater(t, reloaded.NextRunAt, time.Now().Unix())
		require.NotNil(t, reloaded.LastRequestID)
		assert.Equal(t, request.ID, *reloaded.LastRequestID)

		expected, err := util.NextCronTime(schedule.CronExpr, time.Now())
		require.NoError(t, err)
		assert.Equal(t, expected.Unix(), reloaded.NextRunAt)
	})

	t.Run("not-yet-due schedule untouched", func(t *testing.T) {
		equip := testutil.CreateTestEquipment(t, db, org)
		schedule := newSchedule(equip, false)

		err := handler.HandleScheduleTick(context.Background(), asynq.NewTask(tasks.TypeScheduleTick, nil))
		require.NoError(t, err)

		var count int64
		require.NoError(t, db.Model(&models.MaintenanceRequest{}).
			Where("equipment_id = ?", equip.ID).Count(&count).Error)
		assert.Equal(t, int64(0), count)

		var reloaded models.MaintenanceSchedule
		require.NoError(t, db.First(&reloaded, schedule.ID).Error)
		assert.Equal(t, schedule.NextRunAt, reloaded.NextRunAt)
	})

	t.Run("scrapped equipment disables schedule", func(t *testing.T) {
		equip := testutil.CreateTestEquipment(t, db, org)
		require.NoError(t, db.Model(equip).Update("status", models.EquipmentStatusScrapped).Error)
		schedule := newSchedule(equip, true)

		err := handler.HandleScheduleTick(context.Background(), asynq.NewTask(tasks.TypeScheduleTick, nil))
		require.NoError(t, err)

		var count int64
		require.NoError(t, db.Model(&models.MaintenanceRequest{}).
			Where("equipment_id = ?", equip.ID).Count(&count).Error)
		assert.Equal(t, int64(0), count, "no requests for scrapped equipment")

		var reloaded models.MaintenanceSchedule
		require.NoError(t, db.First(&reloaded, schedule.ID).Error)
		assert.False(t, reloaded.IsEnabled)
	})
}
