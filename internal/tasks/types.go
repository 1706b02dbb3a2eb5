package tasks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeScrapReconcile = "workflow:scrap_reconcile"
	TypeInviteExpiry   = "invites:expire"
	TypeScheduleTick   = "schedules:tick"
)

// ScrapReconcilePayload identifies a scrapped request whose equipment status
// should be re-asserted.
type ScrapReconcilePayload struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	RequestID      uuid.UUID `json:"request_id"`
}

func NewScrapReconcileTask(payload ScrapReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeScrapReconcile, data, asynq.Queue("critical")), nil
}

// InviteExpiryPayload is empty - the sweep covers all organizations.
type InviteExpiryPayload struct{}

func NewInviteExpiryTask() *asynq.Task {
	return asynq.NewTask(TypeInviteExpiry, nil, asynq.Queue("low"))
}

// ScheduleTickPayload is empty - the tick checks all due schedules.
type ScheduleTickPayload struct{}

func NewScheduleTickTask() *asynq.Task {
	return asynq.NewTask(TypeScheduleTick, nil)
}

// Enqueuer wraps the asynq client for the handful of tasks the API side
// enqueues directly.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) EnqueueScrapReconcile(ctx context.Context, orgID, requestID uuid.UUID) error {
	task, err := NewScrapReconcileTask(ScrapReconcilePayload{
		OrganizationID: orgID,
		RequestID:      requestID,
	})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task)
	return err
}
