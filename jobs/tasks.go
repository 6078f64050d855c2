package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/mbyo2/vehicle-log-sys/internal/workflow"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAuditAppend delivers one workflow transition event to the
	// audit log.
	TaskTypeAuditAppend = "audit:append"
	// TaskTypeNotifyTransition fans a committed transition out to operator
	// notifications.
	TaskTypeNotifyTransition = "notify:transition"
)

// NewAuditAppendTask constructs the task carrying a transition event.
func NewAuditAppendTask(ev workflow.Event) (*asynq.Task, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditAppend, data, asynq.MaxRetry(10)), nil
}

// NewAuditAppendHandler processes TaskTypeAuditAppend tasks by writing the
// event through the given sink.
func NewAuditAppendHandler(sink workflow.AuditSink, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var ev workflow.Event
		if err := json.Unmarshal(t.Payload(), &ev); err != nil {
			return asynq.SkipRetry
		}
		if err := sink.Append(ctx, ev); err != nil {
			logger.Error("persist audit event",
				slog.String("workflow_id", ev.WorkflowID), slog.Any("error", err))
			return err
		}
		return nil
	}
}

// NotifyTransitionPayload describes a committed transition worth telling
// operators about.
type NotifyTransitionPayload struct {
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	Action      string `json:"action"`
	ToState     string `json:"to_state"`
	PrincipalID string `json:"principal_id"`
}

// NewNotifyTransitionTask constructs an asynq task for the payload.
func NewNotifyTransitionTask(payload NotifyTransitionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotifyTransition, data), nil
}

// NewNotifyTransitionHandler processes notification tasks. Delivery is a
// placeholder until the mail channel lands; the event is logged so the
// pipeline can be observed end to end.
func NewNotifyTransitionHandler(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload NotifyTransitionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("workflow transition notification",
			slog.String("entity_type", payload.EntityType),
			slog.String("entity_id", payload.EntityID),
			slog.String("action", payload.Action),
			slog.String("to_state", payload.ToState))
		return nil
	}
}
