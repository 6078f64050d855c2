package audit

import (
	"context"
	"errors"

	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbyo2/vehicle-log-sys/internal/workflow"
	"github.com/mbyo2/vehicle-log-sys/jobs"
)

// Recorder writes transition events into audit_logs. It is the terminal
// sink: the worker drains queued events through it, and deployments without
// a worker can wire it into the machine directly.
type Recorder struct {
	pool *pgxpool.Pool
}

var _ workflow.AuditSink = (*Recorder)(nil)

// NewRecorder returns a new Recorder.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Append persists the event.
func (r *Recorder) Append(ctx context.Context, ev workflow.Event) error {
	if r == nil || r.pool == nil {
		return errors.New("audit recorder not initialised")
	}
	if ev.WorkflowID == "" || ev.Action == "" {
		return errors.New("audit event requires workflow_id and action")
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO audit_logs
(id, event_type, workflow_id, entity_type, entity_id, action, from_state, to_state, principal_id, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.NewString(), ev.EventType, ev.WorkflowID, ev.EntityType, ev.EntityID,
		ev.Action, ev.FromState, ev.ToState, ev.PrincipalID, ev.OccurredAt)
	return err
}

// QueueSink hands events to the background queue so the commit path returns
// without waiting on the audit write. Enqueue failures propagate to the
// machine, which logs and swallows them per the best-effort contract.
type QueueSink struct {
	client *jobs.Client
	logger *slog.Logger
}

var _ workflow.AuditSink = (*QueueSink)(nil)

// NewQueueSink constructs the queue-backed sink.
func NewQueueSink(client *jobs.Client, logger *slog.Logger) *QueueSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueSink{client: client, logger: logger}
}

// Append enqueues the event for the worker.
func (s *QueueSink) Append(ctx context.Context, ev workflow.Event) error {
	task, err := jobs.NewAuditAppendTask(ev)
	if err != nil {
		return err
	}
	if _, err := s.client.Enqueue(ctx, task); err != nil {
		return err
	}
	return nil
}
