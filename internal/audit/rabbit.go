package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/lumilearn/content-pipeline/shared/rabbitmq"
)

// RabbitSink publishes audit events to the audit exchange, where the external
// observability stage (or cmd/audit-service during development) consumes them.
type RabbitSink struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewRabbitSink wraps a connected RabbitMQ client.
func NewRabbitSink(client *rabbitmq.Client, logger *slog.Logger) *RabbitSink {
	return &RabbitSink{client: client, logger: logger}
}

// Record publishes the event with retry. Delivery failure is logged and
// swallowed: audit must never turn a completed job into a failed one.
func (s *RabbitSink) Record(ctx context.Context, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("Failed to marshal audit event",
			slog.String("job_id", ev.JobID),
			slog.Any("error", err),
		)
		return
	}

	if err := s.client.PublishWithRetry(ctx, body, "application/json"); err != nil {
		s.logger.Error("Failed to publish audit event",
			slog.String("job_id", ev.JobID),
			slog.String("state", ev.State),
			slog.Any("error", err),
		)
	}
}
