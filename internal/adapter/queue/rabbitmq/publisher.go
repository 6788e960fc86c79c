package rabbitmq

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
)

// buildPublishing renders the wire message: JSON body, persistent delivery,
// a fresh message id and the caller's correlation id.
func buildPublishing(msg domain.TaskMessage, correlationID string) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode task message: %w", err)
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.New().String(),
		CorrelationId: correlationID,
		Timestamp:     time.Now().UTC(),
		Body:          body,
	}, nil
}

// PublishTask enqueues one task message on the work queue. A transport fault
// invalidates the cached connection so the next publish redials.
func (c *Client) PublishTask(ctx domain.Context, msg domain.TaskMessage, correlationID string) error {
	tracer := otel.Tracer("queue.publisher")
	ctx, span := tracer.Start(ctx, "queue.PublishTask")
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.destination.name", QueueName),
		attribute.String("task.id", msg.TaskID),
	)

	ch, err := c.channel(ctx)
	if err != nil {
		return fmt.Errorf("op=queue.publish: %w", err)
	}

	pub, err := buildPublishing(msg, correlationID)
	if err != nil {
		return fmt.Errorf("op=queue.publish: %w", err)
	}

	if err := ch.PublishWithContext(ctx, "", QueueName, false, false, pub); err != nil {
		c.invalidate()
		span.RecordError(err)
		return fmt.Errorf("op=queue.publish: %w: %w", domain.ErrQueueUnavailable, err)
	}

	slog.InfoContext(ctx, "task published",
		slog.String("task_id", msg.TaskID),
		slog.String("message_id", pub.MessageId),
		slog.String("correlation_id", correlationID))
	return nil
}
