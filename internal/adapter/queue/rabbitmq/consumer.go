package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
)

// Handler processes one delivery body. A nil return acknowledges the
// message; a non-nil return negatively acknowledges it with requeue, so the
// broker redelivers.
type Handler func(ctx context.Context, body []byte, correlationID string) error

var consumerEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0) //nolint:gosec // Weak random is sufficient for consumer-tag entropy.

func newConsumerTag() string {
	return "worker-" + ulid.MustNew(ulid.Timestamp(time.Now()), consumerEntropy).String()
}

// Consume reads the work queue one message at a time (prefetch 1) and hands
// each body to the handler. It returns nil when ctx is cancelled, after the
// in-flight handler finished, and an error when the broker closed the
// delivery stream.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	ch, err := c.channel(ctx)
	if err != nil {
		return fmt.Errorf("op=queue.consume: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		c.invalidate()
		return fmt.Errorf("op=queue.consume: %w: %w", domain.ErrQueueUnavailable, err)
	}

	tag := newConsumerTag()
	deliveries, err := ch.Consume(
		QueueName,
		tag,
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		c.invalidate()
		return fmt.Errorf("op=queue.consume: %w: %w", domain.ErrQueueUnavailable, err)
	}

	slog.Info("consumer started",
		slog.String("queue", QueueName),
		slog.String("consumer_tag", tag))
	return c.consumeLoop(ctx, ch, tag, deliveries, handler)
}

func (c *Client) consumeLoop(ctx context.Context, ch *amqp.Channel, tag string, deliveries <-chan amqp.Delivery, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			// Stop the delivery stream, then drain what the broker already
			// pushed (at most one message with prefetch 1) back to the queue.
			if err := ch.Cancel(tag, false); err != nil {
				slog.Warn("consumer cancel failed", slog.Any("error", err))
			}
			for d := range deliveries {
				_ = d.Nack(false, true)
			}
			slog.Info("consumer stopped", slog.String("consumer_tag", tag))
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("op=queue.consume: delivery stream closed: %w", domain.ErrQueueUnavailable)
			}
			dispatch(ctx, d, handler)
		}
	}
}

// dispatch runs the handler for one delivery and settles it: ack on nil,
// nack with requeue on error.
func dispatch(ctx context.Context, d amqp.Delivery, handler Handler) {
	tracer := otel.Tracer("queue.consumer")
	ctx, span := tracer.Start(ctx, "queue.HandleDelivery")
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.destination.name", QueueName),
		attribute.String("messaging.message.id", d.MessageId),
		attribute.Bool("messaging.message.redelivered", d.Redelivered),
	)

	if err := handler(ctx, d.Body, d.CorrelationId); err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "delivery handler failed, requeueing",
			slog.String("message_id", d.MessageId),
			slog.Any("error", err))
		if nerr := d.Nack(false, true); nerr != nil {
			slog.Error("nack failed", slog.Any("error", nerr))
		}
		return
	}
	if aerr := d.Ack(false); aerr != nil {
		slog.Error("ack failed", slog.Any("error", aerr))
	}
}
