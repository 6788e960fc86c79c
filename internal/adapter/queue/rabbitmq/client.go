// Package rabbitmq wraps the AMQP broker: durable topology, persistent
// publishing and a prefetch-1 manual-ack consumer.
//
// The process keeps one connection and one channel, lazily established and
// re-established on use when the broker dropped them. First-use
// initialization is serialized so concurrent callers never race the dial.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
)

// QueueName is the durable work queue shared by the publisher and consumer.
const QueueName = "quantum_tasks"

const (
	dialTimeout     = 10 * time.Second
	connectAttempts = 5
)

// Client owns the process-wide AMQP connection and channel.
type Client struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New constructs a Client. No connection is made until first use.
func New(url string) *Client {
	return &Client{url: url}
}

// channel returns the shared channel, dialing and declaring topology first
// when needed.
func (c *Client) channel(ctx context.Context) (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && !c.conn.IsClosed() && c.ch != nil && !c.ch.IsClosed() {
		return c.ch, nil
	}
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	return c.ch, nil
}

// connectLocked dials with exponential backoff (1s, factor 2, cap 60s, five
// attempts, 10s per dial), opens a channel and declares the queue. Caller
// holds c.mu.
func (c *Client) connectLocked(ctx context.Context) error {
	c.closeLocked()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 60 * time.Second
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	var conn *amqp.Connection
	attempt := 0
	dial := func() error {
		attempt++
		var err error
		conn, err = amqp.DialConfig(c.url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
		if err != nil {
			slog.Warn("broker dial failed",
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return err
		}
		return nil
	}
	if err := backoff.Retry(dial, backoff.WithContext(backoff.WithMaxRetries(bo, connectAttempts-1), ctx)); err != nil {
		return fmt.Errorf("op=queue.connect: %w: %w", domain.ErrQueueUnavailable, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("op=queue.connect: %w: %w", domain.ErrQueueUnavailable, err)
	}
	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("op=queue.connect: %w: %w", domain.ErrQueueUnavailable, err)
	}

	c.conn = conn
	c.ch = ch
	slog.Info("broker connected", slog.String("queue", QueueName))
	return nil
}

// declareTopology declares the work queue: durable, not auto-delete, no
// arguments. Safe to repeat across restarts.
func declareTopology(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(
		QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	return err
}

// invalidate drops the cached connection so the next use redials.
func (c *Client) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Health reports whether the connection is open and a throwaway channel can
// be opened and closed. It establishes the connection lazily on first probe.
func (c *Client) Health(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		if err := c.connectLocked(ctx); err != nil {
			return err
		}
	}
	probe, err := c.conn.Channel()
	if err != nil {
		c.closeLocked()
		return fmt.Errorf("op=queue.health: %w: %w", domain.ErrQueueUnavailable, err)
	}
	_ = probe.Close()
	return nil
}

// Close releases the channel, then the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}
