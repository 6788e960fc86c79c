package app

import (
	"context"
	"fmt"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// QueueHealth is the minimal interface for a broker client health probe.
type QueueHealth interface{ Health(ctx context.Context) error }

// BuildReadinessChecks returns the db and queue checks consumed by the
// health and readiness handlers.
func BuildReadinessChecks(pool Pinger, queue QueueHealth) (func(ctx context.Context) error, func(ctx context.Context) error) {
	dbCheck := func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	queueCheck := func(ctx context.Context) error {
		if queue == nil {
			return fmt.Errorf("queue not configured")
		}
		return queue.Health(ctx)
	}
	return dbCheck, queueCheck
}
