// Command worker consumes the task queue, executes circuits on the embedded
// simulator and commits terminal statuses to the store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/quantum-task-queue/internal/adapter/observability"
	"github.com/fairyhunter13/quantum-task-queue/internal/adapter/queue/rabbitmq"
	"github.com/fairyhunter13/quantum-task-queue/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/quantum-task-queue/internal/adapter/simulator"
	"github.com/fairyhunter13/quantum-task-queue/internal/app"
	"github.com/fairyhunter13/quantum-task-queue/internal/config"
	"github.com/fairyhunter13/quantum-task-queue/internal/usecase"
)

func main() {
	// Deferred cleanup (pool, queue client, tracer) must complete before the
	// process exits, so the exit code travels out of run instead of an
	// os.Exit call skipping the defers.
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		return 1
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Worker process serves its own /metrics; the server has one on its
	// router.
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.WorkerMetricsPort)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.Environment))

	pool, err := postgres.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	taskRepo := postgres.NewTaskRepo(pool)
	queueClient := rabbitmq.New(cfg.RabbitMQURL)
	defer func() {
		if err := queueClient.Close(); err != nil {
			slog.Error("failed to close queue client", slog.Any("error", err))
		}
	}()

	processor := usecase.NewProcessService(taskRepo, simulator.New())

	// Prove the simulator works before taking any message off the queue.
	selfCheckCtx, cancelSelfCheck := context.WithTimeout(context.Background(), 10*time.Second)
	if err := processor.SelfCheck(selfCheckCtx); err != nil {
		cancelSelfCheck()
		slog.Error("simulator self-check failed", slog.Any("error", err))
		return 1
	}
	cancelSelfCheck()
	slog.Info("simulator self-check passed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional recovery of tasks abandoned in processing by a dead worker.
	if sweeper := app.NewStuckTaskSweeper(taskRepo, cfg.StuckTaskTimeout, cfg.StuckTaskSweepInterval); sweeper != nil {
		slog.Info("stuck task sweeper enabled",
			slog.Duration("max_processing_age", cfg.StuckTaskTimeout),
			slog.Duration("interval", cfg.StuckTaskSweepInterval))
		go sweeper.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("consume loop starting", slog.String("queue", rabbitmq.QueueName))
		errCh <- queueClient.Consume(ctx, processor.HandleDelivery)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	exitCode := 0
	select {
	case sig := <-sigCh:
		slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("consume loop error during shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		// A broker outage is fatal; the supervisor restarts the process.
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("consume loop failed", slog.Any("error", err))
			exitCode = 1
		}
	}

	// Let an in-flight execution land its terminal status before exiting.
	processor.Drain()
	slog.Info("worker stopped")
	return exitCode
}
