package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	TasksSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_submitted_total",
			Help: "Total number of tasks accepted by the submit endpoint",
		},
	)
	TaskPublishFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "task_publish_failures_total",
			Help: "Total number of queue publishes that failed after the task row was created",
		},
	)
	TasksClaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_claimed_total",
			Help: "Total number of pending→processing claims won by this process",
		},
	)
	TasksProcessing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tasks_processing",
			Help: "Number of tasks currently executing in this process",
		},
	)
	TasksCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_completed_total",
			Help: "Total number of tasks committed as completed",
		},
	)
	TasksFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_failed_total",
			Help: "Total number of tasks committed as failed, by error category",
		},
		[]string{"category"},
	)
	TaskExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "task_execution_duration_seconds",
			Help:    "Wall-clock duration of simulator executions in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		},
	)
	MessagesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_dropped_total",
			Help: "Total number of deliveries acknowledged without processing, by reason",
		},
		[]string{"reason"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(TasksSubmittedTotal)
	prometheus.MustRegister(TaskPublishFailuresTotal)
	prometheus.MustRegister(TasksClaimedTotal)
	prometheus.MustRegister(TasksProcessing)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(TasksFailedTotal)
	prometheus.MustRegister(TaskExecutionDuration)
	prometheus.MustRegister(MessagesDroppedTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

func SubmitTask() {
	TasksSubmittedTotal.Inc()
}

func PublishFailed() {
	TaskPublishFailuresTotal.Inc()
}

func ClaimTask() {
	TasksClaimedTotal.Inc()
	TasksProcessing.Inc()
}

func CompleteTask(execution time.Duration) {
	TasksProcessing.Dec()
	TasksCompletedTotal.Inc()
	TaskExecutionDuration.Observe(execution.Seconds())
}

func FailTask(category string) {
	TasksProcessing.Dec()
	TasksFailedTotal.WithLabelValues(category).Inc()
}

// RejectTask records a pending→failed rejection that never started executing.
func RejectTask(category string) {
	TasksFailedTotal.WithLabelValues(category).Inc()
}

// SweepTask records a processing→failed transition made on behalf of a dead
// worker. The processing gauge is untouched: the execution was never counted
// by this process.
func SweepTask(category string) {
	TasksFailedTotal.WithLabelValues(category).Inc()
}

func DropMessage(reason string) {
	MessagesDroppedTotal.WithLabelValues(reason).Inc()
}
