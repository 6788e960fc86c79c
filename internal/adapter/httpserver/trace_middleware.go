package httpserver

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	obsctx "github.com/fairyhunter13/quantum-task-queue/internal/observability"
)

// TraceMiddleware starts a span per request and tags it with the
// correlation id so API spans join up with the worker's ProcessTask spans.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr := otel.Tracer("http.server")
		ctx, span := tr.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()
		attrs := []attribute.KeyValue{
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		}
		if corrID := obsctx.CorrelationIDFromContext(ctx); corrID != "" {
			attrs = append(attrs, attribute.String("correlation.id", corrID))
		}
		span.SetAttributes(attrs...)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
