package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/taskflow/pkg/composables"
)

const tenantHeader = "X-Tenant-ID"

var tracer = otel.Tracer("taskflow-middleware")

// Traced opens a span per request, continuing any trace context the caller
// propagated in the headers.
func Traced(name string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			propagator := propagation.TraceContext{}
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(
				ctx,
				"http."+name,
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.url", r.URL.String()),
					attribute.String("http.host", r.Host),
				),
			)
			defer span.End()

			propagator.Inject(ctx, propagation.HeaderCarrier(r.Header))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProvideDB makes the pool available to repositories through the context.
// Read paths run straight off the pool; services open transactions when they
// need atomicity.
func ProvideDB(pool *pgxpool.Pool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(composables.WithPool(r.Context(), pool)))
		})
	}
}

// WithTenant resolves the tenant from the X-Tenant-ID header. Requests
// without a valid tenant are rejected before any query runs.
func WithTenant() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, err := uuid.Parse(r.Header.Get(tenantHeader))
			if err != nil {
				http.Error(w, "missing or invalid tenant id", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r.WithContext(composables.WithTenantID(r.Context(), tenantID)))
		})
	}
}

// WithRequestParams captures the caller's IP and user agent so executed
// actions carry them into the audit trail.
func WithRequestParams() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := composables.WithParams(r.Context(), &composables.Params{
				IP:        remoteIP(r),
				UserAgent: r.UserAgent(),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithLogger binds a request-scoped log entry and emits one line per request.
func WithLogger(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := logger.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			next.ServeHTTP(w, r.WithContext(composables.WithLogger(r.Context(), entry)))
			entry.WithField("duration", time.Since(start)).Info("request completed")
		})
	}
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
