package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/patrongate/patrongate/pkg/gateway"
	"github.com/patrongate/patrongate/pkg/id"
	"github.com/patrongate/patrongate/pkg/logger"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

type contextKey int

const requestIDKey contextKey = iota

// requestID tags every request with an id, honoring one the caller
// already carries so traces line up across hops.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(gateway.RequestIDHeader)
		if requestID == "" {
			requestID = id.New()
		}
		w.Header().Set(gateway.RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID)))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// recovery converts a handler panic into the generic internal error
// response instead of tearing the connection down.
func recovery(l logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				l.Error("handler panic",
					zap.String("path", r.URL.Path),
					zap.String("request_id", requestIDFromContext(r.Context())),
					zap.Any("panic", rec))
				writeJSON(w, http.StatusInternalServerError, serverErrors.ErrorResponse{
					Code:    serverErrors.CodeInternalError,
					Message: serverErrors.InternalServerErrorMsg,
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// presharedAuthn enforces a bearer token drawn from the configured key
// set. The health endpoint stays open for probes.
func presharedAuthn(keys []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		for _, key := range keys {
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeJSON(w, http.StatusUnauthorized, serverErrors.ErrorResponse{
			Code:    "unauthenticated",
			Message: "missing or invalid credentials",
		})
	})
}

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patrongate",
		Name:      "http_requests_total",
		Help:      "Count of handled HTTP requests.",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "patrongate",
		Name:      "http_request_duration_seconds",
		Help:      "Latency of handled HTTP requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method"})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)
		requestsTotal.WithLabelValues(r.Method, strconv.Itoa(recorder.status)).Inc()
		requestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
