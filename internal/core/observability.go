package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Logger is the structured logging surface the service writes to.
// *zap.SugaredLogger satisfies it.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debugw(string, ...any) {}
func (noopLogger) Infow(string, ...any)  {}
func (noopLogger) Warnw(string, ...any)  {}
func (noopLogger) Errorw(string, ...any) {}

// MetricsRecorder receives one observation per service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// PrometheusMetricsRecorder counts operations and their latency by result.
type PrometheusMetricsRecorder struct {
	total   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the service collectors with reg.
// A nil reg uses the default registerer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusMetricsRecorder{
		total: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "usergrid",
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Total number of user service operations broken down by operation and result.",
		}, []string{"operation", "result"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "usergrid",
			Subsystem: "service",
			Name:      "operation_seconds",
			Help:      "Latency distribution for user service operations.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation", "result"}),
	}
}

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	result := "error"
	if success {
		result = "success"
	}
	r.total.WithLabelValues(operation, result).Inc()
	r.latency.WithLabelValues(operation, result).Observe(duration.Seconds())
}
