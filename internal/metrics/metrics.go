// Package metrics provides Prometheus instrumentation for the node.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InstructionsTotal counts executed instructions by name and result.
	InstructionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bond_instructions_total",
		Help: "Total number of instructions executed",
	}, []string{"instruction", "result"})

	// InstructionLatency tracks instruction execution latency.
	InstructionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bond_instruction_latency_seconds",
		Help:    "Instruction execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"instruction"})

	// RiskRejections counts opens rejected by a risk-control gate.
	RiskRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bond_risk_rejections_total",
		Help: "Position opens rejected by risk control",
	}, []string{"gate"})

	// MirrorAccounts tracks mirrored active records per kind.
	MirrorAccounts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bond_mirror_accounts",
		Help: "Active accounts held by the state mirror",
	}, []string{"kind"})

	// WebSocketClients tracks connected price-stream clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bond_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bond_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bond_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
