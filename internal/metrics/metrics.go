// Package metrics provides Prometheus instrumentation for the settlement
// engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts engine operations, partitioned by operation
	// and outcome code ("ok" or an error code).
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_operations_total",
		Help: "Total number of engine operations by outcome",
	}, []string{"op", "code"})

	// OperationLatency tracks engine operation latency, including the
	// journal append and, for settle, the oracle round trip.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atmx_operation_latency_seconds",
		Help:    "Engine operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// TicketsStaked tracks cumulative tickets staked across all draws.
	TicketsStaked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atmx_tickets_staked_total",
		Help: "Cumulative tickets staked on thresholds",
	})

	// TicketsPaidOut tracks cumulative tickets paid to winners.
	TicketsPaidOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atmx_tickets_paid_out_total",
		Help: "Cumulative tickets paid out by claims",
	})

	// OpenDraws tracks the number of draws not yet settled.
	OpenDraws = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atmx_open_draws",
		Help: "Number of draws not yet settled",
	})

	// VaultTotalAssets and VaultTotalSupply mirror the ticket vault.
	VaultTotalAssets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atmx_vault_total_assets",
		Help: "Base asset held by the ticket vault",
	})
	VaultTotalSupply = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atmx_vault_total_supply",
		Help: "Tickets outstanding",
	})

	// StakeLimitRejections counts bids rejected by the stake limiter.
	StakeLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atmx_stake_limit_rejections_total",
		Help: "Bids rejected by the stake limiter",
	})

	// JournalAppendFailures counts operations aborted because the journal
	// write failed.
	JournalAppendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atmx_journal_append_failures_total",
		Help: "Operations aborted by a failed journal append",
	})

	// KeeperRuns counts keeper settle attempts by result.
	KeeperRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_keeper_settle_attempts_total",
		Help: "Keeper settle attempts by result",
	}, []string{"result"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atmx_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atmx_http_request_duration_seconds",
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

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
