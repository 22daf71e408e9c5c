// Package metrics provides Prometheus instrumentation for the mosaic engine.
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
	// GroupsCreated counts fundraising groups opened.
	GroupsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosaic_groups_created_total",
		Help: "Total fundraising groups created",
	})

	// Contributions counts successful ticket purchases.
	Contributions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosaic_contributions_total",
		Help: "Total successful contributions",
	})

	// GroupOutcomes counts terminal group resolutions by outcome (won, lost).
	GroupOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mosaic_group_outcomes_total",
		Help: "Groups resolved, by outcome",
	}, []string{"outcome"})

	// BidsProposed counts resale bids opened.
	BidsProposed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosaic_bids_proposed_total",
		Help: "Total resale bids proposed",
	})

	// BidsFinalized counts finalized bids by verdict (accepted, rejected).
	BidsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mosaic_bids_finalized_total",
		Help: "Bids finalized, by verdict",
	}, []string{"verdict"})

	// OriginalsSold counts settled resales.
	OriginalsSold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosaic_originals_sold_total",
		Help: "Originals sold through bid settlement",
	})

	// Payouts counts cash-out operations by kind (surplus_refund,
	// ticket_refund, bid_refund, resale_payout).
	Payouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mosaic_payouts_total",
		Help: "Payout operations, by ledger kind",
	}, []string{"kind"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mosaic_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mosaic_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mosaic_http_request_duration_seconds",
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

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
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
