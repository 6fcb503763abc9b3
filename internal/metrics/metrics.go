// Package metrics exposes Prometheus counters for fetches, source queries,
// page extractions and per-product resolutions.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_fetches_total",
			Help: "HTTP fetches issued against search engines, shops and APIs",
		},
		[]string{"host", "status", "blocked_by"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrich_fetch_duration_seconds",
			Help:    "Duration of HTTP fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_fetch_bytes_total",
			Help: "Response bytes downloaded",
		},
		[]string{"host"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_proxy_failures_total",
			Help: "Fetches that failed through a proxy",
		},
		[]string{"proxy"},
	)

	SourceQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_source_queries_total",
			Help: "Source queries by outcome (hit or miss)",
		},
		[]string{"source", "outcome"},
	)

	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_extractions_total",
			Help: "Product page extractions by outcome (filled or empty)",
		},
		[]string{"outcome"},
	)

	FieldContributions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_field_contributions_total",
			Help: "Record fields filled, by contributing source",
		},
		[]string{"source", "field"},
	)

	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_resolutions_total",
			Help: "Products resolved, by final state and whether the fallback chain ran",
		},
		[]string{"state", "fallback"},
	)
)

// RecordFetch counts one HTTP fetch. status is 0 when the request never got
// a response.
func RecordFetch(host string, status int, blockedBy string, d time.Duration, size int) {
	statusStr := strconv.Itoa(status)
	if status == 0 {
		statusStr = "error"
	}
	FetchesTotal.WithLabelValues(host, statusStr, blockedBy).Inc()
	FetchDuration.WithLabelValues(host).Observe(d.Seconds())
	FetchBytesTotal.WithLabelValues(host).Add(float64(size))
}

// RecordQuery counts a source query that returned hits candidates.
func RecordQuery(source string, hits int) {
	outcome := "miss"
	if hits > 0 {
		outcome = "hit"
	}
	SourceQueriesTotal.WithLabelValues(source, outcome).Inc()
}

// RecordExtraction counts a page extraction that filled n attributes.
func RecordExtraction(n int) {
	outcome := "empty"
	if n > 0 {
		outcome = "filled"
	}
	ExtractionsTotal.WithLabelValues(outcome).Inc()
}

// RecordContribution counts fields filled by source.
func RecordContribution(source string, fields ...string) {
	for _, f := range fields {
		FieldContributions.WithLabelValues(source, f).Inc()
	}
}

// RecordResolution counts one finished product.
func RecordResolution(state string, fallback bool) {
	ResolutionsTotal.WithLabelValues(state, strconv.FormatBool(fallback)).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server is a standalone /metrics listener for batch runs.
type Server struct {
	srv *http.Server
}

// Start listens on addr and exposes /metrics until Stop is called.
func Start(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop shuts the listener down, waiting at most five seconds.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
