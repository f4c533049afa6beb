package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	PipelineRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "reviews", Name: "pipeline_records_total",
			Help: "Records per pipeline stage outcome."},
		[]string{"bank", "outcome"}, // outcome: fetched|rejected|duplicate|written
	)
	RunsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "reviews", Name: "runs_total",
			Help: "Pipeline runs by final state."},
		[]string{"bank", "state"},
	)
	SourceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "reviews", Name: "source_requests_total",
			Help: "Outbound review-source requests."},
		[]string{"endpoint", "status"},
	)
	SourceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reviews", Name: "source_request_duration_seconds",
			Help:    "Outbound review-source request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "reviews", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reviews", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "reviews", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
)

// Serve starts a standalone metrics listener on addr. Used by the ingestor,
// which has no HTTP surface of its own; an empty addr disables it. The
// handler serves the same registry the API mounts, so the pipeline counters
// incremented during ingestion are scrapeable from either process.
func Serve(addr string) {
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(InitRegistry()))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(PipelineRecords, RunsCompleted, SourceRequests, SourceLatency,
		HTTPRequests, HTTPLatency, CacheEvents)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ObserveStage counts records leaving a pipeline stage with the given
// outcome: fetched|rejected|duplicate|written.
func ObserveStage(bank, outcome string, n int) {
	if n <= 0 {
		return
	}
	PipelineRecords.WithLabelValues(bank, outcome).Add(float64(n))
}

func ObserveRun(bank, state string) {
	RunsCompleted.WithLabelValues(bank, state).Inc()
}

// ObserveSource records an outbound request to the review source; status 0
// means the request never got a response.
func ObserveSource(endpoint string, status int, dur time.Duration) {
	SourceRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	SourceLatency.WithLabelValues(endpoint).Observe(dur.Seconds())
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}
