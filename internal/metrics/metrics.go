// Package metrics defines the service's Prometheus metrics. Every method is
// safe on a nil *Metrics, so metrics can be switched off by passing nil.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "backlinks"

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	LookupDuration prometheus.Histogram
	LookupOffers   prometheus.Histogram

	IngestionsTotal   *prometheus.CounterVec
	IngestedRowsTotal *prometheus.CounterVec
	IngestionDuration prometheus.Histogram

	ConversionMissesTotal *prometheus.CounterVec

	FXSyncTotal  *prometheus.CounterVec
	FXRatesSaved prometheus.Counter
}

// New registers every metric on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	m.HTTPRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.LookupDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "lookup",
		Name:      "duration_seconds",
		Help:      "Time spent resolving a lookup request.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	})

	m.LookupOffers = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "lookup",
		Name:      "offers_returned",
		Help:      "Offers returned per lookup.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	m.IngestionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "ingest",
		Name:      "ingestions_total",
		Help:      "Finished ingestions by result.",
	}, []string{"result"})

	m.IngestedRowsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "ingest",
		Name:      "rows_total",
		Help:      "Ingested rows by outcome.",
	}, []string{"outcome"})

	m.IngestionDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "ingest",
		Name:      "duration_seconds",
		Help:      "Wall time of one ingestion.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
	})

	m.ConversionMissesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "fx",
		Name:      "conversion_misses_total",
		Help:      "Prices that could not be converted to USD, by currency.",
	}, []string{"currency"})

	m.FXSyncTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "fx",
		Name:      "feed_syncs_total",
		Help:      "FX feed refreshes by status.",
	}, []string{"status"})

	m.FXRatesSaved = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "fx",
		Name:      "feed_rates_saved_total",
		Help:      "Rates stored by the FX feed.",
	})

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordLookup(elapsed time.Duration, offers int) {
	if m == nil {
		return
	}
	m.LookupDuration.Observe(elapsed.Seconds())
	m.LookupOffers.Observe(float64(offers))
}

func (m *Metrics) RecordIngestion(report *domain.IngestReport) {
	if m == nil || report == nil {
		return
	}
	result := "completed"
	if report.TimedOut {
		result = "timed_out"
	}
	m.IngestionsTotal.WithLabelValues(result).Inc()
	m.IngestedRowsTotal.WithLabelValues("new").Add(float64(report.NewOffersAdded))
	m.IngestedRowsTotal.WithLabelValues("updated").Add(float64(report.UpdatedOffers))
	m.IngestedRowsTotal.WithLabelValues("failed").Add(float64(report.FailedImports))
	m.IngestionDuration.Observe((time.Duration(report.ProcessingTimeMS) * time.Millisecond).Seconds())
}

func (m *Metrics) RecordConversionMiss(currency string) {
	if m == nil {
		return
	}
	m.ConversionMissesTotal.WithLabelValues(currency).Inc()
}

// RecordFXSync counts one feed refresh. err is the refresh error, if any.
func (m *Metrics) RecordFXSync(saved int, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.FXSyncTotal.WithLabelValues(status).Inc()
	m.FXRatesSaved.Add(float64(saved))
}
