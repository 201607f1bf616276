package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the tap.
type Metrics struct {
	Registry               *prometheus.Registry
	RequestsTotal          *prometheus.CounterVec
	RequestDuration        prometheus.Histogram
	ListingsExtractedTotal prometheus.Counter
	RecordsEmittedTotal    prometheus.Counter
	TermsTotal             *prometheus.CounterVec
	ErrorsTotal            *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tap_requests_total",
			Help: "Total HTTP requests issued by the tap.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tap_request_duration_seconds",
			Help:    "HTTP request latency for tap requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	listingsExtracted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tap_listings_extracted_total",
			Help: "Total number of listings extracted from result pages.",
		},
	)
	recordsEmitted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tap_records_emitted_total",
			Help: "Total number of records written downstream.",
		},
	)
	terms := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tap_terms_total",
			Help: "Total number of search terms processed by outcome.",
		},
		[]string{"outcome"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tap_errors_total",
			Help: "Total number of tap errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, listingsExtracted, recordsEmitted, terms, errorsTotal)

	return &Metrics{
		Registry:               registry,
		RequestsTotal:          requests,
		RequestDuration:        requestDuration,
		ListingsExtractedTotal: listingsExtracted,
		RecordsEmittedTotal:    recordsEmitted,
		TermsTotal:             terms,
		ErrorsTotal:            errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddExtracted adds to the listings extracted counter.
func (m *Metrics) AddExtracted(n int) {
	if m == nil {
		return
	}
	m.ListingsExtractedTotal.Add(float64(n))
}

// AddEmitted adds to the records emitted counter.
func (m *Metrics) AddEmitted(n int) {
	if m == nil {
		return
	}
	m.RecordsEmittedTotal.Add(float64(n))
}

// IncTerm increments the terms counter for an outcome label.
func (m *Metrics) IncTerm(outcome string) {
	if m == nil {
		return
	}
	m.TermsTotal.WithLabelValues(outcome).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
