package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry            *prometheus.Registry
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     prometheus.Histogram
	ItemsExtractedTotal prometheus.Counter
	ItemsDroppedTotal   prometheus.Counter
	EmptyPagesTotal     prometheus.Counter
	ErrorsTotal         *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for page fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	itemsExtracted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_extracted_total",
			Help: "Total number of complete product records extracted.",
		},
	)
	itemsDropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_dropped_total",
			Help: "Total number of product blocks skipped for a missing field.",
		},
	)
	emptyPages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_empty_pages_total",
			Help: "Total number of fetched pages where no product block matched.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, itemsExtracted, itemsDropped, emptyPages, errorsTotal)

	return &Metrics{
		Registry:            registry,
		RequestsTotal:       requests,
		RequestDuration:     requestDuration,
		ItemsExtractedTotal: itemsExtracted,
		ItemsDroppedTotal:   itemsDropped,
		EmptyPagesTotal:     emptyPages,
		ErrorsTotal:         errorsTotal,
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

// AddItems adds to the extracted and dropped item counters.
func (m *Metrics) AddItems(extracted, dropped int) {
	if m == nil {
		return
	}
	m.ItemsExtractedTotal.Add(float64(extracted))
	m.ItemsDroppedTotal.Add(float64(dropped))
}

// IncEmptyPage counts a page without any product block.
func (m *Metrics) IncEmptyPage() {
	if m == nil {
		return
	}
	m.EmptyPagesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
