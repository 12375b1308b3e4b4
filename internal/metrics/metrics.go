package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Results reported by the color sampler.
const (
	ColorSampled  = "sampled"
	ColorCached   = "cached"
	ColorFallback = "fallback"
)

// Results reported by the uploader.
const (
	UploadSucceeded = "succeeded"
	UploadRejected  = "rejected"
	UploadFailed    = "failed"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	colorSamples *prometheus.CounterVec
	uploads      *prometheus.CounterVec
}

// New creates the storefront instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		colorSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_color_samples_total",
			Help: "Dominant color extractions by result.",
		}, []string{"result"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_image_uploads_total",
			Help: "Image uploads by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.colorSamples, m.uploads)
	}

	return m
}

// ObserveRequest records a finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ColorSample records the outcome of one dominant color extraction.
func (m *Metrics) ColorSample(result string) {
	if m == nil {
		return
	}
	m.colorSamples.WithLabelValues(result).Inc()
}

// Upload records the outcome of one image upload.
func (m *Metrics) Upload(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}
