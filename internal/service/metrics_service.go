package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the document
// lifecycle service.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	activationTotal     *prometheus.CounterVec
	activationRetries   prometheus.Counter
	activationConflicts prometheus.Counter
	supersessions       prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	activationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_activations_total",
		Help: "Document activations by outcome",
	}, []string{"outcome"})

	activationRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "document_activation_retries_total",
		Help: "Activation transactions retried after lock contention",
	})

	activationConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "document_activation_conflicts_total",
		Help: "Activations surfaced to callers as conflicts after exhausting retries",
	})

	supersessions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "document_supersessions_total",
		Help: "Prior document versions superseded by new activations",
	})

	registry.MustRegister(requestDuration, requestTotal, activationTotal, activationRetries, activationConflicts, supersessions)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		activationTotal:     activationTotal,
		activationRetries:   activationRetries,
		activationConflicts: activationConflicts,
		supersessions:       supersessions,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveActivation records an activation outcome.
func (s *MetricsService) ObserveActivation(outcome string, superseded bool) {
	s.activationTotal.WithLabelValues(outcome).Inc()
	if superseded {
		s.supersessions.Inc()
	}
}

// ObserveActivationRetry counts one internal retry.
func (s *MetricsService) ObserveActivationRetry() {
	s.activationRetries.Inc()
}

// ObserveActivationConflict counts a conflict surfaced to the caller.
func (s *MetricsService) ObserveActivationConflict() {
	s.activationConflicts.Inc()
}
