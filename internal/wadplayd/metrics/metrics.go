// Package metrics holds the Prometheus instruments of the ad runtime.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and histograms for the runtime.
type Metrics struct {
	registry         *prometheus.Registry
	cyclesTotal      *prometheus.CounterVec
	skipsTotal       *prometheus.CounterVec
	exchangeRequests *prometheus.CounterVec
	exchangeRetries  *prometheus.CounterVec
	beaconsTotal     *prometheus.CounterVec
	preloadSeconds   prometheus.Histogram
	confirmations    *prometheus.CounterVec
}

// New creates and registers Prometheus metrics for the runtime.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	cyclesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wadplay_cycles_total",
		Help: "Ad cycles finished, by terminal outcome",
	}, []string{"outcome"})
	skipsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wadplay_skips_total",
		Help: "Skip signals raised, by reason",
	}, []string{"reason"})
	exchangeRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wadplay_exchange_requests_total",
		Help: "Exchange HTTP attempts, by operation and status code (0 for transport failures)",
	}, []string{"op", "status"})
	exchangeRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wadplay_exchange_retries_total",
		Help: "Exchange attempts repeated after a retryable failure",
	}, []string{"op"})
	beaconsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wadplay_tracking_beacons_total",
		Help: "Tracking beacons fired, by event and result",
	}, []string{"event", "result"})
	preloadSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wadplay_preload_seconds",
		Help:    "Time from preload start until media could start playing",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	})
	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wadplay_playout_confirmations_total",
		Help: "Playout confirmations, by result",
	}, []string{"result"})

	registry.MustRegister(
		cyclesTotal,
		skipsTotal,
		exchangeRequests,
		exchangeRetries,
		beaconsTotal,
		preloadSeconds,
		confirmations,
	)

	return &Metrics{
		registry:         registry,
		cyclesTotal:      cyclesTotal,
		skipsTotal:       skipsTotal,
		exchangeRequests: exchangeRequests,
		exchangeRetries:  exchangeRetries,
		beaconsTotal:     beaconsTotal,
		preloadSeconds:   preloadSeconds,
		confirmations:    confirmations,
	}
}

// IncCycle counts a finished cycle.
func (m *Metrics) IncCycle(outcome string) {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(outcome).Inc()
}

// IncSkip counts a skip signal.
func (m *Metrics) IncSkip(reason string) {
	if m == nil {
		return
	}
	m.skipsTotal.WithLabelValues(reason).Inc()
}

// ObserveExchange counts one exchange attempt.
func (m *Metrics) ObserveExchange(op string, status int) {
	if m == nil {
		return
	}
	m.exchangeRequests.WithLabelValues(op, strconv.Itoa(status)).Inc()
}

// IncExchangeRetry counts a retried exchange attempt.
func (m *Metrics) IncExchangeRetry(op string) {
	if m == nil {
		return
	}
	m.exchangeRetries.WithLabelValues(op).Inc()
}

// ObserveBeacon counts a fired tracking beacon.
func (m *Metrics) ObserveBeacon(event string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.beaconsTotal.WithLabelValues(event, result).Inc()
}

// ObservePreload records how long preloading took.
func (m *Metrics) ObservePreload(d time.Duration) {
	if m == nil {
		return
	}
	m.preloadSeconds.Observe(d.Seconds())
}

// ObserveConfirmation counts a playout confirmation attempt.
func (m *Metrics) ObserveConfirmation(ok bool) {
	if m == nil {
		return
	}
	result := "acked"
	if !ok {
		result = "failed"
	}
	m.confirmations.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
