package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.IncCycle("completed")
	m.IncSkip("no offer available")
	m.ObserveExchange("request_offer", 503)
	m.IncExchangeRetry("request_offer")
	m.ObserveBeacon("impression", true)
	m.ObservePreload(750 * time.Millisecond)
	m.ObserveConfirmation(false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `wadplay_cycles_total{outcome="completed"} 1`)
	assert.Contains(t, body, `wadplay_skips_total{reason="no offer available"} 1`)
	assert.Contains(t, body, `wadplay_exchange_requests_total{op="request_offer",status="503"} 1`)
	assert.Contains(t, body, `wadplay_tracking_beacons_total{event="impression",result="ok"} 1`)
	assert.Contains(t, body, `wadplay_playout_confirmations_total{result="failed"} 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncCycle("completed")
		m.IncSkip("x")
		m.ObserveExchange("op", 200)
		m.IncExchangeRetry("op")
		m.ObserveBeacon("start", false)
		m.ObservePreload(time.Second)
		m.ObserveConfirmation(true)
	})
}
