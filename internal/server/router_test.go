package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roofline/internal/cache"
	"roofline/internal/clock"
	"roofline/internal/config"
	"roofline/internal/infrastructure/metrics"
	"roofline/internal/infrastructure/rabbitmq"
	"roofline/internal/ledger"
	costctrl "roofline/internal/ledger/controller"
	"roofline/internal/order"
)

const geocodeOK = `{
  "status": "OK",
  "results": [{
    "formatted_address": "123 Main St, Springfield, IL 62701, USA",
    "geometry": {"location": {"lat": 39.7817, "lng": -89.6501}}
  }]
}`

const insightsOK = `{
  "imageryQuality": "MEDIUM",
  "solarPotential": {
    "wholeRoofStats": {"areaMeters2": 150},
    "roofSegmentStats": [
      {"pitchDegrees": 26.57, "azimuthDegrees": 180, "stats": {"areaMeters2": 150}}
    ]
  }
}`

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()

	google := http.NewServeMux()
	google.HandleFunc("/geocode", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geocodeOK))
	})
	google.HandleFunc("/insights", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(insightsOK))
	})
	googleSrv := httptest.NewServer(google)
	t.Cleanup(googleSrv.Close)

	cfg := &config.Config{
		Store: config.StoreConfig{Driver: config.StoreDriverMemory},
		Google: config.GoogleConfig{
			APIKey:       "test-key",
			GeocodingURL: googleSrv.URL + "/geocode",
			SolarURL:     googleSrv.URL + "/insights",
			Timeout:      2 * time.Second,
		},
		EagleView: config.EagleViewConfig{DailyOrderLimit: 2},
		Billing:   config.BillingConfig{Location: time.UTC},
		Cache:     config.CacheConfig{Freshness: time.Hour},
		Poller: config.PollerConfig{
			Timeout:          2 * time.Second,
			CheckWaitTimeout: time.Second,
		},
		Order: config.OrderConfig{
			ReservationTxTimeout: time.Second,
			MaxRetryAttempts:     3,
		},
	}

	clk := clock.NewFakeClock(time.Date(2026, 10, 18, 14, 0, 0, 0, time.UTC))
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	logger := zap.NewNop()

	costLedger := ledger.NewModule(nil, cfg, clk, m, logger)
	orderModule := order.NewModule(order.Dependencies{
		Ledger:    costLedger,
		Cache:     cache.NewMemoryCache(cfg.Cache.Freshness, clk),
		Publisher: rabbitmq.NopPublisher{},
		Clock:     clk,
		Metrics:   m,
	}, cfg, logger)

	costs := costctrl.NewCostController(costLedger, orderModule.Tier1Configured, logger)
	return NewRouter(orderModule.Controller, costs, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), logger)
}

func call(t *testing.T, h http.Handler, method, target, body string) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	return rec.Code, decoded
}

func TestRouter_OrderLifecycle(t *testing.T) {
	h := newTestAPI(t)

	status, body := call(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["liveMode"])
	assert.Equal(t, true, body["tier1Configured"])
	assert.Equal(t, float64(2), body["dailyLimit"])

	status, body = call(t, h, http.MethodGet, "/estimate?address=123+Main+St", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["estimate"].(map[string]interface{})["cached"])

	status, body = call(t, h, http.MethodGet, "/estimate?address=123+main+st", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["estimate"].(map[string]interface{})["cached"])

	status, body = call(t, h, http.MethodPost, "/orders", `{"address":"123 Main St","reportType":"BASIC"}`)
	require.Equal(t, http.StatusCreated, status)
	created := body["order"].(map[string]interface{})
	assert.Equal(t, "PENDING", created["status"])
	assert.Equal(t, true, created["simulated"])
	assert.True(t, strings.HasPrefix(created["providerOrderId"].(string), "SIM-"))
	orderID := created["orderId"].(string)

	status, body = call(t, h, http.MethodPost, "/orders/"+orderID+"/check", "")
	require.Equal(t, http.StatusOK, status)
	checked := body["order"].(map[string]interface{})
	assert.Equal(t, "VERIFIED", checked["status"])
	assert.Equal(t, float64(2), checked["measurement"].(map[string]interface{})["tier"])

	status, body = call(t, h, http.MethodGet, "/orders/"+orderID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "VERIFIED", body["order"].(map[string]interface{})["status"])

	status, body = call(t, h, http.MethodGet, "/orders?kind=verified", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["entries"], 1)

	status, body = call(t, h, http.MethodGet, "/orders?kind=estimates", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["entries"], 1)

	status, _ = call(t, h, http.MethodPost, "/orders", `{"address":"9 Elm St","reportType":"PREMIUM"}`)
	require.Equal(t, http.StatusCreated, status)

	status, body = call(t, h, http.MethodPost, "/orders", `{"address":"10 Oak St","reportType":"PREMIUM"}`)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "DAILY_LIMIT_EXCEEDED", body["code"])

	status, body = call(t, h, http.MethodGet, "/costs/summary", "")
	require.Equal(t, http.StatusOK, status)
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, float64(2), summary["todayOrders"])
	assert.Equal(t, false, summary["liveMode"])

	status, _ = call(t, h, http.MethodGet, "/orders/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRouter_Metrics(t *testing.T) {
	h := newTestAPI(t)

	call(t, h, http.MethodGet, "/estimate?address=123+Main+St", "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	raw, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "roofline_provider_calls_total")
}
