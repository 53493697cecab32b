package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roofline/internal/domain"
)

type mockCostReporter struct {
	SummaryFunc func(ctx context.Context) (*domain.CostSummary, error)
}

func (m *mockCostReporter) Summary(ctx context.Context) (*domain.CostSummary, error) {
	return m.SummaryFunc(ctx)
}

func sampleSummary() *domain.CostSummary {
	return &domain.CostSummary{
		Providers: []domain.ProviderUsage{
			{Provider: domain.ProviderGoogleSolar, Calls: 4, Cost: decimal.RequireFromString("0.03")},
			{Provider: domain.ProviderEagleView, Calls: 1, Cost: decimal.RequireFromString("15")},
		},
		TotalCalls:  5,
		TotalCost:   decimal.RequireFromString("15.03"),
		BillingDay:  "2026-10-18",
		TodayOrders: 1,
		DailyLimit:  5,
		LiveMode:    true,
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetCostSummary(t *testing.T) {
	ctrl := NewCostController(&mockCostReporter{
		SummaryFunc: func(ctx context.Context) (*domain.CostSummary, error) {
			return sampleSummary(), nil
		},
	}, true, zap.NewNop())

	rec := httptest.NewRecorder()
	ctrl.GetCostSummary(rec, httptest.NewRequest(http.MethodGet, "/costs/summary", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, "15.03", summary["totalCostUsd"])
	assert.Equal(t, float64(5), summary["totalCalls"])
	assert.Len(t, summary["providers"], 2)
	assert.NotEmpty(t, body["traceId"])
}

func TestGetCostSummary_Error(t *testing.T) {
	ctrl := NewCostController(&mockCostReporter{
		SummaryFunc: func(ctx context.Context) (*domain.CostSummary, error) {
			return nil, errors.New("db down")
		},
	}, true, zap.NewNop())

	rec := httptest.NewRecorder()
	ctrl.GetCostSummary(rec, httptest.NewRequest(http.MethodGet, "/costs/summary", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decode(t, rec)["code"])
}

func TestHealth(t *testing.T) {
	ctrl := NewCostController(&mockCostReporter{
		SummaryFunc: func(ctx context.Context) (*domain.CostSummary, error) {
			return sampleSummary(), nil
		},
	}, false, zap.NewNop())

	rec := httptest.NewRecorder()
	ctrl.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["liveMode"])
	assert.Equal(t, false, body["tier1Configured"])
	assert.Equal(t, float64(1), body["todayOrders"])
	assert.Equal(t, float64(5), body["dailyLimit"])
}

func TestHealth_Degraded(t *testing.T) {
	ctrl := NewCostController(&mockCostReporter{
		SummaryFunc: func(ctx context.Context) (*domain.CostSummary, error) {
			return nil, errors.New("db down")
		},
	}, true, zap.NewNop())

	rec := httptest.NewRecorder()
	ctrl.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}
