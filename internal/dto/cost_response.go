package dto

import (
	"time"

	"roofline/internal/domain"
)

type CostSummaryResponse struct {
	TraceID   string              `json:"traceId"`
	Summary   *domain.CostSummary `json:"summary"`
	Timestamp time.Time           `json:"timestamp"`
}

type HealthResponse struct {
	TraceID         string    `json:"traceId"`
	Status          string    `json:"status"`
	LiveMode        bool      `json:"liveMode"`
	Tier1Configured bool      `json:"tier1Configured"`
	BillingDay      string    `json:"billingDay"`
	TodayOrders     int       `json:"todayOrders"`
	DailyLimit      int       `json:"dailyLimit"`
	Timestamp       time.Time `json:"timestamp"`
}
