package dto

import (
	"time"

	"roofline/internal/domain"
)

type EstimateResponse struct {
	TraceID   string              `json:"traceId"`
	Estimate  *domain.Measurement `json:"estimate"`
	Timestamp time.Time           `json:"timestamp"`
}

type OrderResponse struct {
	TraceID   string        `json:"traceId"`
	Order     *domain.Order `json:"order"`
	Timestamp time.Time     `json:"timestamp"`
}

type HistoryResponse struct {
	TraceID   string                `json:"traceId"`
	Kind      string                `json:"kind"`
	Limit     int                   `json:"limit"`
	Entries   []domain.HistoryEntry `json:"entries"`
	Timestamp time.Time             `json:"timestamp"`
}

type ErrorResponse struct {
	TraceID   string    `json:"traceId"`
	Status    int       `json:"status"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	OrderID   string    `json:"orderId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
