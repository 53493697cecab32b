package domain

import (
	"fmt"
	"strings"
	"time"
)

type HistoryKind string

const (
	HistoryAll          HistoryKind = "ALL"
	HistoryPending      HistoryKind = "PENDING"
	HistoryVerified     HistoryKind = "VERIFIED"
	HistoryManualReview HistoryKind = "MANUAL_REVIEW"
	HistoryFailed       HistoryKind = "FAILED"
	HistoryEstimates    HistoryKind = "ESTIMATES"
)

func ParseHistoryKind(s string) (HistoryKind, error) {
	k := HistoryKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case "":
		return HistoryAll, nil
	case HistoryAll, HistoryPending, HistoryVerified, HistoryManualReview, HistoryFailed, HistoryEstimates:
		return k, nil
	}
	return "", fmt.Errorf("unknown history kind %q", s)
}

// OrderStatus returns the status filter for order kinds. ok is false for
// ALL and ESTIMATES.
func (k HistoryKind) OrderStatus() (OrderStatus, bool) {
	switch k {
	case HistoryPending:
		return OrderStatusPending, true
	case HistoryVerified:
		return OrderStatusVerified, true
	case HistoryManualReview:
		return OrderStatusManualReview, true
	case HistoryFailed:
		return OrderStatusFailed, true
	}
	return "", false
}

type EstimateRecord struct {
	ID          string      `json:"estimateId"`
	Address     string      `json:"address"`
	Measurement Measurement `json:"measurement"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type HistoryEntry struct {
	Type      string          `json:"type"`
	Order     *Order          `json:"order,omitempty"`
	Estimate  *EstimateRecord `json:"estimate,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

const (
	HistoryEntryOrder    = "ORDER"
	HistoryEntryEstimate = "ESTIMATE"
)
