package domain

import (
	"fmt"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "PENDING"
	OrderStatusVerified     OrderStatus = "VERIFIED"
	OrderStatusManualReview OrderStatus = "MANUAL_REVIEW"
	OrderStatusFailed       OrderStatus = "FAILED"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case OrderStatusPending:
		return OrderStatusPending, nil
	case OrderStatusVerified:
		return OrderStatusVerified, nil
	case OrderStatusManualReview:
		return OrderStatusManualReview, nil
	case OrderStatusFailed:
		return OrderStatusFailed, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// IsTerminal reports whether no further transition may leave s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusPending:
		return false
	case OrderStatusVerified, OrderStatusManualReview, OrderStatusFailed:
		return true
	}
	return true
}

// CanTransitionTo allows PENDING to move anywhere, itself included.
// Terminal states accept nothing.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s != OrderStatusPending {
		return false
	}
	switch next {
	case OrderStatusPending, OrderStatusVerified, OrderStatusManualReview, OrderStatusFailed:
		return true
	}
	return false
}

type ReportType string

const (
	ReportTypeBasic   ReportType = "BASIC"
	ReportTypePremium ReportType = "PREMIUM"
)

func ParseReportType(s string) (ReportType, error) {
	switch ReportType(strings.ToUpper(strings.TrimSpace(s))) {
	case ReportTypeBasic:
		return ReportTypeBasic, nil
	case ReportTypePremium:
		return ReportTypePremium, nil
	}
	return "", fmt.Errorf("unknown report type %q", s)
}

type Order struct {
	ID              string       `json:"orderId"`
	ProviderOrderID *string      `json:"providerOrderId,omitempty"`
	Address         string       `json:"address"`
	ReportType      ReportType   `json:"reportType"`
	Status          OrderStatus  `json:"status"`
	Measurement     *Measurement `json:"measurement,omitempty"`
	Message         *string      `json:"message,omitempty"`
	Simulated       bool         `json:"simulated"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
	LastCheckedAt   *time.Time   `json:"lastCheckedAt,omitempty"`
}

// StatusUpdate describes a compare-and-set transition out of PENDING.
type StatusUpdate struct {
	OrderID     string
	Status      OrderStatus
	Measurement *Measurement
	Message     *string
	At          time.Time
}

func StringPtr(s string) *string {
	return &s
}

// OrderCursor is a keyset position in (created_at, id) order.
type OrderCursor struct {
	CreatedAt time.Time
	ID        string
}

func (o Order) Cursor() OrderCursor {
	return OrderCursor{CreatedAt: o.CreatedAt, ID: o.ID}
}

func (c OrderCursor) Before(o Order) bool {
	if c.CreatedAt.Equal(o.CreatedAt) {
		return c.ID < o.ID
	}
	return c.CreatedAt.Before(o.CreatedAt)
}

// Clone returns a deep copy so callers may not alias stored state.
func (o Order) Clone() Order {
	out := o
	if o.ProviderOrderID != nil {
		out.ProviderOrderID = StringPtr(*o.ProviderOrderID)
	}
	if o.Message != nil {
		out.Message = StringPtr(*o.Message)
	}
	if o.LastCheckedAt != nil {
		t := *o.LastCheckedAt
		out.LastCheckedAt = &t
	}
	if o.Measurement != nil {
		m := o.Measurement.Clone()
		out.Measurement = &m
	}
	return out
}
