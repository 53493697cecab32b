package service

import (
	"context"
	"time"

	"roofline/internal/domain"
)

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	FindPending(ctx context.Context, address string, rt domain.ReportType) (*domain.Order, error)
	List(ctx context.Context, status *domain.OrderStatus, limit int) ([]domain.Order, error)
	ListPending(ctx context.Context, after *domain.OrderCursor, limit int) ([]domain.Order, error)
	Transition(ctx context.Context, update domain.StatusUpdate) (bool, error)
	MarkChecked(ctx context.Context, id string, at time.Time) (bool, error)
}

type EstimateRepository interface {
	Save(ctx context.Context, rec domain.EstimateRecord) error
	List(ctx context.Context, limit int) ([]domain.EstimateRecord, error)
}

type SlotReserver interface {
	TryReserveDailyOrderSlot(ctx context.Context) (bool, error)
	DailyLimit() int
	BillingDay() string
}

type EstimateClient interface {
	FetchEstimate(ctx context.Context, address string) (*domain.Measurement, error)
}

// ReportProvider is the Tier-2 API, live or simulated.
type ReportProvider interface {
	SubmitOrder(ctx context.Context, address string, lat, lng float64, rt domain.ReportType) (string, error)
	PollStatus(ctx context.Context, providerOrderID string) (domain.ProviderStatus, error)
	FetchReport(ctx context.Context, providerOrderID string) (*domain.Measurement, error)
	Simulated() bool
}

type ResultCache interface {
	Get(ctx context.Context, address string, tier domain.Tier) (*domain.Measurement, bool)
	Put(ctx context.Context, address string, tier domain.Tier, m domain.Measurement)
}

type EventPublisher interface {
	Publish(ctx context.Context, pattern string, data interface{}) error
}
