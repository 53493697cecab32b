package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roofline/internal/cache"
	"roofline/internal/clock"
	"roofline/internal/domain"
	ledgersvc "roofline/internal/ledger/service"
	"roofline/internal/lock"
	"roofline/internal/store/memory"
)

var t0 = time.Date(2026, 10, 18, 14, 0, 0, 0, time.UTC)

type mockEstimateClient struct {
	FetchEstimateFunc func(ctx context.Context, address string) (*domain.Measurement, error)
	calls             atomic.Int32
}

func (m *mockEstimateClient) FetchEstimate(ctx context.Context, address string) (*domain.Measurement, error) {
	m.calls.Add(1)
	return m.FetchEstimateFunc(ctx, address)
}

type mockReportProvider struct {
	SubmitOrderFunc func(ctx context.Context, address string, lat, lng float64, rt domain.ReportType) (string, error)
	PollStatusFunc  func(ctx context.Context, providerOrderID string) (domain.ProviderStatus, error)
	FetchReportFunc func(ctx context.Context, providerOrderID string) (*domain.Measurement, error)

	submits atomic.Int32
	polls   atomic.Int32
	reports atomic.Int32
}

func (m *mockReportProvider) SubmitOrder(ctx context.Context, address string, lat, lng float64, rt domain.ReportType) (string, error) {
	m.submits.Add(1)
	return m.SubmitOrderFunc(ctx, address, lat, lng, rt)
}

func (m *mockReportProvider) PollStatus(ctx context.Context, providerOrderID string) (domain.ProviderStatus, error) {
	m.polls.Add(1)
	return m.PollStatusFunc(ctx, providerOrderID)
}

func (m *mockReportProvider) FetchReport(ctx context.Context, providerOrderID string) (*domain.Measurement, error) {
	m.reports.Add(1)
	return m.FetchReportFunc(ctx, providerOrderID)
}

func (m *mockReportProvider) Simulated() bool {
	return false
}

type publishedEvent struct {
	pattern string
	order   domain.Order
}

type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (m *mockPublisher) Publish(_ context.Context, pattern string, data interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, _ := data.(*domain.Order)
	ev := publishedEvent{pattern: pattern}
	if order != nil {
		ev.order = order.Clone()
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockPublisher) patterns() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.pattern
	}
	return out
}

type mockLocker struct {
	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseFunc func(ctx context.Context, key, token string) error
}

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return m.TryLockFunc(ctx, key, ttl)
}

func (m *mockLocker) Release(ctx context.Context, key, token string) error {
	if m.ReleaseFunc == nil {
		return nil
	}
	return m.ReleaseFunc(ctx, key, token)
}

type harness struct {
	clk       *clock.FakeClock
	orders    *memory.OrderStore
	estimates *memory.EstimateStore
	counter   *memory.DailyCounter
	ledger    *ledgersvc.CostLedger
	solar     *mockEstimateClient
	provider  *mockReportProvider
	cache     *cache.MemoryCache
	publisher *mockPublisher

	orchestrator *OrderOrchestrator
	poller       *StatusPoller
}

func sampleEstimate(address string) *domain.Measurement {
	return &domain.Measurement{
		Tier:             domain.TierEstimate,
		Source:           domain.SourceGoogleSolar,
		FormattedAddress: address + ", USA",
		Latitude:         39.78,
		Longitude:        -89.65,
		TotalAreaSqFt:    2152.8,
		PredominantPitch: "6/12",
		SquaresNeeded:    21.5,
		Confidence:       0.85,
	}
}

func sampleReport() *domain.Measurement {
	return &domain.Measurement{
		Tier:             domain.TierVerified,
		Source:           domain.SourceEagleView,
		TotalAreaSqFt:    2500,
		PredominantPitch: "6/12",
		SquaresNeeded:    25,
		Confidence:       0.98,
		RidgeLengthFt:    150,
	}
}

func newHarness(t *testing.T, dailyLimit int) *harness {
	t.Helper()

	h := &harness{
		clk:       clock.NewFakeClock(t0),
		orders:    memory.NewOrderStore(),
		estimates: memory.NewEstimateStore(),
		counter:   memory.NewDailyCounter(),
		publisher: &mockPublisher{},
	}

	h.ledger = ledgersvc.NewCostLedger(memory.NewUsageLog(), h.counter, h.clk, nil, zap.NewNop(), ledgersvc.Options{
		DailyLimit: dailyLimit,
	})
	h.cache = cache.NewMemoryCache(time.Hour, h.clk)

	h.solar = &mockEstimateClient{
		FetchEstimateFunc: func(ctx context.Context, address string) (*domain.Measurement, error) {
			return sampleEstimate(address), nil
		},
	}

	var seq atomic.Int32
	h.provider = &mockReportProvider{
		SubmitOrderFunc: func(ctx context.Context, address string, lat, lng float64, rt domain.ReportType) (string, error) {
			return fmt.Sprintf("ev-%d", seq.Add(1)), nil
		},
		PollStatusFunc: func(ctx context.Context, providerOrderID string) (domain.ProviderStatus, error) {
			return domain.ParseProviderStatus("IN_PROGRESS", ""), nil
		},
		FetchReportFunc: func(ctx context.Context, providerOrderID string) (*domain.Measurement, error) {
			return sampleReport(), nil
		},
	}

	h.orchestrator = NewOrderOrchestrator(
		h.orders, h.estimates, h.ledger, h.solar, h.provider, h.cache, h.publisher,
		nil, h.clk, nil, zap.NewNop(), OrchestratorOptions{},
	)
	h.poller = h.newPoller(nil, PollerOptions{Timeout: 2 * time.Second, CheckWaitTimeout: time.Second})

	return h
}

func (h *harness) newPoller(locker *mockLocker, opts PollerOptions) *StatusPoller {
	var l lock.Locker
	if locker != nil {
		l = locker
	}
	return NewStatusPoller(h.orders, h.provider, h.publisher, l, h.clk, nil, zap.NewNop(), opts)
}

// seedPending stores a PENDING order directly.
func (h *harness) seedPending(t *testing.T, id, address string, createdAt time.Time) *domain.Order {
	t.Helper()
	order := &domain.Order{
		ID:              id,
		ProviderOrderID: domain.StringPtr("ev-" + id),
		Address:         address,
		ReportType:      domain.ReportTypeBasic,
		Status:          domain.OrderStatusPending,
		Measurement:     sampleEstimate(address),
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	require.NoError(t, h.orders.Create(context.Background(), order))
	return order
}
