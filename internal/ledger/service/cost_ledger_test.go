package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roofline/internal/clock"
	"roofline/internal/domain"
	apperrors "roofline/internal/errors"
	"roofline/internal/store/memory"
)

type mockUsageRepository struct {
	AppendFunc func(ctx context.Context, entry domain.UsageEntry) error
	TotalsFunc func(ctx context.Context) ([]domain.ProviderUsage, error)
}

func (m *mockUsageRepository) Append(ctx context.Context, entry domain.UsageEntry) error {
	return m.AppendFunc(ctx, entry)
}

func (m *mockUsageRepository) Totals(ctx context.Context) ([]domain.ProviderUsage, error) {
	return m.TotalsFunc(ctx)
}

type mockCounterRepository struct {
	TryIncrementFunc func(ctx context.Context, day string, limit int, now time.Time) (bool, error)
	CountFunc        func(ctx context.Context, day string) (int, error)
}

func (m *mockCounterRepository) TryIncrement(ctx context.Context, day string, limit int, now time.Time) (bool, error) {
	return m.TryIncrementFunc(ctx, day, limit, now)
}

func (m *mockCounterRepository) Count(ctx context.Context, day string) (int, error) {
	return m.CountFunc(ctx, day)
}

var testNow = time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC)

func newTestLedger(usage UsageRepository, counters CounterRepository, opts Options) *CostLedger {
	return NewCostLedger(usage, counters, clock.NewFakeClock(testNow), nil, zap.NewNop(), opts)
}

func TestRecordCall_SwallowsRepositoryError(t *testing.T) {
	var calls int
	usage := &mockUsageRepository{
		AppendFunc: func(ctx context.Context, entry domain.UsageEntry) error {
			calls++
			return errors.New("disk full")
		},
	}
	l := newTestLedger(usage, &mockCounterRepository{}, Options{DailyLimit: 5})

	assert.NotPanics(t, func() {
		l.RecordCall(context.Background(), domain.UsageEntry{Provider: domain.ProviderEagleView, Endpoint: "submit_order", Cost: domain.CostBasicReport})
	})
	assert.Equal(t, 1, calls)
}

func TestRecordCall_SurvivesCanceledCaller(t *testing.T) {
	log := memory.NewUsageLog()
	l := newTestLedger(log, memory.NewDailyCounter(), Options{DailyLimit: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	usage := &mockUsageRepository{
		AppendFunc: func(ctx context.Context, entry domain.UsageEntry) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return log.Append(ctx, entry)
		},
		TotalsFunc: log.Totals,
	}
	l.usage = usage

	l.RecordCall(ctx, domain.UsageEntry{Provider: domain.ProviderGoogleSolar, Endpoint: "geocode", Cost: domain.CostGeocode, Success: true})

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, testNow, entries[0].CreatedAt)
}

func TestSummary_TotalsMatchEntriesAndAreStable(t *testing.T) {
	ctx := context.Background()
	log := memory.NewUsageLog()
	counter := memory.NewDailyCounter()
	l := newTestLedger(log, counter, Options{DailyLimit: 5, LiveMode: true})

	l.RecordCall(ctx, domain.UsageEntry{Provider: domain.ProviderGoogleSolar, Endpoint: "geocode", Cost: domain.CostGeocode, Success: true})
	l.RecordCall(ctx, domain.UsageEntry{Provider: domain.ProviderGoogleSolar, Endpoint: "building_insights", Cost: domain.CostBuildingInsights, Success: true})
	l.RecordCall(ctx, domain.UsageEntry{Provider: domain.ProviderEagleView, Endpoint: "submit_order", Cost: domain.CostPremiumReport, Success: true})
	l.RecordCall(ctx, domain.UsageEntry{Provider: domain.ProviderEagleView, Endpoint: "order_status", Cost: decimal.Zero, Success: false})

	granted, err := l.TryReserveDailyOrderSlot(ctx)
	require.NoError(t, err)
	require.True(t, granted)

	first, err := l.Summary(ctx)
	require.NoError(t, err)
	second, err := l.Summary(ctx)
	require.NoError(t, err)

	expected := decimal.Zero
	for _, e := range log.Entries() {
		expected = expected.Add(e.Cost)
	}

	assert.True(t, first.TotalCost.Equal(expected), "total %s, expected %s", first.TotalCost, expected)
	assert.Equal(t, 4, first.TotalCalls)
	assert.Equal(t, 1, first.TodayOrders)
	assert.Equal(t, 5, first.DailyLimit)
	assert.True(t, first.LiveMode)
	assert.Equal(t, first, second)
}

func TestSummary_EmptyLedger(t *testing.T) {
	l := newTestLedger(memory.NewUsageLog(), memory.NewDailyCounter(), Options{DailyLimit: 5})

	summary, err := l.Summary(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Providers)
	assert.NotNil(t, summary.Providers)
	assert.True(t, summary.TotalCost.IsZero())
}

func TestTryReserveDailyOrderSlot_NoOvershoot(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(memory.NewUsageLog(), memory.NewDailyCounter(), Options{DailyLimit: 1})

	var granted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := l.TryReserveDailyOrderSlot(ctx)
			if err == nil && ok {
				granted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load())
}

func TestTryReserveDailyOrderSlot_ZeroLimitNeverTouchesStore(t *testing.T) {
	counters := &mockCounterRepository{
		TryIncrementFunc: func(ctx context.Context, day string, limit int, now time.Time) (bool, error) {
			t.Fatal("counter must not be touched")
			return false, nil
		},
	}
	l := newTestLedger(&mockUsageRepository{}, counters, Options{DailyLimit: 0})

	ok, err := l.TryReserveDailyOrderSlot(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTryReserveDailyOrderSlot_UsesBillingTimezone(t *testing.T) {
	denver, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)

	var gotDay string
	counters := &mockCounterRepository{
		TryIncrementFunc: func(ctx context.Context, day string, limit int, now time.Time) (bool, error) {
			gotDay = day
			return true, nil
		},
	}
	l := newTestLedger(&mockUsageRepository{}, counters, Options{DailyLimit: 5, Location: denver})

	ok, err := l.TryReserveDailyOrderSlot(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2026-10-17", gotDay)
}

func TestTryReserveDailyOrderSlot_RetriesDeadlock(t *testing.T) {
	attempts := 0
	counters := &mockCounterRepository{
		TryIncrementFunc: func(ctx context.Context, day string, limit int, now time.Time) (bool, error) {
			attempts++
			if attempts < 3 {
				return false, &mysql.MySQLError{Number: 1213}
			}
			return true, nil
		},
	}
	l := newTestLedger(&mockUsageRepository{}, counters, Options{DailyLimit: 5, MaxRetryAttempts: 3})

	ok, err := l.TryReserveDailyOrderSlot(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, attempts)
}

func TestTryReserveDailyOrderSlot_DeadlockExhausted(t *testing.T) {
	attempts := 0
	counters := &mockCounterRepository{
		TryIncrementFunc: func(ctx context.Context, day string, limit int, now time.Time) (bool, error) {
			attempts++
			return false, &mysql.MySQLError{Number: 1205}
		},
	}
	l := newTestLedger(&mockUsageRepository{}, counters, Options{DailyLimit: 5, MaxRetryAttempts: 2})

	_, err := l.TryReserveDailyOrderSlot(context.Background())
	_, ok := apperrors.IsDeadlockError(err)
	assert.True(t, ok)
	assert.Equal(t, 2, attempts)
}

func TestTryReserveDailyOrderSlot_OtherErrorsAreNotRetried(t *testing.T) {
	attempts := 0
	counters := &mockCounterRepository{
		TryIncrementFunc: func(ctx context.Context, day string, limit int, now time.Time) (bool, error) {
			attempts++
			return false, errors.New("connection reset")
		},
	}
	l := newTestLedger(&mockUsageRepository{}, counters, Options{DailyLimit: 5})

	_, err := l.TryReserveDailyOrderSlot(context.Background())
	_, ok := apperrors.IsInternalError(err)
	assert.True(t, ok)
	assert.Equal(t, 1, attempts)
}

func TestBackoffWithJitter(t *testing.T) {
	backoffs := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond}

	for i := 0; i < 20; i++ {
		d := backoffWithJitter(backoffs, 1)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
	assert.GreaterOrEqual(t, backoffWithJitter(backoffs, 7), 160*time.Millisecond)
}
