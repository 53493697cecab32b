package service

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"roofline/internal/clock"
	"roofline/internal/domain"
	apperrors "roofline/internal/errors"
	"roofline/internal/infrastructure/metrics"
	"roofline/internal/infrastructure/mysql"
)

type UsageRepository interface {
	Append(ctx context.Context, entry domain.UsageEntry) error
	Totals(ctx context.Context) ([]domain.ProviderUsage, error)
}

type CounterRepository interface {
	TryIncrement(ctx context.Context, day string, limit int, now time.Time) (bool, error)
	Count(ctx context.Context, day string) (int, error)
}

type Options struct {
	DailyLimit       int
	LiveMode         bool
	Location         *time.Location
	MaxRetryAttempts int
	TxTimeout        time.Duration
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.MaxRetryAttempts <= 0 {
		o.MaxRetryAttempts = 3
	}
	if o.TxTimeout <= 0 {
		o.TxTimeout = 5 * time.Second
	}
	return o
}

const recordTimeout = 3 * time.Second

type CostLedger struct {
	usage    UsageRepository
	counters CounterRepository
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *zap.Logger
	opts     Options
}

func NewCostLedger(
	usage UsageRepository,
	counters CounterRepository,
	clk clock.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts Options,
) *CostLedger {
	return &CostLedger{
		usage:    usage,
		counters: counters,
		clock:    clk,
		metrics:  m,
		logger:   logger,
		opts:     opts.withDefaults(),
	}
}

func (l *CostLedger) LiveMode() bool {
	return l.opts.LiveMode
}

func (l *CostLedger) DailyLimit() int {
	return l.opts.DailyLimit
}

// BillingDay is today's date in the billing timezone.
func (l *CostLedger) BillingDay() string {
	return l.clock.Now().In(l.opts.Location).Format(time.DateOnly)
}

// RecordCall appends a usage entry. Failures are logged and counted, never
// returned.
func (l *CostLedger) RecordCall(ctx context.Context, entry domain.UsageEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.clock.Now()
	}

	cost, _ := entry.Cost.Float64()
	l.metrics.ObserveProviderCall(string(entry.Provider), entry.Endpoint, entry.Success, cost, time.Duration(entry.ResponseTimeMs)*time.Millisecond)

	// The caller may already be gone; the audit row should still land.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := l.usage.Append(recordCtx, entry); err != nil {
		l.metrics.LedgerWriteFailed()
		l.logger.Warn("failed to record provider call",
			zap.String("provider", string(entry.Provider)),
			zap.String("endpoint", entry.Endpoint),
			zap.String("cost", entry.Cost.String()),
			zap.Error(err),
		)
	}
}

func (l *CostLedger) Summary(ctx context.Context) (*domain.CostSummary, error) {
	totals, err := l.usage.Totals(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("loading usage totals", err)
	}

	day := l.BillingDay()
	today, err := l.counters.Count(ctx, day)
	if err != nil {
		return nil, apperrors.NewInternalError("loading daily counter", err)
	}

	summary := &domain.CostSummary{
		Providers:   totals,
		BillingDay:  day,
		TodayOrders: today,
		DailyLimit:  l.opts.DailyLimit,
		LiveMode:    l.opts.LiveMode,
	}
	for _, p := range totals {
		summary.TotalCalls += p.Calls
		summary.TotalCost = summary.TotalCost.Add(p.Cost)
	}
	if summary.Providers == nil {
		summary.Providers = []domain.ProviderUsage{}
	}

	return summary, nil
}

// TryReserveDailyOrderSlot takes one Tier-2 slot for today if any is left.
// A granted slot is never given back.
func (l *CostLedger) TryReserveDailyOrderSlot(ctx context.Context) (bool, error) {
	day := l.BillingDay()

	if l.opts.DailyLimit <= 0 {
		l.metrics.SlotReservation(false)
		return false, nil
	}

	granted, err := l.reserveWithRetry(ctx, day)
	if err != nil {
		return false, err
	}

	l.metrics.SlotReservation(granted)
	if granted {
		l.logger.Info("daily order slot reserved", zap.String("day", day), zap.Int("limit", l.opts.DailyLimit))
	} else {
		l.logger.Warn("daily order limit reached", zap.String("day", day), zap.Int("limit", l.opts.DailyLimit))
	}

	return granted, nil
}

func (l *CostLedger) reserveWithRetry(ctx context.Context, day string) (bool, error) {
	// Backoff intervals: attempt 1 (0ms), attempt 2 (100ms), attempt 3 (200ms), etc.
	backoffs := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond}

	for attempt := 1; attempt <= l.opts.MaxRetryAttempts; attempt++ {
		txCtx, cancel := context.WithTimeout(ctx, l.opts.TxTimeout)
		granted, err := l.counters.TryIncrement(txCtx, day, l.opts.DailyLimit, l.clock.Now())
		cancel()

		if err == nil {
			return granted, nil
		}

		if !mysql.IsDeadlock(err) {
			return false, apperrors.NewInternalError("reserving daily order slot", err)
		}

		if attempt == l.opts.MaxRetryAttempts {
			break
		}

		l.logger.Warn("deadlock detected, retrying", zap.Int("attempt", attempt), zap.Int("maxAttempts", l.opts.MaxRetryAttempts), zap.String("day", day))
		if err := sleep(ctx, backoffWithJitter(backoffs, attempt)); err != nil {
			return false, err
		}
	}

	return false, apperrors.NewDeadlockError("max retries exceeded reserving daily order slot")
}

func backoffWithJitter(backoffs []time.Duration, attempt int) time.Duration {
	idx := attempt
	if idx >= len(backoffs) {
		idx = len(backoffs) - 1
	}
	base := backoffs[idx]
	if base <= 0 {
		return 0
	}
	// ±20% jitter
	spread := int64(base) * 2 / 5
	return base - time.Duration(spread/2) + time.Duration(rand.Int63n(spread+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
