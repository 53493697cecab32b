package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"roofline/internal/clock"
	"roofline/internal/domain"
	"roofline/internal/infrastructure/metrics"
)

type SweeperConfig struct {
	Interval     time.Duration
	BatchSize    int
	Concurrency  int
	OrderTimeout time.Duration
}

func (c SweeperConfig) withDefaults() SweeperConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.OrderTimeout <= 0 {
		c.OrderTimeout = 20 * time.Second
	}
	return c
}

type pendingLister interface {
	ListPending(ctx context.Context, after *domain.OrderCursor, limit int) ([]domain.Order, error)
}

type orderPoller interface {
	PollOrder(ctx context.Context, id string) (*domain.Order, error)
}

// SweepResult counts what one pass did with each pending order.
type SweepResult struct {
	Polled  int
	Changed int
	Skipped int
	Failed  int
}

// Sweeper periodically polls every PENDING order. A failing order is
// logged and counted; it never stops the pass or the loop.
type Sweeper struct {
	orders  pendingLister
	poller  orderPoller
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger
	cfg     SweeperConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(orders pendingLister, poller orderPoller, clk clock.Clock, m *metrics.Metrics, logger *zap.Logger, cfg SweeperConfig) *Sweeper {
	return &Sweeper{
		orders:  orders,
		poller:  poller,
		clock:   clk,
		metrics: m,
		logger:  logger,
		cfg:     cfg.withDefaults(),
	}
}

var ErrSweeperRunning = errors.New("sweeper already running")

// Start launches the sweep loop. The first pass runs immediately.
func (w *Sweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrSweeperRunning
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(loopCtx, w.done)

	w.logger.Info("status sweeper started",
		zap.Duration("interval", w.cfg.Interval),
		zap.Int("batchSize", w.cfg.BatchSize),
		zap.Int("concurrency", w.cfg.Concurrency),
	)
	return nil
}

// Stop cancels the loop and waits for the running pass to finish or for
// ctx to expire.
func (w *Sweeper) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		w.logger.Info("status sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		w.Sweep(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep makes one pass over PENDING orders, oldest first, in keyset pages.
func (w *Sweeper) Sweep(ctx context.Context) SweepResult {
	start := w.clock.Now()
	var (
		mu     sync.Mutex
		result SweepResult
		cursor *domain.OrderCursor
	)

	for ctx.Err() == nil {
		batch, err := w.orders.ListPending(ctx, cursor, w.cfg.BatchSize)
		if err != nil {
			w.logger.Error("failed to list pending orders", zap.Error(err))
			break
		}
		if len(batch) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(w.cfg.Concurrency)

		for _, order := range batch {
			g.Go(func() error {
				outcome := w.sweepOne(ctx, order)
				w.metrics.SweepOrder(outcome)

				mu.Lock()
				defer mu.Unlock()
				switch outcome {
				case "changed":
					result.Polled++
					result.Changed++
				case "unchanged":
					result.Polled++
				case "busy":
					result.Skipped++
				default:
					result.Failed++
				}
				return nil
			})
		}
		g.Wait()

		c := batch[len(batch)-1].Cursor()
		cursor = &c
		if len(batch) < w.cfg.BatchSize {
			break
		}
	}

	elapsed := w.clock.Now().Sub(start)
	w.metrics.ObserveSweep(elapsed)
	w.logger.Info("sweep finished",
		zap.Int("polled", result.Polled),
		zap.Int("changed", result.Changed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", elapsed),
	)
	return result
}

func (w *Sweeper) sweepOne(ctx context.Context, order domain.Order) string {
	orderCtx, cancel := context.WithTimeout(ctx, w.cfg.OrderTimeout)
	defer cancel()

	updated, err := w.poller.PollOrder(orderCtx, order.ID)
	if err != nil {
		if isPollInProgress(err) {
			return "busy"
		}
		w.logger.Warn("sweep poll failed", zap.String("orderId", order.ID), zap.Error(err))
		return "error"
	}
	if updated.Status != order.Status {
		return "changed"
	}
	return "unchanged"
}
