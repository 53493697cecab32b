package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"roofline/internal/clock"
	"roofline/internal/domain"
	apperrors "roofline/internal/errors"
	"roofline/internal/infrastructure/metrics"
	"roofline/internal/infrastructure/rabbitmq"
	"roofline/internal/lock"
)

type PollerOptions struct {
	Timeout           time.Duration
	CheckWaitTimeout  time.Duration
	MinRecheck        time.Duration
	OrderMaxAge       time.Duration
	LockTTL           time.Duration
	LockRetryInterval time.Duration
}

func (o PollerOptions) withDefaults() PollerOptions {
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.CheckWaitTimeout <= 0 {
		o.CheckWaitTimeout = 10 * time.Second
	}
	if o.OrderMaxAge <= 0 {
		o.OrderMaxAge = 72 * time.Hour
	}
	if o.LockTTL <= 0 {
		o.LockTTL = o.Timeout + o.CheckWaitTimeout
	}
	if o.LockRetryInterval <= 0 {
		o.LockRetryInterval = 50 * time.Millisecond
	}
	return o
}

// StatusPoller moves PENDING orders forward from provider status.
//
// One order is polled by at most one goroutine at a time. Callers in this
// process share the in-flight poll and its result; other instances are
// kept out by the distributed locker when one is configured. Inside the
// exclusive section the order is re-read, so a poll that lost the race to
// a terminal transition or to a very recent check never reaches the
// provider.
type StatusPoller struct {
	orders    OrderRepository
	provider  ReportProvider
	publisher EventPublisher
	locker    lock.Locker
	flight    singleflight.Group
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *zap.Logger
	opts      PollerOptions
}

func NewStatusPoller(
	orders OrderRepository,
	provider ReportProvider,
	publisher EventPublisher,
	locker lock.Locker,
	clk clock.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts PollerOptions,
) *StatusPoller {
	return &StatusPoller{
		orders:    orders,
		provider:  provider,
		publisher: publisher,
		locker:    locker,
		clock:     clk,
		metrics:   m,
		logger:    logger,
		opts:      opts.withDefaults(),
	}
}

// CheckNow polls one order on demand and returns it as it stands afterwards.
// A poll already running for the order is joined rather than repeated. If no
// result arrives within the check wait timeout the caller gets a
// PollInProgressError; the shared poll keeps going.
func (p *StatusPoller) CheckNow(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, apperrors.NewValidationError("orderId is required")
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.opts.CheckWaitTimeout)
	defer cancel()

	ch := p.flight.DoChan(id, func() (interface{}, error) {
		return p.pollExclusive(ctx, id, true)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			p.metrics.CheckNow(outcomeFor(res.Err))
			return nil, res.Err
		}
		p.metrics.CheckNow("ok")
		out := res.Val.(*domain.Order).Clone()
		return &out, nil
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.metrics.CheckNow("busy")
		return nil, apperrors.NewPollInProgressError(id)
	}
}

// PollOrder is the sweep path: it joins an in-flight poll like CheckNow but
// skips the order at once when another instance holds it. It stops waiting
// when ctx ends, even if the joined poll is still running.
func (p *StatusPoller) PollOrder(ctx context.Context, id string) (*domain.Order, error) {
	ch := p.flight.DoChan(id, func() (interface{}, error) {
		return p.pollExclusive(ctx, id, false)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		out := res.Val.(*domain.Order).Clone()
		return &out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *StatusPoller) pollExclusive(parent context.Context, id string, wait bool) (*domain.Order, error) {
	// Shared by every joined caller, so no single caller may cancel it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.opts.LockTTL)
	defer cancel()

	if p.locker != nil {
		key := "poll:" + id

		var (
			token string
			ok    bool
			err   error
		)
		if wait {
			lockCtx, lockCancel := context.WithTimeout(ctx, p.opts.CheckWaitTimeout)
			token, ok, err = lock.Acquire(lockCtx, p.locker, key, p.opts.LockTTL, p.opts.LockRetryInterval)
			lockCancel()
		} else {
			token, ok, err = p.locker.TryLock(ctx, key, p.opts.LockTTL)
		}
		if err != nil {
			return nil, apperrors.NewInternalError("acquiring poll lock", err)
		}
		if !ok {
			return nil, apperrors.NewPollInProgressError(id)
		}
		defer func() {
			if err := p.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				p.logger.Warn("failed to release poll lock", zap.String("orderId", id), zap.Error(err))
			}
		}()
	}

	pollCtx, pollCancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer pollCancel()

	return p.poll(pollCtx, id)
}

func (p *StatusPoller) poll(ctx context.Context, id string) (*domain.Order, error) {
	order, err := p.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return order, nil
	}

	now := p.clock.Now()
	logger := p.logger.With(zap.String("orderId", order.ID))
	if order.ProviderOrderID != nil {
		logger = logger.With(zap.String("providerOrderId", *order.ProviderOrderID))
	}

	if age := now.Sub(order.CreatedAt); age >= p.opts.OrderMaxAge {
		logger.Warn("pending order timed out", zap.Duration("age", age))
		return p.transition(ctx, order, domain.StatusUpdate{
			OrderID: order.ID,
			Status:  domain.OrderStatusFailed,
			Message: domain.StringPtr(fmt.Sprintf("order timed out after %s", formatAge(p.opts.OrderMaxAge))),
			At:      now,
		}, logger)
	}

	if order.LastCheckedAt != nil && now.Sub(*order.LastCheckedAt) < p.opts.MinRecheck {
		return order, nil
	}

	if order.ProviderOrderID == nil {
		return p.transition(ctx, order, domain.StatusUpdate{
			OrderID: order.ID,
			Status:  domain.OrderStatusManualReview,
			Message: domain.StringPtr("pending order has no provider order id"),
			At:      now,
		}, logger)
	}

	status, err := p.provider.PollStatus(ctx, *order.ProviderOrderID)
	if err != nil {
		logger.Warn("status poll failed", zap.Error(err))
		return nil, err
	}

	update := domain.StatusUpdate{
		OrderID: order.ID,
		Status:  status.TargetStatus(),
		At:      p.clock.Now(),
	}

	switch status.Kind {
	case domain.ProviderStatusInProgress:
		if _, err := p.orders.MarkChecked(ctx, order.ID, update.At); err != nil {
			return nil, apperrors.NewInternalError("marking order checked", err)
		}
		logger.Debug("order still in progress", zap.String("providerStatus", status.Raw))
		return p.orders.FindByID(ctx, order.ID)

	case domain.ProviderStatusCompleted:
		report, err := p.provider.FetchReport(ctx, *order.ProviderOrderID)
		if err != nil {
			logger.Warn("report fetch failed, order stays pending", zap.Error(err))
			return nil, err
		}
		update.Measurement = report

	case domain.ProviderStatusFailed:
		msg := "provider reported failure"
		if status.Message != "" {
			msg += ": " + status.Message
		}
		update.Message = domain.StringPtr(msg)

	case domain.ProviderStatusUnknown:
		update.Message = domain.StringPtr(fmt.Sprintf("unrecognized provider status %q", status.Raw))
	}

	return p.transition(ctx, order, update, logger)
}

// transition applies update and returns the stored order. Losing the
// compare-and-set is not an error: the winner's state is returned.
func (p *StatusPoller) transition(ctx context.Context, order *domain.Order, update domain.StatusUpdate, logger *zap.Logger) (*domain.Order, error) {
	applied, err := p.orders.Transition(ctx, update)
	if err != nil {
		return nil, apperrors.NewInternalError("updating order status", err)
	}

	current, err := p.orders.FindByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	if !applied {
		logger.Info("order already moved on", zap.String("status", string(current.Status)))
		return current, nil
	}

	p.metrics.Transition(string(order.Status), string(update.Status))
	logger.Info("order status changed",
		zap.String("from", string(order.Status)),
		zap.String("to", string(update.Status)),
	)

	if p.publisher != nil {
		if err := p.publisher.Publish(context.WithoutCancel(ctx), rabbitmq.PatternOrderStatusChanged, current); err != nil {
			logger.Warn("failed to publish order event", zap.Error(err))
		}
	}

	return current, nil
}

func formatAge(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return d.String()
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isPollInProgress(err):
		return "busy"
	case isNotFound(err):
		return "not_found"
	case isProviderUnavailable(err):
		return "provider_unavailable"
	}
	return "error"
}

func isPollInProgress(err error) bool {
	_, ok := apperrors.IsPollInProgressError(err)
	return ok
}

func isNotFound(err error) bool {
	_, ok := apperrors.IsNotFoundError(err)
	return ok
}

func isProviderUnavailable(err error) bool {
	_, ok := apperrors.IsProviderUnavailableError(err)
	return ok
}
