package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"roofline/internal/clock"
	"roofline/internal/domain"
	apperrors "roofline/internal/errors"
	"roofline/internal/infrastructure/metrics"
	"roofline/internal/infrastructure/rabbitmq"
	"roofline/internal/lock"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

type OrchestratorOptions struct {
	SubmitLockTTL time.Duration
	// SubmitLockWait bounds how long CreateOrder waits for another
	// instance's submission before answering with a conflict.
	SubmitLockWait    time.Duration
	LockRetryInterval time.Duration
	EstimateTimeout   time.Duration
}

func (o OrchestratorOptions) withDefaults() OrchestratorOptions {
	if o.SubmitLockTTL <= 0 {
		o.SubmitLockTTL = 2 * time.Minute
	}
	if o.SubmitLockWait <= 0 {
		o.SubmitLockWait = 5 * time.Second
	}
	if o.EstimateTimeout <= 0 {
		o.EstimateTimeout = 30 * time.Second
	}
	if o.LockRetryInterval <= 0 {
		o.LockRetryInterval = 50 * time.Millisecond
	}
	return o
}

// OrderOrchestrator serves Tier-1 estimates and places Tier-2 orders.
//
// Order creation is serialized per (address, report type): in-process with
// a keyed mutex, and across instances with the distributed locker when one
// is configured. Inside that section an existing PENDING order wins, then
// the daily slot is reserved, then the provider is called. A slot is never
// given back, even when the submission fails.
type OrderOrchestrator struct {
	orders      OrderRepository
	estimates   EstimateRepository
	ledger      SlotReserver
	solar       EstimateClient
	provider    ReportProvider
	cache       ResultCache
	publisher   EventPublisher
	submitLocks *lock.KeyedMutex
	locker      lock.Locker
	estimateSF  singleflight.Group
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      *zap.Logger
	opts        OrchestratorOptions
}

func NewOrderOrchestrator(
	orders OrderRepository,
	estimates EstimateRepository,
	ledger SlotReserver,
	solar EstimateClient,
	provider ReportProvider,
	cache ResultCache,
	publisher EventPublisher,
	locker lock.Locker,
	clk clock.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts OrchestratorOptions,
) *OrderOrchestrator {
	return &OrderOrchestrator{
		orders:      orders,
		estimates:   estimates,
		ledger:      ledger,
		solar:       solar,
		provider:    provider,
		cache:       cache,
		publisher:   publisher,
		submitLocks: lock.NewKeyedMutex(),
		locker:      locker,
		clock:       clk,
		metrics:     m,
		logger:      logger,
		opts:        opts.withDefaults(),
	}
}

func normalizedAddress(address string) (string, error) {
	normalized := domain.NormalizeAddress(address)
	if normalized == "" {
		return "", apperrors.NewValidationError("address is required",
			apperrors.ValidationDetail{Field: "address", Message: "must not be empty"})
	}
	if domain.AddressTooLong(address, normalized) {
		return "", apperrors.NewValidationError("address is too long",
			apperrors.ValidationDetail{
				Field:   "address",
				Message: fmt.Sprintf("must be at most %d characters", domain.MaxAddressLength),
			})
	}
	return normalized, nil
}

// CreateEstimate returns a Tier-1 measurement, from cache when fresh.
func (s *OrderOrchestrator) CreateEstimate(ctx context.Context, address string) (*domain.Measurement, error) {
	normalized, err := normalizedAddress(address)
	if err != nil {
		return nil, err
	}

	if m, ok := s.cache.Get(ctx, normalized, domain.TierEstimate); ok {
		s.metrics.CacheLookup(int(domain.TierEstimate), true)
		m.Cached = true
		return m, nil
	}
	s.metrics.CacheLookup(int(domain.TierEstimate), false)

	return s.fetchEstimate(ctx, address, normalized)
}

// fetchEstimate coalesces concurrent misses for one address into a single
// billed lookup. A caller that goes away stops waiting; the lookup itself
// finishes for whoever else joined it.
func (s *OrderOrchestrator) fetchEstimate(ctx context.Context, address, normalized string) (*domain.Measurement, error) {
	ch := s.estimateSF.DoChan(normalized, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.EstimateTimeout)
		defer cancel()

		m, err := s.solar.FetchEstimate(fetchCtx, strings.TrimSpace(address))
		if err != nil {
			return nil, err
		}
		m.Cached = false

		s.cache.Put(fetchCtx, normalized, domain.TierEstimate, *m)

		rec := domain.EstimateRecord{
			ID:          uuid.New().String(),
			Address:     normalized,
			Measurement: m.Clone(),
			CreatedAt:   s.clock.Now(),
		}
		if err := s.estimates.Save(fetchCtx, rec); err != nil {
			s.logger.Warn("failed to save estimate record", zap.String("address", normalized), zap.Error(err))
		}

		return m, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		out := res.Val.(*domain.Measurement).Clone()
		return &out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *OrderOrchestrator) CreateOrder(ctx context.Context, address string, rt domain.ReportType) (*domain.Order, error) {
	normalized, err := normalizedAddress(address)
	if err != nil {
		return nil, err
	}
	rt, err = domain.ParseReportType(string(rt))
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(),
			apperrors.ValidationDetail{Field: "reportType", Message: "must be BASIC or PREMIUM"})
	}
	key := string(rt) + "|" + normalized

	// Bloque 1: exclusive section for this address and report type
	unlock, err := s.submitLocks.Lock(ctx, key)
	if err != nil {
		return nil, apperrors.NewInternalError("waiting for submission lock", err)
	}
	defer unlock()

	if s.locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, s.opts.SubmitLockWait)
		token, ok, err := lock.Acquire(lockCtx, s.locker, "submit:"+key, s.opts.SubmitLockTTL, s.opts.LockRetryInterval)
		cancel()
		if err != nil {
			return nil, apperrors.NewInternalError("acquiring submission lock", err)
		}
		if !ok {
			return nil, apperrors.NewConflictError("another submission for this address is in progress")
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), "submit:"+key, token); err != nil {
				s.logger.Warn("failed to release submission lock", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	// Bloque 2: an order already in flight is the answer
	existing, err := s.orders.FindPending(ctx, normalized, rt)
	if err == nil {
		s.logger.Info("returning existing pending order",
			zap.String("orderId", existing.ID),
			zap.String("reportType", string(rt)),
		)
		return existing, nil
	}
	if _, ok := apperrors.IsNotFoundError(err); !ok {
		return nil, apperrors.NewInternalError("looking up pending order", err)
	}

	// Bloque 3: reserve a daily slot before any billed call
	granted, err := s.ledger.TryReserveDailyOrderSlot(ctx)
	if err != nil {
		return nil, err
	}
	if !granted {
		s.logger.Warn("daily order limit reached",
			zap.Int("limit", s.ledger.DailyLimit()),
			zap.String("day", s.ledger.BillingDay()),
		)
		return nil, apperrors.NewDailyLimitExceededError(s.ledger.DailyLimit(), s.ledger.BillingDay())
	}

	// Bloque 4: submit and persist
	provisional := s.provisionalEstimate(ctx, address, normalized)

	submitAddress := strings.TrimSpace(address)
	var lat, lng float64
	if provisional != nil {
		lat, lng = provisional.Latitude, provisional.Longitude
		if provisional.FormattedAddress != "" {
			submitAddress = provisional.FormattedAddress
		}
	}

	providerOrderID, submitErr := s.provider.SubmitOrder(ctx, submitAddress, lat, lng, rt)

	// A paid submission must be recorded even if the caller went away.
	persistCtx := context.WithoutCancel(ctx)
	now := s.clock.Now()
	order := &domain.Order{
		ID:          uuid.New().String(),
		Address:     normalized,
		ReportType:  rt,
		Measurement: provisional,
		Simulated:   s.provider.Simulated(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if submitErr != nil {
		order.Status = domain.OrderStatusFailed
		order.Message = domain.StringPtr("submission failed: " + submitErr.Error())
		if err := s.orders.Create(persistCtx, order); err != nil {
			s.logger.Error("failed to persist failed order", zap.String("orderId", order.ID), zap.Error(err))
		} else {
			s.metrics.Transition("NEW", string(order.Status))
		}
		s.logger.Warn("order submission failed",
			zap.String("orderId", order.ID),
			zap.String("reportType", string(rt)),
			zap.Error(submitErr),
		)
		if _, ok := apperrors.IsProviderUnavailableError(submitErr); ok {
			return nil, submitErr
		}
		return nil, apperrors.NewProviderUnavailableError(string(domain.ProviderEagleView), "submit_order", submitErr)
	}

	order.Status = domain.OrderStatusPending
	order.ProviderOrderID = domain.StringPtr(providerOrderID)

	if err := s.orders.Create(persistCtx, order); err != nil {
		if _, ok := apperrors.IsConflictError(err); ok {
			// Another instance won without holding the distributed lock.
			if winner, ferr := s.orders.FindPending(persistCtx, normalized, rt); ferr == nil {
				s.recordDuplicate(persistCtx, order, winner)
				return winner, nil
			}
		}
		return nil, apperrors.NewInternalError("persisting order", err)
	}

	s.metrics.Transition("NEW", string(order.Status))
	s.publish(persistCtx, rabbitmq.PatternOrderCreated, order)

	s.logger.Info("order submitted",
		zap.String("orderId", order.ID),
		zap.String("providerOrderId", providerOrderID),
		zap.String("reportType", string(rt)),
		zap.Bool("simulated", order.Simulated),
	)

	return order, nil
}

// recordDuplicate keeps a second paid submission on file for review. The
// winner stays the only PENDING order for the address.
func (s *OrderOrchestrator) recordDuplicate(ctx context.Context, order, winner *domain.Order) {
	order.Status = domain.OrderStatusManualReview
	order.Message = domain.StringPtr(fmt.Sprintf(
		"duplicate submission: order %s was already pending for this address", winner.ID))

	s.logger.Error("duplicate submission detected",
		zap.String("orderId", order.ID),
		zap.String("providerOrderId", *order.ProviderOrderID),
		zap.String("pendingOrderId", winner.ID),
	)

	if err := s.orders.Create(ctx, order); err != nil {
		s.logger.Error("failed to persist duplicate submission",
			zap.String("orderId", order.ID),
			zap.String("providerOrderId", *order.ProviderOrderID),
			zap.Error(err),
		)
		return
	}
	s.metrics.Transition("NEW", string(order.Status))
}

// provisionalEstimate finds a Tier-1 measurement to show while the order is
// pending. Failures only cost the provisional data.
func (s *OrderOrchestrator) provisionalEstimate(ctx context.Context, address, normalized string) *domain.Measurement {
	if m, ok := s.cache.Get(ctx, normalized, domain.TierEstimate); ok {
		s.metrics.CacheLookup(int(domain.TierEstimate), true)
		m.Cached = true
		return m
	}
	s.metrics.CacheLookup(int(domain.TierEstimate), false)

	m, err := s.fetchEstimate(ctx, address, normalized)
	if err != nil {
		s.logger.Info("no provisional estimate for order", zap.String("address", normalized), zap.Error(err))
		return nil
	}
	return m
}

func (s *OrderOrchestrator) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewValidationError("orderId is required")
	}
	return s.orders.FindByID(ctx, id)
}

// ListHistory returns the newest entries of one kind. ALL covers orders in
// any status; estimates are only listed under ESTIMATES.
func (s *OrderOrchestrator) ListHistory(ctx context.Context, kind domain.HistoryKind, limit int) ([]domain.HistoryEntry, error) {
	limit = ClampHistoryLimit(limit)

	if kind == domain.HistoryEstimates {
		records, err := s.estimates.List(ctx, limit)
		if err != nil {
			return nil, apperrors.NewInternalError("listing estimates", err)
		}
		entries := make([]domain.HistoryEntry, 0, len(records))
		for i := range records {
			rec := records[i]
			entries = append(entries, domain.HistoryEntry{
				Type:      domain.HistoryEntryEstimate,
				Estimate:  &rec,
				CreatedAt: rec.CreatedAt,
			})
		}
		return entries, nil
	}

	var filter *domain.OrderStatus
	if status, ok := kind.OrderStatus(); ok {
		filter = &status
	} else if kind != domain.HistoryAll {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown history kind %q", kind))
	}

	orders, err := s.orders.List(ctx, filter, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("listing orders", err)
	}

	entries := make([]domain.HistoryEntry, 0, len(orders))
	for i := range orders {
		o := orders[i]
		entries = append(entries, domain.HistoryEntry{
			Type:      domain.HistoryEntryOrder,
			Order:     &o,
			CreatedAt: o.CreatedAt,
		})
	}
	return entries, nil
}

func ClampHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

func (s *OrderOrchestrator) publish(ctx context.Context, pattern string, order *domain.Order) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, pattern, order); err != nil {
		s.logger.Warn("failed to publish order event",
			zap.String("pattern", pattern),
			zap.String("orderId", order.ID),
			zap.Error(err),
		)
	}
}
