package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"roofline/internal/domain"
	apperrors "roofline/internal/errors"
)

// OrderStore keeps orders in process memory. It enforces the same
// uniqueness rules as the MySQL schema.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]*domain.Order)}
}

func pendingKey(address string, rt domain.ReportType) string {
	return string(rt) + "|" + address
}

func (s *OrderStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return apperrors.NewConflictError(fmt.Sprintf("order %s already exists", order.ID))
	}

	for _, o := range s.orders {
		if order.Status == domain.OrderStatusPending && o.Status == domain.OrderStatusPending &&
			pendingKey(o.Address, o.ReportType) == pendingKey(order.Address, order.ReportType) {
			return apperrors.NewConflictError("a pending order already exists for this address and report type")
		}
		if order.ProviderOrderID != nil && o.ProviderOrderID != nil && *o.ProviderOrderID == *order.ProviderOrderID {
			return apperrors.NewConflictError(fmt.Sprintf("provider order %s already recorded", *order.ProviderOrderID))
		}
	}

	stored := order.Clone()
	s.orders[order.ID] = &stored
	return nil
}

func (s *OrderStore) FindByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("order %s not found", id))
	}
	out := o.Clone()
	return &out, nil
}

func (s *OrderStore) FindPending(_ context.Context, address string, rt domain.ReportType) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.Status == domain.OrderStatusPending && o.Address == address && o.ReportType == rt {
			out := o.Clone()
			return &out, nil
		}
	}
	return nil, apperrors.NewNotFoundError("no pending order for address")
}

// List returns orders newest first, optionally filtered by status.
func (s *OrderStore) List(_ context.Context, status *domain.OrderStatus, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, o := range s.orders {
		if status == nil || o.Status == *status {
			result = append(result, o.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[j].Cursor().Before(result[i])
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListPending returns PENDING orders oldest first, strictly after the cursor.
func (s *OrderStore) ListPending(_ context.Context, after *domain.OrderCursor, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, o := range s.orders {
		if o.Status != domain.OrderStatusPending {
			continue
		}
		if after != nil && !after.Before(*o) {
			continue
		}
		result = append(result, o.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Cursor().Before(result[j])
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Transition applies update only while the order is still PENDING.
func (s *OrderStore) Transition(_ context.Context, update domain.StatusUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[update.OrderID]
	if !ok {
		return false, apperrors.NewNotFoundError(fmt.Sprintf("order %s not found", update.OrderID))
	}
	if !o.Status.CanTransitionTo(update.Status) {
		return false, nil
	}

	o.Status = update.Status
	if update.Measurement != nil {
		m := update.Measurement.Clone()
		o.Measurement = &m
	}
	if update.Message != nil {
		o.Message = domain.StringPtr(*update.Message)
	}
	at := update.At
	o.UpdatedAt = at
	o.LastCheckedAt = &at
	return true, nil
}

func (s *OrderStore) MarkChecked(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return false, apperrors.NewNotFoundError(fmt.Sprintf("order %s not found", id))
	}
	if o.Status != domain.OrderStatusPending {
		return false, nil
	}
	o.LastCheckedAt = &at
	return true, nil
}
