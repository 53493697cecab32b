package memory

import (
	"context"
	"sort"
	"sync"

	"roofline/internal/domain"
)

type EstimateStore struct {
	mu        sync.RWMutex
	estimates []domain.EstimateRecord
}

func NewEstimateStore() *EstimateStore {
	return &EstimateStore{estimates: make([]domain.EstimateRecord, 0)}
}

func (s *EstimateStore) Save(_ context.Context, rec domain.EstimateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Measurement = rec.Measurement.Clone()
	s.estimates = append(s.estimates, rec)
	return nil
}

func (s *EstimateStore) List(_ context.Context, limit int) ([]domain.EstimateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.EstimateRecord, 0, len(s.estimates))
	for i := len(s.estimates) - 1; i >= 0; i-- {
		result = append(result, s.estimates[i])
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
