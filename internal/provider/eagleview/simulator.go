package eagleview

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"roofline/internal/clock"
	"roofline/internal/domain"
	apperrors "roofline/internal/errors"
)

const SimulatedIDPrefix = "SIM-"

// Simulator stands in for the live API when live mode is off. It goes
// through the same bookkeeping as the live client but every call is free.
// An order reports COMPLETED once turnaround has passed since submission;
// ids submitted before a restart are treated as already complete.
type Simulator struct {
	turnaround time.Duration
	recorder   Recorder
	clock      clock.Clock
	logger     *zap.Logger

	mu        sync.Mutex
	submitted map[string]time.Time
}

func NewSimulator(turnaround time.Duration, recorder Recorder, clk clock.Clock, logger *zap.Logger) *Simulator {
	return &Simulator{
		turnaround: turnaround,
		recorder:   recorder,
		clock:      clk,
		logger:     logger,
		submitted:  make(map[string]time.Time),
	}
}

func (s *Simulator) Simulated() bool {
	return true
}

func (s *Simulator) SubmitOrder(ctx context.Context, address string, _, _ float64, rt domain.ReportType) (string, error) {
	id := SimulatedIDPrefix + uuid.New().String()
	now := s.clock.Now()

	s.mu.Lock()
	s.submitted[id] = now
	s.mu.Unlock()

	s.record(ctx, endpointSubmit, "POST", address)
	s.logger.Info("simulated order submitted",
		zap.String("providerOrderId", id),
		zap.String("reportType", string(rt)),
	)
	return id, nil
}

func (s *Simulator) PollStatus(ctx context.Context, providerOrderID string) (domain.ProviderStatus, error) {
	if !strings.HasPrefix(providerOrderID, SimulatedIDPrefix) {
		return domain.ProviderStatus{}, apperrors.NewProviderUnavailableError(string(domain.ProviderEagleView), endpointStatus,
			fmt.Errorf("order %s was not placed with the simulator", providerOrderID))
	}
	s.record(ctx, endpointStatus, "GET", "")

	s.mu.Lock()
	submittedAt, known := s.submitted[providerOrderID]
	s.mu.Unlock()

	if known && s.clock.Now().Sub(submittedAt) < s.turnaround {
		return domain.ParseProviderStatus("IN_PROGRESS", ""), nil
	}
	return domain.ParseProviderStatus("COMPLETED", ""), nil
}

func (s *Simulator) FetchReport(ctx context.Context, providerOrderID string) (*domain.Measurement, error) {
	if !strings.HasPrefix(providerOrderID, SimulatedIDPrefix) {
		return nil, apperrors.NewProviderUnavailableError(string(domain.ProviderEagleView), endpointReport,
			fmt.Errorf("order %s was not placed with the simulator", providerOrderID))
	}
	s.record(ctx, endpointReport, "GET", "")

	m := normalizeReport(sampleReport(providerOrderID), domain.SourceSimulated, s.clock.Now())
	return &m, nil
}

func (s *Simulator) record(ctx context.Context, endpoint, method, address string) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordCall(ctx, domain.UsageEntry{
		Provider:  domain.ProviderEagleView,
		Endpoint:  endpoint,
		Method:    method,
		Cost:      decimal.Zero,
		Address:   address,
		Success:   true,
		Simulated: true,
	})
}

func sampleReport(id string) map[string]any {
	return map[string]any{
		"reportId": id,
		"roofMeasurements": map[string]any{
			"totalArea":        2500.0,
			"predominantPitch": "6/12",
			"ridges":           150.0,
			"valleys":          50.0,
		},
	}
}
