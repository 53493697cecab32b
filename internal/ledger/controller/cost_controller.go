package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"roofline/internal/domain"
	"roofline/internal/dto"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CostReporter interface {
	Summary(ctx context.Context) (*domain.CostSummary, error)
}

type CostController struct {
	ledger          CostReporter
	tier1Configured bool
	logger          *zap.Logger
}

func NewCostController(ledger CostReporter, tier1Configured bool, logger *zap.Logger) *CostController {
	return &CostController{
		ledger:          ledger,
		tier1Configured: tier1Configured,
		logger:          logger,
	}
}

func (c *CostController) GetCostSummary(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()

	summary, err := c.ledger.Summary(r.Context())
	if err != nil {
		c.logger.Error("loading cost summary", zap.String("traceId", traceID), zap.Error(err))
		c.writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{
			TraceID:   traceID,
			Status:    http.StatusInternalServerError,
			Code:      "INTERNAL_ERROR",
			Message:   "an unexpected error occurred",
			Timestamp: time.Now().UTC(),
		})
		return
	}

	c.writeJSON(w, http.StatusOK, dto.CostSummaryResponse{
		TraceID:   traceID,
		Summary:   summary,
		Timestamp: time.Now().UTC(),
	})
}

// Health reports "degraded" when the ledger cannot be read; the process
// itself is still serving.
func (c *CostController) Health(w http.ResponseWriter, r *http.Request) {
	resp := dto.HealthResponse{
		TraceID:         uuid.New().String(),
		Status:          "ok",
		Tier1Configured: c.tier1Configured,
		Timestamp:       time.Now().UTC(),
	}

	summary, err := c.ledger.Summary(r.Context())
	if err != nil {
		c.logger.Warn("health check could not read ledger", zap.String("traceId", resp.TraceID), zap.Error(err))
		resp.Status = "degraded"
		c.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.LiveMode = summary.LiveMode
	resp.BillingDay = summary.BillingDay
	resp.TodayOrders = summary.TodayOrders
	resp.DailyLimit = summary.DailyLimit
	c.writeJSON(w, http.StatusOK, resp)
}

func (c *CostController) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		c.logger.Error("failed to encode response", zap.Error(err))
	}
}
