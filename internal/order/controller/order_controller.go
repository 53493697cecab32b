package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"roofline/internal/domain"
	"roofline/internal/dto"
	apperrors "roofline/internal/errors"
	"roofline/internal/order/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Orchestrator interface {
	CreateEstimate(ctx context.Context, address string) (*domain.Measurement, error)
	CreateOrder(ctx context.Context, address string, rt domain.ReportType) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListHistory(ctx context.Context, kind domain.HistoryKind, limit int) ([]domain.HistoryEntry, error)
}

type StatusChecker interface {
	CheckNow(ctx context.Context, id string) (*domain.Order, error)
}

type OrderController struct {
	orchestrator Orchestrator
	checker      StatusChecker
	logger       *zap.Logger
}

func NewOrderController(orchestrator Orchestrator, checker StatusChecker, logger *zap.Logger) *OrderController {
	return &OrderController{
		orchestrator: orchestrator,
		checker:      checker,
		logger:       logger,
	}
}

func (c *OrderController) GetEstimate(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	address := r.URL.Query().Get("address")
	if address == "" {
		c.writeValidationError(w, traceID, "address is required", apperrors.ValidationDetail{
			Field:   "address",
			Message: "address query parameter must not be empty",
		})
		return
	}

	estimate, err := c.orchestrator.CreateEstimate(r.Context(), address)
	if err != nil {
		c.handleError(w, traceID, "", err, logger)
		return
	}

	c.writeJSON(w, http.StatusOK, dto.EstimateResponse{
		TraceID:   traceID,
		Estimate:  estimate,
		Timestamp: time.Now().UTC(),
	})
}

func (c *OrderController) CreateOrder(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	var req dto.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid JSON body", zap.Error(err))
		c.writeValidationError(w, traceID, "invalid JSON body", apperrors.ValidationDetail{
			Field:   "body",
			Message: "request body must be valid JSON",
		})
		return
	}

	if validationErr := validateCreateOrderRequest(req); validationErr != nil {
		ve, _ := apperrors.IsValidationError(validationErr)
		c.writeValidationError(w, traceID, ve.Message, ve.Details...)
		return
	}

	order, err := c.orchestrator.CreateOrder(r.Context(), req.Address, domain.ReportType(req.ReportType))
	if err != nil {
		c.handleError(w, traceID, "", err, logger)
		return
	}

	c.writeJSON(w, http.StatusCreated, dto.OrderResponse{
		TraceID:   traceID,
		Order:     order,
		Timestamp: time.Now().UTC(),
	})
}

func validateCreateOrderRequest(req dto.CreateOrderRequest) error {
	var details []apperrors.ValidationDetail

	if normalized := domain.NormalizeAddress(req.Address); normalized == "" {
		details = append(details, apperrors.ValidationDetail{
			Field:   "address",
			Message: "address is required",
		})
	} else if domain.AddressTooLong(req.Address, normalized) {
		details = append(details, apperrors.ValidationDetail{
			Field:   "address",
			Message: fmt.Sprintf("address must be at most %d characters", domain.MaxAddressLength),
		})
	}

	if req.ReportType == "" {
		details = append(details, apperrors.ValidationDetail{
			Field:   "reportType",
			Message: "reportType is required",
		})
	} else if _, err := domain.ParseReportType(req.ReportType); err != nil {
		details = append(details, apperrors.ValidationDetail{
			Field:   "reportType",
			Message: "reportType must be BASIC or PREMIUM",
		})
	}

	if len(details) > 0 {
		return apperrors.NewValidationError("validation failed", details...)
	}
	return nil
}

func (c *OrderController) GetOrder(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	orderID := chi.URLParam(r, "orderId")
	order, err := c.orchestrator.GetOrder(r.Context(), orderID)
	if err != nil {
		c.handleError(w, traceID, orderID, err, logger)
		return
	}

	c.writeJSON(w, http.StatusOK, dto.OrderResponse{
		TraceID:   traceID,
		Order:     order,
		Timestamp: time.Now().UTC(),
	})
}

func (c *OrderController) CheckOrder(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	orderID := chi.URLParam(r, "orderId")
	logger := c.logger.With(zap.String("traceId", traceID), zap.String("orderId", orderID))

	order, err := c.checker.CheckNow(r.Context(), orderID)
	if err != nil {
		c.handleError(w, traceID, orderID, err, logger)
		return
	}

	logger.Info("on-demand status check", zap.String("status", string(order.Status)))
	c.writeJSON(w, http.StatusOK, dto.OrderResponse{
		TraceID:   traceID,
		Order:     order,
		Timestamp: time.Now().UTC(),
	})
}

func (c *OrderController) ListHistory(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	q := r.URL.Query()

	kind, err := domain.ParseHistoryKind(q.Get("kind"))
	if err != nil {
		c.writeValidationError(w, traceID, err.Error(), apperrors.ValidationDetail{
			Field:   "kind",
			Message: "kind must be one of ALL, PENDING, VERIFIED, MANUAL_REVIEW, FAILED, ESTIMATES",
		})
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			c.writeValidationError(w, traceID, "invalid limit", apperrors.ValidationDetail{
				Field:   "limit",
				Message: "limit must be an integer",
			})
			return
		}
	}

	entries, err := c.orchestrator.ListHistory(r.Context(), kind, limit)
	if err != nil {
		c.handleError(w, traceID, "", err, logger)
		return
	}

	c.writeJSON(w, http.StatusOK, dto.HistoryResponse{
		TraceID:   traceID,
		Kind:      string(kind),
		Limit:     service.ClampHistoryLimit(limit),
		Entries:   entries,
		Timestamp: time.Now().UTC(),
	})
}

func (c *OrderController) handleError(w http.ResponseWriter, traceID, orderID string, err error, logger *zap.Logger) {
	if ve, ok := apperrors.IsValidationError(err); ok {
		c.writeValidationError(w, traceID, ve.Message, ve.Details...)
		return
	}

	if _, ok := apperrors.IsNotFoundError(err); ok {
		c.writeErrorResponse(w, traceID, orderID, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}

	if _, ok := apperrors.IsDailyLimitExceededError(err); ok {
		c.writeErrorResponse(w, traceID, orderID, http.StatusTooManyRequests, "DAILY_LIMIT_EXCEEDED", err.Error())
		return
	}

	if _, ok := apperrors.IsPollInProgressError(err); ok {
		c.writeErrorResponse(w, traceID, orderID, http.StatusConflict, "POLL_IN_PROGRESS", err.Error())
		return
	}

	if _, ok := apperrors.IsConflictError(err); ok {
		c.writeErrorResponse(w, traceID, orderID, http.StatusConflict, "CONFLICT", err.Error())
		return
	}

	if pe, ok := apperrors.IsProviderUnavailableError(err); ok {
		logger.Warn("provider unavailable", zap.String("provider", pe.Provider), zap.String("operation", pe.Operation), zap.Error(err))
		c.writeErrorResponse(w, traceID, orderID, http.StatusBadGateway, "PROVIDER_UNAVAILABLE", err.Error())
		return
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Info("request ended before completion", zap.Error(err))
		c.writeErrorResponse(w, traceID, orderID, http.StatusGatewayTimeout, "TIMEOUT", "the request did not complete in time")
		return
	}

	logger.Error("unexpected error", zap.Error(err))
	c.writeErrorResponse(w, traceID, orderID, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
}

func (c *OrderController) writeErrorResponse(w http.ResponseWriter, traceID, orderID string, statusCode int, code, message string) {
	c.writeJSON(w, statusCode, dto.ErrorResponse{
		TraceID:   traceID,
		Status:    statusCode,
		Code:      code,
		Message:   message,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
	})
}

type validationErrorResponse struct {
	TraceID string                       `json:"traceId"`
	Error   string                       `json:"error"`
	Message string                       `json:"message"`
	Details []apperrors.ValidationDetail `json:"details"`
}

func (c *OrderController) writeValidationError(w http.ResponseWriter, traceID string, message string, details ...apperrors.ValidationDetail) {
	c.writeJSON(w, http.StatusBadRequest, validationErrorResponse{
		TraceID: traceID,
		Error:   "VALIDATION_ERROR",
		Message: message,
		Details: details,
	})
}

func (c *OrderController) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		c.logger.Error("failed to encode response", zap.Error(err))
	}
}
