package errors

import (
	"errors"
	"fmt"
)

type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Message string
	Details []ValidationDetail
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string, details ...ValidationDetail) *ValidationError {
	return &ValidationError{
		Message: message,
		Details: details,
	}
}

func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{Message: message}
}

func IsNotFoundError(err error) (*NotFoundError, bool) {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf, true
	}
	return nil, false
}

type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

func IsConflictError(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

type DeadlockError struct {
	Message string
}

func (e *DeadlockError) Error() string {
	return e.Message
}

func NewDeadlockError(message string) *DeadlockError {
	return &DeadlockError{Message: message}
}

func IsDeadlockError(err error) (*DeadlockError, bool) {
	var de *DeadlockError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// DailyLimitExceededError is returned when no Tier-2 slot is left for the
// current billing day. No provider call has been made when it is returned.
type DailyLimitExceededError struct {
	Limit int
	Day   string
}

func (e *DailyLimitExceededError) Error() string {
	return fmt.Sprintf("daily order limit of %d reached for %s", e.Limit, e.Day)
}

func NewDailyLimitExceededError(limit int, day string) *DailyLimitExceededError {
	return &DailyLimitExceededError{Limit: limit, Day: day}
}

func IsDailyLimitExceededError(err error) (*DailyLimitExceededError, bool) {
	var de *DailyLimitExceededError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

type ProviderUnavailableError struct {
	Provider  string
	Operation string
	Cause     error
}

func (e *ProviderUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Operation, e.Cause)
	}
	return fmt.Sprintf("%s %s failed", e.Provider, e.Operation)
}

func (e *ProviderUnavailableError) Unwrap() error {
	return e.Cause
}

func NewProviderUnavailableError(provider, operation string, cause error) *ProviderUnavailableError {
	return &ProviderUnavailableError{
		Provider:  provider,
		Operation: operation,
		Cause:     cause,
	}
}

func IsProviderUnavailableError(err error) (*ProviderUnavailableError, bool) {
	var pe *ProviderUnavailableError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

type PollInProgressError struct {
	OrderID string
}

func (e *PollInProgressError) Error() string {
	return fmt.Sprintf("a status check for order %s is already in progress", e.OrderID)
}

func NewPollInProgressError(orderID string) *PollInProgressError {
	return &PollInProgressError{OrderID: orderID}
}

func IsPollInProgressError(err error) (*PollInProgressError, bool) {
	var pe *PollInProgressError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{
		Message: message,
		Cause:   cause,
	}
}

func IsInternalError(err error) (*InternalError, bool) {
	var ie *InternalError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
