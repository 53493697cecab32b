package domain

import (
	"fmt"
	"strings"
)

type ProviderStatusKind int

const (
	ProviderStatusInProgress ProviderStatusKind = iota
	ProviderStatusCompleted
	ProviderStatusFailed
	ProviderStatusUnknown
)

func (k ProviderStatusKind) String() string {
	switch k {
	case ProviderStatusInProgress:
		return "in_progress"
	case ProviderStatusCompleted:
		return "completed"
	case ProviderStatusFailed:
		return "failed"
	case ProviderStatusUnknown:
		return "unknown"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ProviderStatus is the provider's answer to a status poll, reduced to the
// four outcomes the order state machine understands. Raw keeps the code as
// the provider sent it.
type ProviderStatus struct {
	Kind    ProviderStatusKind
	Raw     string
	Message string
}

var (
	completedCodes  = map[string]bool{"COMPLETE": true, "COMPLETED": true, "DELIVERED": true}
	failedCodes     = map[string]bool{"FAILED": true, "ERROR": true, "CANCELLED": true, "CANCELED": true}
	inProgressCodes = map[string]bool{
		"PENDING":     true,
		"IN_PROGRESS": true,
		"INPROGRESS":  true,
		"PROCESSING":  true,
		"SUBMITTED":   true,
		"QUEUED":      true,
		"RECEIVED":    true,
	}
)

func ParseProviderStatus(raw, message string) ProviderStatus {
	code := strings.ToUpper(strings.TrimSpace(raw))
	code = strings.ReplaceAll(code, " ", "_")
	code = strings.ReplaceAll(code, "-", "_")

	kind := ProviderStatusUnknown
	switch {
	case completedCodes[code]:
		kind = ProviderStatusCompleted
	case failedCodes[code]:
		kind = ProviderStatusFailed
	case inProgressCodes[code]:
		kind = ProviderStatusInProgress
	}

	return ProviderStatus{Kind: kind, Raw: raw, Message: message}
}

// TargetStatus maps a provider outcome to the order status it leads to.
// Anything not recognized goes to manual review.
func (p ProviderStatus) TargetStatus() OrderStatus {
	switch p.Kind {
	case ProviderStatusInProgress:
		return OrderStatusPending
	case ProviderStatusCompleted:
		return OrderStatusVerified
	case ProviderStatusFailed:
		return OrderStatusFailed
	case ProviderStatusUnknown:
		return OrderStatusManualReview
	}
	return OrderStatusManualReview
}
