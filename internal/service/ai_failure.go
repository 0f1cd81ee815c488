package service

import (
	"errors"
	"fmt"

	"github.com/neilnvaidya/owlby-api/internal/pkg/deadline"
)

// FailureKind is the closed set of generation failure classes. Kinds are
// assigned where the upstream call fails (the client boundary), so dispatch
// policy is a match over variants rather than a substring search.
type FailureKind int

const (
	FailureTransient FailureKind = iota
	FailureRateLimited
	FailureOverloaded
	FailureRegionRestricted
	FailureAttemptTimeout
	FailureEmptyResponse
	FailureBudgetExceeded
)

func (k FailureKind) String() string {
	switch k {
	case FailureRateLimited:
		return "rate_limited"
	case FailureOverloaded:
		return "overloaded"
	case FailureRegionRestricted:
		return "region_restricted"
	case FailureAttemptTimeout:
		return "attempt_timeout"
	case FailureEmptyResponse:
		return "empty_response"
	case FailureBudgetExceeded:
		return "budget_exceeded"
	default:
		return "transient"
	}
}

// UpstreamError is a classified failure from one model attempt.
type UpstreamError struct {
	Kind    FailureKind
	Model   string
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Model, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Model, e.Kind, e.Message)
}

// classifyFailure maps any attempt error onto a FailureKind. Per-attempt
// deadline timeouts count as an explicit timeout marker.
func classifyFailure(err error) FailureKind {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	if deadline.IsTimeout(err) {
		return FailureAttemptTimeout
	}
	return FailureTransient
}

// triggersFallback reports whether the failure should abort the current tier
// immediately and advance the cascade instead of retrying in place.
func triggersFallback(err error) bool {
	switch classifyFailure(err) {
	case FailureRateLimited, FailureOverloaded, FailureRegionRestricted, FailureAttemptTimeout:
		return true
	}
	return false
}

func failureMessage(err error) string {
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Message != "" {
		return ue.Message
	}
	if err != nil {
		return err.Error()
	}
	return "unknown error"
}
