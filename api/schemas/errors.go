package schemas

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across packages.
var (
	// ErrNotFound is returned when a graph node, edge or task record does
	// not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrQueueFull is returned by the task queue's reject-on-full policy.
	ErrQueueFull = errors.New("task queue is full")
)

// ValidationError reports invalid caller input (bad stage number, empty
// query). The engine aborts before any graph mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// CredentialError reports missing or malformed external-service credentials.
type CredentialError struct {
	Service string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("missing or invalid credentials for %s service", e.Service)
}

// RateLimitError surfaces a 429 from an external service; the current stage
// aborts and the caller decides when to retry.
type RateLimitError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s service rate limited, retry after %s", e.Service, e.RetryAfter)
	}
	return fmt.Sprintf("%s service rate limited", e.Service)
}

// CostLimitExceededError reports that the guardrail refused an external call.
// Stages respond with fallback content rather than aborting.
type CostLimitExceededError struct {
	Service string
	Metric  string
}

func (e *CostLimitExceededError) Error() string {
	return fmt.Sprintf("daily %s ceiling exceeded for %s service", e.Metric, e.Service)
}

// ExternalAPIError reports a non-success or malformed response from an
// external service. Only the current stage aborts; earlier graph state is
// untouched.
type ExternalAPIError struct {
	Service    string
	StatusCode int
	Reason     string
}

func (e *ExternalAPIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s service returned status %d: %s", e.Service, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("%s service error: %s", e.Service, e.Reason)
}

// ResponseTruncatedError marks a completion that hit the token budget. The
// engine retries once with a larger budget before accepting the text with a
// truncation notice.
type ResponseTruncatedError struct {
	TokensUsed int
}

func (e *ResponseTruncatedError) Error() string {
	return fmt.Sprintf("response truncated after %d tokens", e.TokensUsed)
}

// TimeoutError is the terminal failure for a poll that outlived its budget.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// TaskFailedError wraps the failure of a single queued task. It affects only
// the caller polling that task id.
type TaskFailedError struct {
	TaskID string
	Err    error
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.TaskID, e.Err)
}

func (e *TaskFailedError) Unwrap() error { return e.Err }

// GraphConsistencyError is a defensive invariant violation (dangling edge or
// hyperedge reference). Stage logic should never produce one; if it does,
// the failure is loud.
type GraphConsistencyError struct {
	Reason string
}

func (e *GraphConsistencyError) Error() string {
	return fmt.Sprintf("graph consistency violated: %s", e.Reason)
}
