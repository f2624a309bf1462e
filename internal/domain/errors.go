package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidRequest     = errors.New("invalid reading request")
	ErrInvalidN           = errors.New("n must be between 1 and 10")
	ErrNExceedsDeck       = errors.New("n exceeds number of cards in deck")
	ErrSpreadNotFound     = errors.New("spread not found")
	ErrTierRequired       = errors.New("spread requires a higher tier")
	ErrVisionProofExpired = errors.New("vision proof expired")
	ErrVisionProofInvalid = errors.New("vision proof invalid")
	ErrQuotaExceeded      = errors.New("monthly reading quota exceeded")
	ErrAllBackendsFailed  = errors.New("all narrative backends failed")
	ErrUpstreamLLM        = errors.New("upstream LLM failure")
	ErrInvalidLLMJSON     = errors.New("LLM returned invalid JSON after retry")
	ErrEmptyNarrative     = errors.New("backend returned empty narrative")
	ErrBackendDisabled    = errors.New("backend not configured")
)

// ValidationError lists every problem found in a request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid reading request: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// QuotaExceededError is returned when admission is denied.
type QuotaExceededError struct {
	Used    int
	Limit   int
	ResetAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly reading quota exceeded: %d/%d, resets %s",
		e.Used, e.Limit, e.ResetAt.Format(time.RFC3339))
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }

// BackendsExhaustedError carries every failed attempt of a fallback chain.
type BackendsExhaustedError struct {
	Attempts []BackendAttempt
	Cause    error
}

func (e *BackendsExhaustedError) Error() string {
	names := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		names[i] = a.Backend + "(" + string(a.Reason) + ")"
	}
	msg := "all narrative backends failed: " + strings.Join(names, ", ")
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *BackendsExhaustedError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrAllBackendsFailed, e.Cause}
	}
	return []error{ErrAllBackendsFailed}
}
