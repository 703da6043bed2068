// Package errors provides standardized error handling for the search core.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"

	ErrCodeSearchQuotaExhausted   ErrorCode = "SEARCH_QUOTA_EXHAUSTED"
	ErrCodeAnalysisQuotaExhausted ErrorCode = "ANALYSIS_QUOTA_EXHAUSTED"
	ErrCodeQuotaCheckFailed       ErrorCode = "QUOTA_CHECK_FAILED"

	ErrCodeSourceTimeout      ErrorCode = "SOURCE_TIMEOUT"
	ErrCodeSourceChallenge    ErrorCode = "SOURCE_CHALLENGE"
	ErrCodeSourceFetchFailed  ErrorCode = "SOURCE_FETCH_FAILED"
	ErrCodeAllSourcesFailed   ErrorCode = "ALL_SOURCES_UNAVAILABLE"

	ErrCodeBaselineUnavailable ErrorCode = "BASELINE_UNAVAILABLE"

	ErrCodeAITimeout        ErrorCode = "AI_ANALYSIS_TIMEOUT"
	ErrCodeAIAnalysisFailed ErrorCode = "AI_ANALYSIS_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationFailedError creates a non-retryable criteria validation error.
// violations carries the per-field messages collected by the validator.
func NewValidationFailedError(violations []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Search criteria validation failed",
		Details:   strings.Join(violations, "; "),
		Retryable: false,
		Metadata:  map[string]interface{}{"violations": violations},
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError creates a rate-limit denial with a retry-after hint.
func NewRateLimitedError(action string, retryAfter time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "Too many requests",
		Details:   fmt.Sprintf("action: %s", action),
		Retryable: true,
		Metadata: map[string]interface{}{
			"action":       action,
			"retryAfterMs": retryAfter.Milliseconds(),
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewQuotaExhaustedError creates a non-retryable quota denial, distinguishing
// the search allowance from the analysis allowance.
func NewQuotaExhaustedError(action string, unlimited bool) *StandardError {
	code := ErrCodeSearchQuotaExhausted
	if action == "analysis" {
		code = ErrCodeAnalysisQuotaExhausted
	}
	return &StandardError{
		Code:      code,
		Message:   fmt.Sprintf("No remaining %s quota", action),
		Details:   fmt.Sprintf("action: %s", action),
		Retryable: false,
		Metadata: map[string]interface{}{
			"action":    action,
			"unlimited": unlimited,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewQuotaCheckFailedError creates a retryable quota-store error.
func NewQuotaCheckFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQuotaCheckFailed,
		Message:   "Quota store error during reservation",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSourceTimeoutError creates a per-source timeout marker. It never fails a
// run on its own; the orchestrator surfaces it in the source status report.
func NewSourceTimeoutError(source string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSourceTimeout,
		Message:   "Source fetch timed out",
		Details:   fmt.Sprintf("source: %s", source),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSourceChallengeError marks an anti-bot challenge from an upstream site.
func NewSourceChallengeError(source string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSourceChallenge,
		Message:   "Source returned an anti-bot challenge",
		Details:   fmt.Sprintf("source: %s", source),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSourceFetchFailedError creates a per-source fetch error.
func NewSourceFetchFailedError(source string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSourceFetchFailed,
		Message:   "Source fetch failed",
		Details:   fmt.Sprintf("source: %s, error: %s", source, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAllSourcesUnavailableError creates the whole-run failure used when every
// adapter failed or timed out.
func NewAllSourcesUnavailableError(sourceCount int) *StandardError {
	return &StandardError{
		Code:      ErrCodeAllSourcesFailed,
		Message:   "All listing sources failed or timed out",
		Details:   fmt.Sprintf("sources attempted: %d", sourceCount),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewBaselineUnavailableError creates a retryable baseline-store error.
func NewBaselineUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBaselineUnavailable,
		Message:   "Market baseline lookup failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAITimeoutError marks an analyzer timeout. The run degrades, it does not fail.
func NewAITimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeAITimeout,
		Message:   "Merchant analysis timed out",
		Details:   "analysis call exceeded its deadline",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAIAnalysisFailedError marks an analyzer failure. The run degrades, it does not fail.
func NewAIAnalysisFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAIAnalysisFailed,
		Message:   "Merchant analysis failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// RetryAfter extracts the retry-after hint from a rate-limit error, zero when absent.
func RetryAfter(e *StandardError) time.Duration {
	if e == nil || e.Metadata == nil {
		return 0
	}
	if ms, ok := e.Metadata["retryAfterMs"].(int64); ok {
		return time.Duration(ms) * time.Millisecond
	}
	return 0
}

// IsGatingError reports whether the error aborted the run before any adapter work.
func IsGatingError(code ErrorCode) bool {
	switch code {
	case ErrCodeValidationFailed, ErrCodeRateLimited,
		ErrCodeSearchQuotaExhausted, ErrCodeAnalysisQuotaExhausted,
		ErrCodeQuotaCheckFailed:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "RATE") || strings.Contains(codeStr, "QUOTA"):
		return "GATE"
	case strings.Contains(codeStr, "SOURCE"):
		return "SOURCE"
	case strings.HasPrefix(codeStr, "AI_"):
		return "AI"
	case strings.Contains(codeStr, "BASELINE"):
		return "SCORING"
	default:
		return "OTHER"
	}
}
