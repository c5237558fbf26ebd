package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeExtraction represents a missed field or item during DOM extraction
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypePageLoad represents navigation or page-rendering failures
	ErrorTypePageLoad ErrorType = "page_load"
	// ErrorTypeRateLimit represents rate limiting by the remote site
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypePersistence represents database failures
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeNotification represents alert transport failures
	ErrorTypeNotification ErrorType = "notification"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// PipelineError represents a harvest-pipeline error tagged with its type
// and the marketplace it occurred on.
type PipelineError struct {
	Type        ErrorType
	Marketplace string
	Message     string
	Err         error
	Time        time.Time
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Marketplace, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Marketplace, e.Message)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable.
// Page loads may be retried once at the orchestrator level; extraction
// misses are recovered by skipping the item, and persistence failures
// abort the whole batch, so neither is retried.
func (e *PipelineError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypePageLoad:
		return true
	case ErrorTypeRateLimit:
		return false
	case ErrorTypeExtraction:
		return false
	case ErrorTypePersistence:
		return false
	default:
		return false
	}
}

// New creates a new PipelineError
func New(errType ErrorType, marketplace, message string, err error) *PipelineError {
	return &PipelineError{
		Type:        errType,
		Marketplace: marketplace,
		Message:     message,
		Err:         err,
		Time:        time.Now(),
	}
}

// NewExtraction creates a new extraction error
func NewExtraction(marketplace, message string, err error) *PipelineError {
	return New(ErrorTypeExtraction, marketplace, message, err)
}

// NewPageLoad creates a new page load error
func NewPageLoad(marketplace, message string, err error) *PipelineError {
	return New(ErrorTypePageLoad, marketplace, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(marketplace string, duration time.Duration) *PipelineError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, marketplace, message, nil)
}

// NewPersistence creates a new persistence error
func NewPersistence(message string, err error) *PipelineError {
	return New(ErrorTypePersistence, "", message, err)
}

// NewNotification creates a new notification error
func NewNotification(message string, err error) *PipelineError {
	return New(ErrorTypeNotification, "", message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *PipelineError {
	return New(ErrorTypeConfiguration, "", message, err)
}
