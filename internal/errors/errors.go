// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrRateLimited        = errors.New("rate limited")
	ErrRateLimitExhausted = errors.New("rate limit retry budget exhausted")
	ErrCircuitOpen        = errors.New("upstream circuit open")
	ErrDataNotFound       = errors.New("data not found")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrMissingAPIKey      = errors.New("missing market data api key")
	ErrUnknownFamily      = errors.New("unknown scan family")
	ErrReferenceTable     = errors.New("reverse split table unavailable")
	ErrNoSymbols          = errors.New("no symbols to scan")
	ErrCacheUnavailable   = errors.New("candle cache unavailable")
	ErrDatabaseError      = errors.New("database error")
	ErrInputValidation    = errors.New("input validation failed")
)

// UpstreamError represents a non-retryable failure returned by the market data API.
type UpstreamError struct {
	Status   int
	Endpoint string
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream error [%d] %s: %s: %v", e.Status, e.Endpoint, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream error [%d] %s: %s", e.Status, e.Endpoint, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError creates a new UpstreamError.
func NewUpstreamError(status int, endpoint, message string, err error) *UpstreamError {
	return &UpstreamError{
		Status:   status,
		Endpoint: endpoint,
		Message:  message,
		Err:      err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ScanError represents a failure that aborted the scan of one symbol.
type ScanError struct {
	Family string
	Symbol string
	Stage  string
	Err    error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan error [%s] %s during %s: %v", e.Family, e.Symbol, e.Stage, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// NewScanError creates a new ScanError.
func NewScanError(family, symbol, stage string, err error) *ScanError {
	return &ScanError{
		Family: family,
		Symbol: symbol,
		Stage:  stage,
		Err:    err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
