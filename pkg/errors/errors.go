package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents network-related errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeParsing represents HTML parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypeStore represents price store errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeNotification represents alert delivery errors
	ErrorTypeNotification ErrorType = "notification"
)

// WatchError is an error raised while collecting or handling prices
type WatchError struct {
	Type    ErrorType
	Source  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *WatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Source, e.Message)
}

// Unwrap returns the underlying error
func (e *WatchError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *WatchError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeNotification:
		return true
	default:
		return false
	}
}

// New creates a new WatchError
func New(errType ErrorType, source, message string, err error) *WatchError {
	return &WatchError{
		Type:    errType,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// TypeOf returns the type of the first WatchError in err's chain
func TypeOf(err error) (ErrorType, bool) {
	var we *WatchError
	if errors.As(err, &we) {
		return we.Type, true
	}
	return "", false
}

// Is reports whether err carries a WatchError of the given type
func Is(err error, errType ErrorType) bool {
	t, ok := TypeOf(err)
	return ok && t == errType
}

// NewNetwork creates a new network error
func NewNetwork(source, message string, err error) *WatchError {
	return New(ErrorTypeNetwork, source, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(source, message string, err error) *WatchError {
	return New(ErrorTypeParsing, source, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(source string, duration time.Duration) *WatchError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, source, message, nil)
}

// NewCache creates a new cache error
func NewCache(source, message string, err error) *WatchError {
	return New(ErrorTypeCache, source, message, err)
}

// NewStore creates a new store error
func NewStore(source, message string, err error) *WatchError {
	return New(ErrorTypeStore, source, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(source, message string, err error) *WatchError {
	return New(ErrorTypePublisher, source, message, err)
}

// NewValidation creates a new validation error
func NewValidation(source, message string) *WatchError {
	return New(ErrorTypeValidation, source, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *WatchError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// NewNotification creates a new notification error
func NewNotification(source, message string, err error) *WatchError {
	return New(ErrorTypeNotification, source, message, err)
}
