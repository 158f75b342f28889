package service

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrUsingFallbackData marks a snapshot built from the built-in table.
// It is a warning: the snapshot is fully usable.
var ErrUsingFallbackData = errors.New("using fallback exchange rates")

// ErrorType classifies service errors for logging and HTTP mapping
type ErrorType int

const (
	ErrorTypeNoProviders ErrorType = iota
	ErrorTypeContextCancelled
	ErrorTypeProviderFailed
	ErrorTypeNetworkError
	ErrorTypeInvalidResponse
	ErrorTypeRatesUnavailable
	ErrorTypeRebaseRefused
	ErrorTypeUnknown
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeNoProviders:
		return "no_providers"
	case ErrorTypeContextCancelled:
		return "context_cancelled"
	case ErrorTypeProviderFailed:
		return "provider_failed"
	case ErrorTypeNetworkError:
		return "network_error"
	case ErrorTypeInvalidResponse:
		return "invalid_response"
	case ErrorTypeRatesUnavailable:
		return "rates_unavailable"
	case ErrorTypeRebaseRefused:
		return "rebase_refused"
	default:
		return "unknown"
	}
}

// ServiceError represents a service-specific error with type information
type ServiceError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// errInvalidResponse tags payload problems so classifyError can recognise them
var errInvalidResponse = errors.New("invalid response")

// classifyError maps an error to its ErrorType
func classifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Type
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeContextCancelled
	case errors.Is(err, errInvalidResponse):
		return ErrorTypeInvalidResponse
	case errors.As(err, &netErr):
		return ErrorTypeNetworkError
	default:
		return ErrorTypeUnknown
	}
}
