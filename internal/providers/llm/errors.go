package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrUnknownModel is returned for identifiers outside the model enumeration.
	ErrUnknownModel = errors.New("unknown model")

	// ErrPromptShape is returned when a text prompt is sent to a chat model or
	// the other way round.
	ErrPromptShape = errors.New("prompt shape does not match model")

	// ErrNoScores is returned when uncertainty scoring is requested from a
	// backend without log-probabilities.
	ErrNoScores = errors.New("backend does not report log-probabilities")

	errEmptyChoice = errors.New("no choices in response")
)

type ErrorType string

const (
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeProvider   ErrorType = "provider"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// ProviderError is a non-2xx response from a completion backend.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Type       ErrorType
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports whether the same request may succeed if sent again.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	default:
		return false
	}
}

func newProviderError(provider string, status int, message string) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Message:    message,
		Type:       classifyErrorType(status, message),
	}
}

// classifyErrorType looks at provider error text first, then the status code.
func classifyErrorType(statusCode int, message string) ErrorType {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit"):
		return ErrorTypeRateLimit
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		return ErrorTypeTimeout
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return ErrorTypeAuth
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrorTypeAuth
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrorTypeValidation
	default:
		if statusCode >= http.StatusInternalServerError {
			return ErrorTypeProvider
		}
		return ErrorTypeUnknown
	}
}

// isTransient reports whether err is worth retrying within the same call.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
