package modelrelay

import "fmt"

// RelayError is the base error type for all model-exchange failures.
type RelayError struct {
	Message string
	Cause   error
}

func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by a model provider.
type ProviderError struct {
	RelayError
	Provider   string
	StatusCode int
	Retryable  bool
	RetryAfter *float64
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }

// QuotaExceededError is raised for insufficient credits (HTTP 402). It is
// terminal: retrying cannot succeed until the account is topped up.
type QuotaExceededError struct{ ProviderError }

// Non-provider errors.

type RequestTimeoutError struct{ RelayError }
type NetworkError struct{ RelayError }
type ConfigurationError struct{ RelayError }

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, provider string, retryAfter *float64) error {
	pe := ProviderError{
		RelayError: RelayError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		RetryAfter: retryAfter,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{ProviderError: pe}
	case 401, 403:
		return &AuthenticationError{ProviderError: pe}
	case 402:
		return &QuotaExceededError{ProviderError: pe}
	case 408:
		return &RequestTimeoutError{RelayError: RelayError{Message: message}}
	case 429:
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504:
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		// Unknown provider errors default to retryable.
		pe.Retryable = true
		return &pe
	}
}

// IsRetryable returns true if the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *ProviderError:
		return e.Retryable
	case *AuthenticationError:
		return false
	case *InvalidRequestError:
		return false
	case *QuotaExceededError:
		return false
	case *ConfigurationError:
		return false
	case *RateLimitError:
		return true
	case *ServerError:
		return true
	case *RequestTimeoutError:
		return true
	case *NetworkError:
		return true
	default:
		// Unknown errors default to retryable.
		return true
	}
}
