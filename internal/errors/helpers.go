package errors

import (
	"fmt"
	"net/http"
)

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeInvalidInput, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewAPIError maps a backend HTTP status to the client error taxonomy.
// 401 and 403 are terminal and require a re-login; 5xx/429/408 are
// retryable connectivity-class failures.
func NewAPIError(endpoint string, statusCode int, err error) *AppError {
	var code ErrorCode
	switch {
	case statusCode == http.StatusUnauthorized:
		code = ErrCodeAuthentication
	case statusCode == http.StatusForbidden:
		code = ErrCodeAuthorization
	case statusCode == http.StatusNotFound:
		code = ErrCodeNotFound
	default:
		code = ErrCodeChatAPI
	}

	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout

	appErr := Wrap(err, code, fmt.Sprintf("chat API call failed with status %d", statusCode)).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)
	appErr.Retryable = retryable

	switch code {
	case ErrCodeAuthentication:
		return appErr.WithUserMessage("Session expired. Please log in again.")
	case ErrCodeAuthorization:
		return appErr.WithUserMessage("You do not have access to this conversation.")
	default:
		return appErr.WithUserMessage("The chat service is unavailable right now.")
	}
}

// NewMediaError creates a per-message media failure. The handle is
// discarded by the caller; the user may retry by re-invoking play.
func NewMediaError(key string, err error) *AppError {
	return Wrap(err, ErrCodeMediaLoad, "could not load audio").
		WithContext("audio_key", key).
		WithUserMessage("Could not load audio")
}

// NewConnectionError creates a retryable stream connectivity error
func NewConnectionError(err error, message string) *AppError {
	return WrapRetryable(err, ErrCodeConnection, message).
		WithUserMessage("Connection lost. Reconnecting...")
}
