package errors

import (
	"fmt"
)

// ErrorCode represents a categorized error type
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig ErrorCode = "MISSING_CONFIG"

	// Connectivity errors (transient, retried with backoff up to a bound)
	ErrCodeConnection ErrorCode = "CONNECTION"
	ErrCodeTimeout    ErrorCode = "TIMEOUT"

	// Authorization errors (terminal, require re-login)
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION"
	ErrCodeAuthorization  ErrorCode = "AUTHORIZATION"

	// Backend API errors
	ErrCodeChatAPI        ErrorCode = "CHAT_API"
	ErrCodeTranslationAPI ErrorCode = "TRANSLATION_API"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"

	// Stream errors
	ErrCodeMalformedEvent ErrorCode = "MALFORMED_EVENT"

	// Media errors (surfaced per message, user may retry)
	ErrCodeMediaDownload ErrorCode = "MEDIA_DOWNLOAD"
	ErrCodeMediaLoad     ErrorCode = "MEDIA_LOAD"

	// Validation errors (rejected before any network call)
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Credential store errors
	ErrCodeCredentialStore ErrorCode = "CREDENTIAL_STORE"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Cause       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Retryable   bool                   `json:"retryable"`
	UserMessage string                 `json:"user_message,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithUserMessage sets a user-friendly message
func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapRetryable wraps an error and marks it as retryable
func WrapRetryable(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Retryable
	}
	return false
}

// IsTerminalAuth reports whether the error requires a re-login rather
// than a retry.
func IsTerminalAuth(err error) bool {
	code := GetCode(err)
	return code == ErrCodeAuthentication || code == ErrCodeAuthorization
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// GetUserMessage extracts a user-friendly message from an error
func GetUserMessage(err error) string {
	if appErr, ok := err.(*AppError); ok && appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	return "An internal error occurred"
}
