package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes
const (
	CodeBotError           = "BOT_ERROR"
	CodeMalformedUpdate    = "MALFORMED_UPDATE"
	CodeConflictingHandler = "CONFLICTING_HANDLER"
	CodeVersionConflict    = "VERSION_CONFLICT"
	CodeTimeout            = "TIMEOUT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeUpstreamError      = "UPSTREAM_ERROR"
	CodeDeadlineExceeded   = "DEADLINE_EXCEEDED"
	CodeHandlerFault       = "HANDLER_FAULT"
	CodeAPIError           = "API_ERROR"
	CodeValidation         = "VALIDATION_ERROR"
	CodeCache              = "CACHE_ERROR"
	CodeStore              = "STORE_ERROR"
)

type BotError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *BotError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *BotError) Unwrap() error {
	return e.Cause
}

func NewBotError(message, code string, statusCode int, context map[string]any) *BotError {
	return &BotError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Context:    context,
	}
}

func (e *BotError) WithCause(cause error) *BotError {
	e.Cause = cause
	return e
}

// New builds a BotError with the given code and no HTTP status.
func New(code, message string) *BotError {
	return &BotError{Message: message, Code: code}
}

// Wrap builds a BotError with the given code around a cause.
func Wrap(code, message string, cause error) *BotError {
	return &BotError{Message: message, Code: code, Cause: cause}
}

// CodeOf returns the code of the outermost BotError in the chain,
// or the empty string when the chain contains none.
func CodeOf(err error) string {
	var be *BotError
	if stderrors.As(err, &be) {
		return be.Code
	}
	return ""
}

// HasCode reports whether any BotError in the chain carries the code.
func HasCode(err error, code string) bool {
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		var be *BotError
		if stderrors.As(e, &be) && be.Code == code {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the error is worth one more attempt
// against the same service. Rate limits and unavailable circuits are
// not: backing off is the only cure for those.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeTimeout, CodeUpstreamError:
		return true
	}
	return false
}

type APIError struct {
	*BotError
}

func NewAPIError(message string, statusCode int, context map[string]any) *APIError {
	return &APIError{
		BotError: &BotError{
			Message:    message,
			Code:       CodeAPIError,
			StatusCode: statusCode,
			Context:    context,
		},
	}
}

type ValidationError struct {
	*BotError
	Field string
	Value interface{}
}

func NewValidationError(message, field string, value interface{}) *ValidationError {
	return &ValidationError{
		BotError: &BotError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: 400,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

type CacheError struct {
	*BotError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		BotError: &BotError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

type StoreError struct {
	*BotError
	Operation string
	ChatID    int64
}

func NewStoreError(message, operation string, chatID int64, cause error) *StoreError {
	return &StoreError{
		BotError: &BotError{
			Message:    message,
			Code:       CodeStore,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
				"chat_id":   chatID,
			},
			Cause: cause,
		},
		Operation: operation,
		ChatID:    chatID,
	}
}

// NewVersionConflict marks a compare-and-set that lost against a
// newer committed version.
func NewVersionConflict(chatID, expected int64) *BotError {
	return &BotError{
		Message: "chat state version conflict",
		Code:    CodeVersionConflict,
		Context: map[string]any{
			"chat_id":  chatID,
			"expected": expected,
		},
	}
}

type ServiceError struct {
	*BotError
	Service   string
	Operation string
}

func NewServiceError(message, service, operation string, cause error) *ServiceError {
	return &ServiceError{
		BotError: &BotError{
			Message:    message,
			Code:       CodeUpstreamError,
			StatusCode: 500,
			Context: map[string]any{
				"service":   service,
				"operation": operation,
			},
			Cause: cause,
		},
		Service:   service,
		Operation: operation,
	}
}
