package errors

import (
	"errors"
	"fmt"
	"net/http"

	"inventory-service/internal/coordinator"
	"inventory-service/internal/domain"

	"github.com/google/uuid"
)

// StandardError is the JSON body of every error response.
type StandardError struct {
	Code    string `json:"error"`   // Error code, e.g. "NotFound", "VersionConflict"
	Message string `json:"message"` // Human-readable message
	Details string `json:"details"` // Offending entity, field or cause
}

func (e *StandardError) Error() string {
	return e.Message
}

// HTTPStatus returns the HTTP status code for the error code.
func (e *StandardError) HTTPStatus() int {
	switch e.Code {
	case "InvalidRequest", "ValidationError",
		string(domain.KindInvalidArgument), string(domain.KindInsufficientStock):
		return http.StatusBadRequest
	case "Unauthorized":
		return http.StatusUnauthorized
	case string(domain.KindForbidden):
		return http.StatusForbidden
	case string(domain.KindNotFound):
		return http.StatusNotFound
	case string(domain.KindVersionConflict), string(domain.KindInvalidTransition),
		string(domain.KindReferentialConflict), string(domain.KindDuplicate):
		return http.StatusConflict
	case "TooManyRequests":
		return http.StatusTooManyRequests
	case "BrokerConnectionError", "ServiceUnavailable":
		return http.StatusServiceUnavailable
	case string(domain.KindPartialCommitFailure), "Timeout", "InternalError":
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func NewStandardError(errorCode, message, details string) *StandardError {
	return &StandardError{
		Code:    errorCode,
		Message: message,
		Details: details,
	}
}

// FromError converts any error into a StandardError. Domain errors keep their
// kind as the code; anything unrecognised becomes an internal error.
func FromError(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		if errors.Is(err, coordinator.ErrTimeout) {
			return NewTimeout(err)
		}
		return NewInternalError("internal server error", err)
	}

	details := ""
	if domainErr.EntityID != uuid.Nil {
		details = fmt.Sprintf("Entity ID: %s", domainErr.EntityID)
	}
	if domainErr.Err != nil {
		if details != "" {
			details += ", "
		}
		details += "Cause: " + domainErr.Err.Error()
	}
	return NewStandardError(string(domainErr.Kind), domainErr.Message, details)
}

func NewInvalidRequest(message, details string) *StandardError {
	return NewStandardError("InvalidRequest", message, details)
}

func NewValidationError(message, field string) *StandardError {
	return NewStandardError("ValidationError", message, fmt.Sprintf("Field: %s", field))
}

func NewUnauthorized(message, details string) *StandardError {
	return NewStandardError("Unauthorized", message, details)
}

func NewTooManyRequests(limit int) *StandardError {
	return NewStandardError("TooManyRequests", "rate limit exceeded", fmt.Sprintf("Limit: %d requests per minute", limit))
}

func NewTimeout(err error) *StandardError {
	return NewStandardError("Timeout", "store operation timed out", err.Error())
}

func NewBrokerConnectionError(err error) *StandardError {
	return NewStandardError("BrokerConnectionError", "failed to connect to event broker", err.Error())
}

func NewServiceUnavailable(message string, err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return NewStandardError("ServiceUnavailable", message, details)
}

func NewInternalError(message string, err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return NewStandardError("InternalError", message, details)
}
