// Package apierrors provides structured API error handling.
package apierrors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fredphp/yunwei/internal/correlation"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/repository"
)

// APIError represents a structured API error.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Details    any    `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Write writes the error response.
func (e *APIError) Write(w http.ResponseWriter, r *http.Request) {
	e.RequestID = correlation.GetID(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(e)
}

func NewBadRequestError(message string) *APIError {
	return &APIError{
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewConflictError(message string) *APIError {
	return &APIError{
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewValidationError(message string, details any) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func NewInternalError(message string) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewServiceUnavailableError reports a dependency failure the caller may retry.
func NewServiceUnavailableError(service string) *APIError {
	return &APIError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    service + " is temporarily unavailable",
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
	}
}

// FromError converts a domain error to an APIError: input errors are 422, missing records
// 404, backward status moves 409 and store failures a retryable 503.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var inputErr *model.InputError
	if errors.As(err, &inputErr) {
		return NewValidationError(inputErr.Error(), map[string]string{
			"field":  inputErr.Field,
			"value":  inputErr.Value,
			"reason": inputErr.Reason,
		})
	}
	if errors.Is(err, model.ErrNotFound) {
		return &APIError{Code: "NOT_FOUND", Message: err.Error(), StatusCode: http.StatusNotFound}
	}
	if errors.Is(err, model.ErrInvalidTransition) {
		return NewConflictError(err.Error())
	}
	var storeErr *repository.StoreError
	if errors.As(err, &storeErr) && storeErr.Retryable() {
		return NewServiceUnavailableError("data store")
	}

	return NewInternalError("An unexpected error occurred")
}

// ErrorHandler is middleware that turns panics into 500 responses.
func ErrorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				correlation.Logger(r.Context()).Error("panic serving request", "panic", rec, "path", r.URL.Path)
				NewInternalError("Internal server error").Write(w, r)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
