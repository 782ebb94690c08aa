package apperr

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Category groups errors by the subsystem that produced them.
type Category string

const (
	CategoryUpload  Category = "upload"
	CategoryArchive Category = "archive"
	CategoryDataset Category = "dataset"
	CategorySession Category = "session"
	CategoryConfig  Category = "config"
	CategoryCLI     Category = "cli"
)

// Error is a structured error with a stable code, category, and optional
// detail. Codes are what clients switch on; messages are for humans.
type Error struct {
	// Code is a unique error identifier (e.g., "E101").
	Code string

	// Category is the subsystem the error belongs to.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// HTTPStatus maps the error category (and select codes) to an HTTP status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeUploadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeSessionNotFound, CodeScenarioNotFound, CodeDatasetNotFound:
		return http.StatusNotFound
	case CodeSessionLimit, CodeIPLimit:
		return http.StatusTooManyRequests
	}
	switch e.Category {
	case CategoryUpload, CategoryArchive:
		return http.StatusBadRequest
	case CategoryDataset:
		return http.StatusUnprocessableEntity
	case CategorySession:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON renders the error as a JSON response body with its HTTP status.
func (e *Error) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())

	body := struct {
		Code     string `json:"code"`
		Category string `json:"category"`
		Message  string `json:"message"`
		Detail   string `json:"detail,omitempty"`
	}{
		Code:     e.Code,
		Category: string(e.Category),
		Message:  e.Message,
		Detail:   e.Detail,
	}
	json.NewEncoder(w).Encode(body)
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error under a registered code.
// Returns nil if err is nil; returns err unchanged if it already is an *Error.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*Error); ok {
		return ae
	}
	return New(code).Wrap(err)
}
