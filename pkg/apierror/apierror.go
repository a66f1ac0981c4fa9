package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vertzdev/vertz/pkg/logger"
)

// Code identifies a known error kind. Codes are part of the wire contract
// and must stay stable.
type Code string

const (
	CodeNotFound           Code = "NotFound"
	CodeForbidden          Code = "Forbidden"
	CodeBadRequest         Code = "BadRequest"
	CodeUnauthorized       Code = "Unauthorized"
	CodeConflict           Code = "Conflict"
	CodeValidation         Code = "ValidationError"
	CodeMethodNotAllowed   Code = "MethodNotAllowed"
	CodeTooManyRequests    Code = "TooManyRequests"
	CodeServiceUnavailable Code = "ServiceUnavailable"
	CodeInternal           Code = "InternalError"
)

// internalMessage is the only message unrecognized errors may surface.
const internalMessage = "internal server error"

// Error is a typed API failure. Pipelines return *Error values; the route
// layer converts them to HTTP exactly once via Write.
type Error struct {
	Code    Code
	Message string

	// Details carries field-level messages and is only ever populated for
	// CodeValidation. Every other kind must leave it nil so internal state
	// and hidden column names cannot leak through error responses.
	Details []FieldError
}

// FieldError is a single field-level validation failure
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

func BadRequest(format string, args ...interface{}) *Error {
	return &Error{Code: CodeBadRequest, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...interface{}) *Error {
	return &Error{Code: CodeUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

func MethodNotAllowed(format string, args ...interface{}) *Error {
	return &Error{Code: CodeMethodNotAllowed, Message: fmt.Sprintf(format, args...)}
}

func TooManyRequests(format string, args ...interface{}) *Error {
	return &Error{Code: CodeTooManyRequests, Message: fmt.Sprintf(format, args...)}
}

func ServiceUnavailable(format string, args ...interface{}) *Error {
	return &Error{Code: CodeServiceUnavailable, Message: fmt.Sprintf(format, args...)}
}

func Internal() *Error {
	return &Error{Code: CodeInternal, Message: internalMessage}
}

// Validation builds the only error kind allowed to carry details
func Validation(message string, details []FieldError) *Error {
	return &Error{Code: CodeValidation, Message: message, Details: details}
}

// Status maps a code to its canonical HTTP status
func Status(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeConflict:
		return http.StatusConflict
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// responseBody is the wire shape: { "error": { code, message, details? } }
type responseBody struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    Code         `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// From normalizes any error into an *Error. Unrecognized errors become a
// fixed InternalError; their message and stack never survive the mapping.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Code != CodeValidation && apiErr.Details != nil {
			// Details outside ValidationError are a contract violation.
			apiErr = &Error{Code: apiErr.Code, Message: apiErr.Message}
		}
		return apiErr
	}
	logger.Error("Unrecognized error mapped to InternalError: %v", err)
	return Internal()
}

// Write converts an error into the HTTP response. This is the single
// boundary between typed pipeline failures and the transport.
func Write(w http.ResponseWriter, err error) {
	apiErr := From(err)
	status := Status(apiErr.Code)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(responseBody{Error: errorBody{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}}); encErr != nil {
		logger.Error("Error writing error response: %v", encErr)
	}
}
