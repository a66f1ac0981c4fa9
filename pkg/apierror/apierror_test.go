package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	cases := map[Code]int{
		CodeNotFound:           http.StatusNotFound,
		CodeForbidden:          http.StatusForbidden,
		CodeBadRequest:         http.StatusBadRequest,
		CodeValidation:         http.StatusBadRequest,
		CodeUnauthorized:       http.StatusUnauthorized,
		CodeConflict:           http.StatusConflict,
		CodeMethodNotAllowed:   http.StatusMethodNotAllowed,
		CodeTooManyRequests:    http.StatusTooManyRequests,
		CodeServiceUnavailable: http.StatusServiceUnavailable,
		CodeInternal:           http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, Status(code), string(code))
	}
}

func TestFromPassesTypedErrors(t *testing.T) {
	orig := NotFound("users %q not found", "u1")
	got := From(orig)
	assert.Equal(t, CodeNotFound, got.Code)
	assert.Equal(t, `users "u1" not found`, got.Message)

	// Wrapped typed errors still surface.
	wrapped := fmt.Errorf("pipeline: %w", orig)
	got = From(wrapped)
	assert.Equal(t, CodeNotFound, got.Code)
}

func TestFromHidesUnknownErrors(t *testing.T) {
	got := From(errors.New("pq: connection refused to 10.0.0.5"))
	assert.Equal(t, CodeInternal, got.Code)
	assert.Equal(t, "internal server error", got.Message)
	assert.NotContains(t, got.Message, "10.0.0.5")
}

func TestFromStripsIllegalDetails(t *testing.T) {
	bad := &Error{
		Code:    CodeForbidden,
		Message: "nope",
		Details: []FieldError{{Field: "password_hash", Message: "leak"}},
	}
	got := From(bad)
	assert.Equal(t, CodeForbidden, got.Code)
	assert.Nil(t, got.Details)

	ok := Validation("invalid input", []FieldError{{Field: "email", Message: "required"}})
	got = From(ok)
	require.Len(t, got.Details, 1)
	assert.Equal(t, "email", got.Details[0].Field)
}

func TestWriteEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, Validation("invalid input", []FieldError{{Field: "email", Message: "required"}}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Error struct {
			Code    string       `json:"code"`
			Message string       `json:"message"`
			Details []FieldError `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ValidationError", body.Error.Code)
	assert.Equal(t, "invalid input", body.Error.Message)
	require.Len(t, body.Error.Details, 1)
}

func TestWriteOmitsEmptyDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, Forbidden("no"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "details")
}
