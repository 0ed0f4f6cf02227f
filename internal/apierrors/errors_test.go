package apierrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fredphp/yunwei/internal/correlation"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/repository"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"input", fmt.Errorf("parsing: %w", model.NewInputError("range", "2w", "must be one of 7d, 30d, 90d")), http.StatusUnprocessableEntity, "VALIDATION_ERROR", false},
		{"not found", fmt.Errorf("waste finding w1: %w", model.ErrNotFound), http.StatusNotFound, "NOT_FOUND", false},
		{"transition", fmt.Errorf("resolved -> open: %w", model.ErrInvalidTransition), http.StatusConflict, "CONFLICT", false},
		{"store", fmt.Errorf("saving: %w", &repository.StoreError{Op: "upsert", Err: errors.New("reset")}), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", true},
		{"api error", NewBadRequestError("bad body"), http.StatusBadRequest, "BAD_REQUEST", false},
		{"other", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.retryable, got.Retryable)
		})
	}
}

func TestValidationDetailsNameField(t *testing.T) {
	got := FromError(model.NewInputError("category", "gpu", "unknown category"))
	assert.Equal(t, map[string]string{"field": "category", "value": "gpu", "reason": "unknown category"}, got.Details)
}

func TestWriteIncludesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(correlation.WithID(req.Context(), "req-9"))
	rec := httptest.NewRecorder()

	NewServiceUnavailableError("data store").Write(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "req-9", body["request_id"])
	assert.Equal(t, true, body["retryable"])
}

func TestErrorHandlerRecovers(t *testing.T) {
	h := ErrorHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("nil map") }))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
