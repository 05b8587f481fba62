package response_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atharai/relay/internal/api/response"
	"github.com/stretchr/testify/assert"
)

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	response.JSON(rec, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"hello":"world"}}`, rec.Body.String())
}

func TestAccepted(t *testing.T) {
	rec := httptest.NewRecorder()
	response.Accepted(rec, map[string]string{"job_id": "abc"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"data":{"job_id":"abc"}}`, rec.Body.String())
}

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	response.Error(rec, http.StatusBadRequest, "INVALID_REQUEST", "prompt is required", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"INVALID_REQUEST","message":"prompt is required"}}`, rec.Body.String())
}

func TestError_WithDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	response.Error(rec, http.StatusBadRequest, "PROMPT_TOO_LONG", "prompt exceeds maximum length",
		map[string]int{"max_length": 20000})

	assert.JSONEq(t,
		`{"error":{"code":"PROMPT_TOO_LONG","message":"prompt exceeds maximum length","details":{"max_length":20000}}}`,
		rec.Body.String())
}
