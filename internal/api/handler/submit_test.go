package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atharai/relay/internal/api/handler"
	"github.com/atharai/relay/internal/store"
	"github.com/atharai/relay/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTiers = map[string]string{
	"fast":    "distilgpt2",
	"quality": "mistralai/Mistral-7B-Instruct-v0.2",
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/inference", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, v))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestSubmitText_Accepted(t *testing.T) {
	st := store.NewMemoryStore()
	h := handler.NewSubmitTextHandler(st, testTiers)

	rec := postJSON(t, h, `{"prompt":"hello","parameters":{"temperature":0.7}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		JobID  uuid.UUID `json:"job_id"`
		JobTag string    `json:"job_tag"`
	}
	decodeData(t, rec, &resp)
	assert.NotEqual(t, uuid.Nil, resp.JobID)
	assert.Len(t, resp.JobTag, 12)

	job, err := st.GetJob(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, models.JobTypeText, job.Type)
	assert.Equal(t, "distilgpt2", job.Model, "default tier model is chosen server-side")
	assert.Equal(t, "hello", job.Prompt)
	assert.Equal(t, map[string]any{"temperature": 0.7}, job.Parameters)
}

func TestSubmitText_QualityTier(t *testing.T) {
	st := store.NewMemoryStore()
	h := handler.NewSubmitTextHandler(st, testTiers)

	rec := postJSON(t, h, `{"prompt":"hello","quality":"quality"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		JobID uuid.UUID `json:"job_id"`
	}
	decodeData(t, rec, &resp)

	job, err := st.GetJob(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, "mistralai/Mistral-7B-Instruct-v0.2", job.Model)
}

func TestSubmitText_UnknownQuality(t *testing.T) {
	h := handler.NewSubmitTextHandler(store.NewMemoryStore(), testTiers)

	rec := postJSON(t, h, `{"prompt":"hello","quality":"gpt2-xl"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_QUALITY", errorCode(t, rec))
}

func TestSubmitText_MissingPrompt(t *testing.T) {
	h := handler.NewSubmitTextHandler(store.NewMemoryStore(), testTiers)

	for _, body := range []string{`{}`, `{"prompt":""}`, `{"prompt":"   "}`} {
		rec := postJSON(t, h, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
		assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
	}
}

func TestSubmitText_PromptTooLong(t *testing.T) {
	st := store.NewMemoryStore()
	h := handler.NewSubmitTextHandler(st, testTiers)

	long := strings.Repeat("a", handler.MaxTextPromptLen+1)
	rec := postJSON(t, h, `{"prompt":"`+long+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PROMPT_TOO_LONG", errorCode(t, rec))

	// boundary length is accepted
	exact := strings.Repeat("a", handler.MaxTextPromptLen)
	rec = postJSON(t, h, `{"prompt":"`+exact+`"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSubmitText_InvalidJSON(t *testing.T) {
	h := handler.NewSubmitTextHandler(store.NewMemoryStore(), testTiers)

	rec := postJSON(t, h, `{"prompt":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitImage_ShorterPromptLimit(t *testing.T) {
	st := store.NewMemoryStore()
	h := handler.NewSubmitImageHandler(st, map[string]string{"fast": "runwayml/stable-diffusion-v1-5"})

	long := strings.Repeat("a", handler.MaxImagePromptLen+1)
	rec := postJSON(t, h, `{"prompt":"`+long+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h, `{"prompt":"a cat"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		JobID uuid.UUID `json:"job_id"`
	}
	decodeData(t, rec, &resp)
	job, err := st.GetJob(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobTypeImage, job.Type)
}
