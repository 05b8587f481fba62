package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atharai/relay/internal/api"
	"github.com/atharai/relay/internal/api/handler"
	mw "github.com/atharai/relay/internal/api/middleware"
	"github.com/atharai/relay/internal/api/response"
	"github.com/atharai/relay/internal/cache"
	"github.com/atharai/relay/internal/inference"
	"github.com/atharai/relay/internal/store"
	"github.com/atharai/relay/internal/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer wires the full stack against in-memory backends and a mocked
// remote client, with a fast worker poll so tests finish quickly.
func newTestServer(t *testing.T, client inference.Client) (*httptest.Server, store.Store) {
	t.Helper()

	st := store.NewMemoryStore()
	ca := cache.NewMemoryCache()

	wk := worker.New(st, ca, client, 10*time.Millisecond, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go wk.Start(ctx)

	tiers := map[string]string{"fast": "distilgpt2"}
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(ca, 1000),

		HealthHandler: func(w http.ResponseWriter, r *http.Request) {
			response.JSON(w, map[string]string{"status": "ok"})
		},
		StatsHandler:       handler.NewStatsHandler(st),
		SubmitTextHandler:  handler.NewSubmitTextHandler(st, tiers),
		SubmitImageHandler: handler.NewSubmitImageHandler(st, tiers),
		JobStatusHandler:   handler.NewJobStatusHandler(st),
		JobStreamHandler:   handler.NewJobStreamHandler(st, 10*time.Millisecond),
		HistoryHandler:     handler.NewHistoryHandler(st),
		ClearHandler:       handler.NewClearHandler(st, true),
	}

	srv := httptest.NewServer(api.NewRouter(deps))
	t.Cleanup(srv.Close)
	return srv, st
}

func submit(t *testing.T, srv *httptest.Server, path, body string) uuid.UUID {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var envelope struct {
		Data struct {
			JobID  uuid.UUID `json:"job_id"`
			JobTag string    `json:"job_tag"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NotEqual(t, uuid.Nil, envelope.Data.JobID)
	require.Len(t, envelope.Data.JobTag, 12)
	return envelope.Data.JobID
}

func waitForResult(t *testing.T, srv *httptest.Server, jobID uuid.UUID) (result json.RawMessage, cached bool) {
	t.Helper()
	resp, err := http.Get(srv.URL + "/inference/stream/" + jobID.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var (
		event   string
		sawEnd  bool
		payload struct {
			Result json.RawMessage `json:"result"`
			Cached bool            `json:"cached"`
			Error  string          `json:"error"`
		}
	)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			switch event {
			case "result":
				require.NoError(t, json.Unmarshal([]byte(data), &payload))
				result = payload.Result
				cached = payload.Cached
			case "error":
				require.NoError(t, json.Unmarshal([]byte(data), &payload))
				t.Fatalf("stream reported error: %s", payload.Error)
			case "end":
				sawEnd = true
			}
		}
	}
	require.True(t, sawEnd, "stream must always finish with an end event")
	require.NotNil(t, result, "stream closed without a result event")
	return result, cached
}

func TestEndToEnd_SubmitStreamHistory(t *testing.T) {
	client := &inference.Mock{
		GenerateTextFunc: func(_ context.Context, _, prompt string, _ map[string]any) (json.RawMessage, error) {
			assert.Equal(t, "hello", prompt)
			return json.RawMessage(`"hi there"`), nil
		},
	}
	srv, _ := newTestServer(t, client)

	jobID := submit(t, srv, "/inference", `{"prompt":"hello"}`)

	result, cached := waitForResult(t, srv, jobID)
	assert.JSONEq(t, `"hi there"`, string(result))
	assert.False(t, cached)

	// the completed exchange shows up in history
	resp, err := http.Get(srv.URL + "/inference/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history struct {
		Data []struct {
			Prompt string          `json:"prompt"`
			Result json.RawMessage `json:"result"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history.Data, 1)
	assert.Equal(t, "hello", history.Data[0].Prompt)
	assert.JSONEq(t, `"hi there"`, string(history.Data[0].Result))
}

func TestEndToEnd_DuplicateSubmitServedFromCache(t *testing.T) {
	var calls int
	client := &inference.Mock{
		GenerateTextFunc: func(context.Context, string, string, map[string]any) (json.RawMessage, error) {
			calls++
			return json.RawMessage(`"hi there"`), nil
		},
	}
	srv, _ := newTestServer(t, client)

	first := submit(t, srv, "/inference", `{"prompt":"hello"}`)
	firstResult, firstCached := waitForResult(t, srv, first)
	assert.False(t, firstCached)

	second := submit(t, srv, "/inference", `{"prompt":"hello"}`)
	secondResult, secondCached := waitForResult(t, srv, second)
	assert.True(t, secondCached, "identical request is served from the result cache")
	assert.JSONEq(t, string(firstResult), string(secondResult))
	assert.Equal(t, 1, calls, "the remote API is hit once for identical requests")
}

func TestEndToEnd_FailedJobVisibleInStatus(t *testing.T) {
	client := &inference.Mock{
		GenerateTextFunc: func(context.Context, string, string, map[string]any) (json.RawMessage, error) {
			return nil, assert.AnError
		},
	}
	srv, _ := newTestServer(t, client)

	jobID := submit(t, srv, "/inference", `{"prompt":"doomed"}`)

	// poll status until the worker marks the job failed
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(srv.URL + "/inference/status/" + jobID.String())
		require.NoError(t, err)

		var envelope struct {
			Data struct {
				Status string  `json:"status"`
				Error  *string `json:"error"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
		resp.Body.Close()

		if envelope.Data.Status == "failed" {
			require.NotNil(t, envelope.Data.Error)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never failed, last status %q", envelope.Data.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRouter_ClearWipesEverything(t *testing.T) {
	client := &inference.Mock{}
	srv, st := newTestServer(t, client)

	jobID := submit(t, srv, "/inference", `{"prompt":"hello"}`)
	waitForResult(t, srv, jobID)

	resp, err := http.Post(srv.URL+"/inference/clear", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	count, err := st.CountChats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	statusResp, err := http.Get(srv.URL + "/inference/status/" + jobID.String())
	require.NoError(t, err)
	statusResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, statusResp.StatusCode)
}

func TestRouter_HealthAndStats(t *testing.T) {
	srv, _ := newTestServer(t, &inference.Mock{})

	for _, path := range []string{"/health", "/stats"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestRouter_RejectsOversizedBody(t *testing.T) {
	srv, _ := newTestServer(t, &inference.Mock{})

	body := `{"prompt":"` + strings.Repeat("a", 250*1024) + `"}`
	resp, err := http.Post(srv.URL+"/inference", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
