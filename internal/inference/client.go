// Package inference calls the hosted text/image generation API and normalizes
// its success and failure modes for the worker.
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atharai/relay/internal/config"
)

// Sentinel errors for inference failures.
var (
	ErrInvalidResponse = errors.New("provider returned invalid response")
	ErrEmptyImage      = errors.New("provider returned empty image")
	ErrImageTooLarge   = errors.New("image exceeds maximum size")
)

// maxImageBytes bounds stored image payloads (5 MB before base64 expansion).
const maxImageBytes = 5 << 20

// Client is the interface the worker dispatches remote calls through.
// Results come back as JSON payloads ready to persist on the job: text is a
// JSON string or the provider's JSON structure, images a base64 data URI.
type Client interface {
	GenerateText(ctx context.Context, model, prompt string, params map[string]any) (json.RawMessage, error)
	GenerateImage(ctx context.Context, model, prompt string, params map[string]any) (json.RawMessage, error)
}

// HTTPClient implements Client against a Hugging Face-style inference API:
// POST {base}/models/{model} with {"inputs": ..., "parameters": ...}.
// It holds no per-call state; retries and backoff happen inside each call.
type HTTPClient struct {
	baseURL     string
	token       string
	maxRetries  int
	backoffBase time.Duration
	textClient  *http.Client
	imageClient *http.Client

	// sleep is swapped out by tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewHTTPClient creates a new HTTPClient.
func NewHTTPClient(cfg config.InferenceConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		token:       cfg.APIToken,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		textClient:  &http.Client{Timeout: cfg.TextTimeout},
		imageClient: &http.Client{Timeout: cfg.ImageTimeout},
		sleep:       sleepCtx,
	}
}

type requestBody struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (c *HTTPClient) GenerateText(ctx context.Context, model, prompt string, params map[string]any) (json.RawMessage, error) {
	body, err := c.post(ctx, c.textClient, model, prompt, params)
	if err != nil {
		return nil, err
	}
	return normalizeText(body)
}

func (c *HTTPClient) GenerateImage(ctx context.Context, model, prompt string, params map[string]any) (json.RawMessage, error) {
	body, err := c.post(ctx, c.imageClient, model, prompt, params)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrEmptyImage
	}
	if len(body) > maxImageBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrImageTooLarge, len(body))
	}

	mime := http.DetectContentType(body)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/png"
	}
	uri := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(body)
	return json.Marshal(uri)
}

// post issues the request with up to maxRetries attempts. Transport timeouts,
// 503 (model loading), 429 and 5xx are retried with a linearly increasing
// delay; rate limits wait four times longer. Any other non-2xx status fails
// immediately with the response body in the error.
func (c *HTTPClient) post(ctx context.Context, hc *http.Client, model, prompt string, params map[string]any) ([]byte, error) {
	payload, err := json.Marshal(requestBody{Inputs: prompt, Parameters: params})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	endpoint := c.baseURL + "/models/" + url.PathEscape(model)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		body, rerr := c.once(ctx, hc, endpoint, payload)
		if rerr == nil {
			return body, nil
		}
		lastErr = rerr

		var remote *remoteError
		retryable := errors.As(rerr, &remote) && remote.retryable
		if !retryable {
			return nil, rerr
		}
		if attempt == c.maxRetries {
			break
		}

		delay := c.backoffBase * time.Duration(attempt)
		if remote.rateLimited {
			delay *= 4
		}
		slog.Warn("inference call failed, retrying",
			"model", model, "attempt", attempt, "delay", delay, "error", rerr)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("inference failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *HTTPClient) once(ctx context.Context, hc *http.Client, endpoint string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, &remoteError{status: resp.StatusCode, retryable: true, cause: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusServiceUnavailable:
		// HF returns 503 with an estimated_time while the model loads
		return nil, &remoteError{status: resp.StatusCode, body: string(body), retryable: true}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &remoteError{status: resp.StatusCode, body: string(body), retryable: true, rateLimited: true}
	case resp.StatusCode >= 500:
		return nil, &remoteError{status: resp.StatusCode, body: string(body), retryable: true}
	default:
		return nil, &remoteError{status: resp.StatusCode, body: string(body)}
	}
}

// normalizeText applies the provider's text response conventions: a list whose
// first element carries generated_text yields that string, a bare JSON string
// passes through, and any other valid JSON is returned as-is.
func normalizeText(body []byte) (json.RawMessage, error) {
	var list []struct {
		GeneratedText *string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 && list[0].GeneratedText != nil {
		return json.Marshal(*list[0].GeneratedText)
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidResponse)
	}
	return json.RawMessage(body), nil
}

type remoteError struct {
	status      int
	body        string
	retryable   bool
	rateLimited bool
	cause       error
}

func (e *remoteError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("inference request failed (status %d): %v", e.status, e.cause)
	}
	return fmt.Sprintf("inference request failed (status %d): %s", e.status, e.body)
}

func (e *remoteError) Unwrap() error { return e.cause }

// classifyTransportError treats timeouts and connection failures as
// retryable. A cancelled context means the caller is gone, not the provider.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &remoteError{retryable: true, cause: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
