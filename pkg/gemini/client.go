// Package gemini performs text generation against the Gemini generateContent
// REST API. The dependency is optional: an empty API key yields a disabled
// client and every pipeline call site falls back to deterministic output.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ukfreecomps/pipeline/internal/resilience"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = eris.New("gemini: no API key configured")

// Client generates text from a single natural-language prompt.
type Client interface {
	// GenerateText returns plain prose (narrative path).
	GenerateText(ctx context.Context, model string, req TextRequest) (string, error)
	// GenerateJSON requests a JSON-only response (enrichment path).
	GenerateJSON(ctx context.Context, model, prompt string) (string, error)
	// Enabled reports whether the dependency is configured.
	Enabled() bool
}

// TextRequest holds generation parameters for the narrative path.
type TextRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// generateContentRequest is the wire request body.
type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  *int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

// generateContentResponse mirrors the nested candidate/part response shape.
type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithBreaker installs a circuit breaker in front of every call, so a hard
// outage short-circuits to the fallback path without paying the request
// timeout per message.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) {
		c.breaker = cb
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	breaker *resilience.CircuitBreaker
}

// NewClient creates a Gemini API client. An empty apiKey produces a disabled
// client whose calls return ErrDisabled.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Enabled() bool {
	return c.apiKey != ""
}

func (c *httpClient) GenerateText(ctx context.Context, model string, req TextRequest) (string, error) {
	body := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		gc := &generationConfig{}
		if req.Temperature > 0 {
			gc.Temperature = &req.Temperature
		}
		if req.MaxTokens > 0 {
			gc.MaxOutputTokens = &req.MaxTokens
		}
		body.GenerationConfig = gc
	}
	return c.generate(ctx, model, body)
}

func (c *httpClient) GenerateJSON(ctx context.Context, model, prompt string) (string, error) {
	body := generateContentRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{ResponseMimeType: "application/json"},
	}
	return c.generate(ctx, model, body)
}

func (c *httpClient) generate(ctx context.Context, model string, reqBody generateContentRequest) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			return "", err
		}
	}

	text, err := c.doGenerate(ctx, model, reqBody)
	if c.breaker != nil {
		c.breaker.Record(err)
	}
	return text, err
}

func (c *httpClient) doGenerate(ctx context.Context, model string, reqBody generateContentRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", eris.Wrap(err, "gemini: marshal request")
	}

	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	endpoint := c.baseURL + "/" + model + ":generateContent?key=" + url.QueryEscape(c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "gemini: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "gemini: send request"), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "gemini: read response"), 0)
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("gemini: unexpected status %d (%s): %s",
			resp.StatusCode, time.Since(start).Round(time.Millisecond), truncate(string(respBody), 200))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(err, resp.StatusCode)
		}
		return "", err
	}

	var result generateContentResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", eris.Wrap(err, "gemini: unmarshal response")
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", eris.New("gemini: response had no candidates")
	}
	text := strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", eris.New("gemini: response had no text content")
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
