package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPStatusError captures non-2xx upstream responses with status-aware
// context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("chat: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused OpenAI-compatible client for the chat-completions
// endpoint, in both buffered and streaming form.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      RetryConfig
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRetry enables backoff retries for upstream calls. Every request is
// sent at most once unless this is set; callers opting in accept that a
// completion request may reach the upstream more than once.
func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// NewClient creates a client for the given OpenAI-compatible endpoint.
// baseURL points at the API root; "/v1" is appended when missing.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("chat: base URL must not be empty")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("chat: API key must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func completionsURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

func (c *Client) newRequest(ctx context.Context, url string, payload completionRequest) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("chat: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chat: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// Complete performs a buffered chat completion and returns the full
// assistant turn. Requests are sent at most once unless the client was
// built with WithRetry.
func (c *Client) Complete(ctx context.Context, payload completionRequest) (*completionResponse, error) {
	return withRetry(ctx, c.retry, func() (*completionResponse, error) {
		return c.complete(ctx, payload)
	})
}

func (c *Client) complete(ctx context.Context, payload completionRequest) (*completionResponse, error) {
	payload.Stream = false
	url := completionsURL(c.baseURL)

	req, err := c.newRequest(ctx, url, payload)
	if err != nil {
		return nil, err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("chat: read response body: %w", err)
	}

	var out completionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("chat: decode response: %w", err)
	}
	return &out, nil
}

// Stream performs a streaming chat completion. The returned stream must be
// closed by the caller. When retries are enabled, only connection
// establishment retries; once the event stream is open, failures surface
// through Recv.
func (c *Client) Stream(ctx context.Context, payload completionRequest) (*CompletionStream, error) {
	return withRetry(ctx, c.retry, func() (*CompletionStream, error) {
		return c.stream(ctx, payload)
	})
}

func (c *Client) stream(ctx context.Context, payload completionRequest) (*CompletionStream, error) {
	payload.Stream = true
	url := completionsURL(c.baseURL)

	req, err := c.newRequest(ctx, url, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat: request failed: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		_ = res.Body.Close()
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &CompletionStream{body: res.Body, scanner: scanner}, nil
}

// CompletionStream decodes server-sent events from a streaming completion.
// Events arrive as "data: <json>" lines; the stream ends at the "[DONE]"
// sentinel or when the body closes.
type CompletionStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// Recv returns the next chunk, or io.EOF when the stream is exhausted.
// Lines that are not data events, and data payloads that fail to parse,
// are skipped.
func (s *CompletionStream) Recv() (streamChunk, error) {
	if s.done {
		return streamChunk{}, io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			s.done = true
			return streamChunk{}, io.EOF
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		return chunk, nil
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return streamChunk{}, fmt.Errorf("chat: read stream: %w", err)
	}
	return streamChunk{}, io.EOF
}

func (s *CompletionStream) Close() error {
	return s.body.Close()
}
