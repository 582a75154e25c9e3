package patternsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dusk-indust/patterngraph/internal/graph"
)

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// HTTPClient implements Client over HTTP with JSON bodies and SSE streams.
type HTTPClient struct {
	base   string
	http   *http.Client
	header http.Header
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the timeout of synchronous calls. Streams end only on
// cancellation or a terminal frame.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithHeader adds a header to every request, e.g. an API key.
func WithHeader(key, value string) ClientOption {
	return func(c *HTTPClient) {
		c.header.Add(key, value)
	}
}

// NewHTTPClient creates a client for the service rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 2 * time.Minute,
		},
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute calls POST {base}/patterns/{kind}.
func (c *HTTPClient) Execute(ctx context.Context, kind graph.PatternKind, req Request) (json.RawMessage, error) {
	httpReq, err := c.newRequest(ctx, c.base+"/patterns/"+string(kind), req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("patternsvc: %s: %w", kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("patternsvc: %s: read response: %w", kind, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, serviceError(kind, resp.StatusCode, body)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("patternsvc: %s: decode result: invalid JSON", kind)
	}
	return json.RawMessage(body), nil
}

// Stream calls POST {base}/patterns/{kind}/stream and reads its SSE frames.
func (c *HTTPClient) Stream(ctx context.Context, kind graph.PatternKind, req Request) (<-chan StreamEvent, error) {
	httpReq, err := c.newRequest(ctx, c.base+"/patterns/"+string(kind)+"/stream", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	// Same transport, no overall deadline.
	streamClient := *c.http
	streamClient.Timeout = 0

	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("patternsvc: %s stream: %w", kind, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, serviceError(kind, resp.StatusCode, body)
	}
	return ReadEvents(ctx, resp.Body), nil
}

func (c *HTTPClient) newRequest(ctx context.Context, url string, req Request) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("patternsvc: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("patternsvc: create request: %w", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

// serviceError builds a ServiceError, preferring the JSON error message.
func serviceError(kind graph.PatternKind, status int, body []byte) *ServiceError {
	msg := strings.TrimSpace(string(body))
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		msg = eb.Error
	}
	return &ServiceError{Pattern: kind, StatusCode: status, Message: msg}
}
