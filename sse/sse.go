// Package sse implements pulse.Transport over HTTP server-sent events.
package sse

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/fwojciec/pulse"
)

// Interface compliance check.
var _ pulse.Transport = (*Client)(nil)

// maxErrorBody bounds how much of a non-2xx response is kept for the error.
const maxErrorBody = 4 << 10

// Client opens event streams with plain GET requests.
type Client struct {
	httpClient *http.Client
	header     http.Header
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The client must not set a
// Timeout: it would cut off long-running streams. Use the context instead.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Add(key, value) }
}

// New creates a [Client].
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		header:     make(http.Header),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open sends GET <endpoint>?query=..&request_id=..[&retry_attempt=n] and
// returns once the server has answered with an event stream.
func (c *Client) Open(ctx context.Context, req pulse.Request) (pulse.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("sse: %w", err)
	}
	u, err := req.URL()
	if err != nil {
		return nil, fmt.Errorf("sse: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("sse: %w", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sse: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		resp.Body.Close()
		return nil, fmt.Errorf("sse: unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	return newStream(ctx, resp.Body), nil
}

// HTTPError is returned by Open when the server rejects the request.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sse: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("sse: HTTP %d: %s", e.StatusCode, e.Body)
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("sse: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// ServerError is returned by Stream.Next when the server sends an error
// event. The stream is finished; the request may be retried.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "sse: server error: " + e.Message
}
