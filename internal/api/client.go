package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client provides access to the messaging REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client. token may be empty for
// unauthenticated calls; otherwise it is sent as a bearer token.
//
// Defaults: a 10s per-request timeout, 3 retries starting at a 1s backoff,
// and slog.Default for logging. A trailing slash on baseURL is dropped so
// paths can be joined with a leading "/".
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the per-request timeout (default 10s). It mutates the
// current HTTP client, so after WithHTTPClient it changes the supplied one.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets how many times an idempotent request is retried and the
// initial backoff. The backoff doubles per attempt with ±50% jitter. Only
// 5xx and 429 responses are retried; SendMessage never is. max 0 disables
// retries.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger. nil keeps the current one.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the HTTP client, including its timeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}
