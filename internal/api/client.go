package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rickgao/realtime-sync/internal/version"
)

// Defaults for a Client built without options.
const (
	DefaultWriteTimeout = 30 * time.Second
	DefaultWriteRetries = 2
	DefaultRetryBackoff = 500 * time.Millisecond
)

// Client performs entity writes against the Remote Write API. It is the
// mutation.Writer used when operations are replayed.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger

	// A replayed write is retried in-call on 5xx/429/408 before the queue
	// counts it as a failed attempt.
	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient returns a writer for the API rooted at baseURL. An empty token
// sends no Authorization header.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		userAgent:    "realtime-sync/" + version.Version,
		httpClient:   &http.Client{Timeout: DefaultWriteTimeout},
		logger:       slog.Default(),
		maxRetries:   DefaultWriteRetries,
		retryBackoff: DefaultRetryBackoff,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout bounds each write request. Zero keeps the default.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries sets how many times a retryable write is resent within one
// call, and the initial backoff. The backoff doubles, with jitter, per resend.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithUserAgent overrides the User-Agent sent with every write.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the transport, e.g. for tests or a shared pool.
// Apply it before WithTimeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}
