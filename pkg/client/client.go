// Package client performs single web service calls with authentication,
// timeouts, and error classification.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/ws-nodes/pkg/auth"
	"github.com/Sternrassler/ws-nodes/pkg/settings"
	"github.com/Sternrassler/ws-nodes/pkg/transport"
)

// Prometheus metrics for web service calls.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsnodes_requests_total",
		Help: "Total web service calls by path and status",
	}, []string{"path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wsnodes_request_duration_seconds",
		Help:    "Web service call duration in seconds by path",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"path"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsnodes_errors_total",
		Help: "Total web service call errors by class",
	}, []string{"class"})
)

// snippetLimit bounds the response body kept in service errors.
const snippetLimit = 512

// Call describes one web service request.
type Call struct {
	// Method is GET (parameters in the query string) or POST (form body).
	Method string
	// Path is relative to the service base URL, e.g. "compound/members/pages".
	Path   string
	Params Params
}

// CallResult is a successful response.
type CallResult struct {
	RequestURL string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Client executes web service calls for one node execution.
type Client struct {
	baseURL   *url.URL
	settings  settings.ServiceSettings
	resolver  *auth.Resolver
	selector  *transport.Selector
	userAgent string
	goos      string
	logger    zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Settings is the read-only snapshot for this execution.
	Settings settings.ServiceSettings

	// Preferences supplies the shared base URL when no override is used.
	Preferences settings.Preferences

	// Credentials resolves named credential references. Optional.
	Credentials auth.Provider

	// UserAgent header sent with every call.
	UserAgent string
}

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "ws-nodes/0.1.0"

// New creates a client. Configuration errors are returned before any
// network I/O.
func New(cfg Config) (*Client, error) {
	base, err := cfg.Settings.ResolveBaseURL(cfg.Preferences)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassConfig)).Inc()
		return nil, configError("base URL", err)
	}

	if cfg.Settings.ConnectTimeout <= 0 {
		cfg.Settings.ConnectTimeout = settings.DefaultConnectTimeout
	}
	if cfg.Settings.SocketTimeout <= 0 {
		cfg.Settings.SocketTimeout = settings.DefaultSocketTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	logger := log.With().Str("component", "ws-client").Logger()

	return &Client{
		baseURL:  base,
		settings: cfg.Settings,
		resolver: auth.NewResolver(cfg.Credentials, logger),
		selector: transport.New(transport.Timeouts{
			Connect: cfg.Settings.ConnectTimeout,
			Socket:  cfg.Settings.SocketTimeout,
		}),
		userAgent: cfg.UserAgent,
		goos:      runtime.GOOS,
		logger:    logger,
	}, nil
}

// BaseURL returns the resolved base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Settings returns the settings snapshot the client was built with.
func (c *Client) Settings() settings.ServiceSettings {
	return c.settings
}

// BuildRequest creates the HTTP request for call. The same call always
// produces the same URL and body.
func (c *Client) BuildRequest(ctx context.Context, call Call) (*http.Request, error) {
	method := strings.ToUpper(call.Method)
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodPost {
		return nil, configError("call", fmt.Errorf("unsupported method %q", call.Method))
	}

	u := c.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(call.Path, "/")})
	encoded := call.Params.Encode()

	var body io.Reader
	if method == http.MethodGet {
		u.RawQuery = encoded
	} else {
		body = strings.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, configError("call", fmt.Errorf("create request: %w", err))
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Do performs call. Credentials are resolved for every call and validated
// before the request is sent. There are no retries.
func (c *Client) Do(ctx context.Context, call Call) (*CallResult, error) {
	path := call.Path

	scheme := c.settings.Auth.Scheme
	creds, err := c.resolver.Resolve(ctx, c.settings.Auth)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassConfig)).Inc()
		c.logger.Error().Err(err).Str("path", path).Msg("Credential resolution failed")
		return nil, configError("credentials", err)
	}

	req, err := c.BuildRequest(ctx, call)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassConfig)).Inc()
		return nil, err
	}

	httpClient := &http.Client{Transport: c.selector.RoundTripper(scheme, creds)}

	c.logger.Debug().
		Str("path", path).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("scheme", string(scheme)).
		Msg("Executing web service call")

	start := time.Now()
	resp, err := httpClient.Do(req)
	duration := time.Since(start)
	requestDuration.WithLabelValues(path).Observe(duration.Seconds())

	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(path, "network_error").Inc()
		c.logger.Error().Err(err).Str("path", path).Msg("Web service call failed")
		return nil, &Error{Class: ErrorClassNetwork, Message: req.Method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(path, "network_error").Inc()
		return nil, &Error{Class: ErrorClassNetwork, StatusCode: resp.StatusCode, Message: "read response body", Err: err}
	}

	requestsTotal.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	if err := c.classify(resp, body); err != nil {
		errorsTotal.WithLabelValues(string(err.Class)).Inc()
		c.logger.Warn().
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("error_class", string(err.Class)).
			Msg("Web service call rejected")
		return nil, err
	}

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", duration).
		Msg("Web service call completed")

	return &CallResult{
		RequestURL: req.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   duration,
	}, nil
}

// classify returns nil for 2xx responses.
func (c *Client) classify(resp *http.Response, body []byte) *Error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &Error{
			Class:      ErrorClassAuth,
			StatusCode: resp.StatusCode,
			Message:    "not authorized",
			Hint:       authHint(c.goos),
			Body:       snippet(body),
		}
	default:
		return &Error{
			Class:      ErrorClassService,
			StatusCode: resp.StatusCode,
			Message:    statusText(resp.StatusCode),
			Body:       snippet(body),
		}
	}
}

func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return strings.ToLower(text)
	}
	return "unexpected status"
}

// snippet truncates body to snippetLimit bytes without splitting a rune.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= snippetLimit {
		return s
	}
	cut := snippetLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Close releases pooled connections.
func (c *Client) Close() error {
	c.selector.CloseIdleConnections()
	return nil
}
