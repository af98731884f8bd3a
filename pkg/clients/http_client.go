// Package clients provides the HTTP client used to talk to the Admin API
package clients

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/logger"
	"github.com/Matatika/tap-shopify/pkg/metrics"
	"github.com/Matatika/tap-shopify/pkg/observability"
)

// maxErrorBody bounds how much of an error response is kept for diagnostics
const maxErrorBody = 512

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// Timeouts
	RequestTimeout  time.Duration `json:"request_timeout"`
	DialTimeout     time.Duration `json:"dial_timeout"`
	IdleConnTimeout time.Duration `json:"idle_conn_timeout"`
	KeepAlive       time.Duration `json:"keep_alive"`

	MaxIdleConnsPerHost int  `json:"max_idle_conns_per_host"`
	EnableHTTP2         bool `json:"enable_http2"`

	// Rate limiting
	RateLimit float64 `json:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst int     `json:"rate_burst"`

	// Circuit breaker
	CircuitBreakerEnabled bool          `json:"circuit_breaker_enabled"`
	FailureThreshold      int           `json:"failure_threshold"`
	Timeout               time.Duration `json:"timeout"`

	UserAgent string `json:"user_agent"`
}

// DefaultHTTPConfig returns default configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		RequestTimeout:        60 * time.Second,
		DialTimeout:           10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		KeepAlive:             30 * time.Second,
		MaxIdleConnsPerHost:   4,
		EnableHTTP2:           true,
		RateLimit:             2,
		RateBurst:             4,
		CircuitBreakerEnabled: true,
		FailureThreshold:      10,
		Timeout:               30 * time.Second,
	}
}

// HTTPConfigFromTap maps tap settings onto an HTTPConfig.
func HTTPConfigFromTap(cfg *config.TapConfig) *HTTPConfig {
	hc := DefaultHTTPConfig()
	hc.RequestTimeout = cfg.Timeouts.Request
	hc.DialTimeout = cfg.Timeouts.Connection
	hc.IdleConnTimeout = cfg.Timeouts.Idle
	hc.RateLimit = cfg.Reliability.RateLimitPerSec
	hc.RateBurst = int(2 * cfg.Reliability.RateLimitPerSec)
	hc.CircuitBreakerEnabled = cfg.Reliability.CircuitBreaker
	hc.FailureThreshold = cfg.Reliability.CircuitBreakerThreshold
	hc.Timeout = cfg.Reliability.CircuitBreakerTimeout
	hc.UserAgent = cfg.UserAgent
	return hc
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

// HTTPClient performs single GET attempts against the API with rate
// limiting and circuit breaking. Retries are left to the caller.
type HTTPClient struct {
	config     *HTTPConfig
	logger     *zap.Logger
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *CircuitBreaker

	totalRequests  int64
	failedRequests int64
}

// Option customizes an HTTPClient
type Option func(*HTTPClient)

// WithRoundTripper replaces the transport, mainly for tests.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(c *HTTPClient) {
		c.httpClient.Transport = rt
	}
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(cfg *HTTPConfig, log *zap.Logger, opts ...Option) *HTTPClient {
	if cfg == nil {
		cfg = DefaultHTTPConfig()
	}
	if log == nil {
		log = logger.Get()
	}

	client := &HTTPClient{
		config: cfg,
		logger: log.With(zap.String("component", "http_client")),
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			client.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	client.httpClient = &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if cfg.CircuitBreakerEnabled {
		client.breaker = NewCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			Timeout:          cfg.Timeout,
		}, client.logger)
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// StandardClient returns the underlying *http.Client, e.g. for oauth2
// token requests that should share the transport.
func (c *HTTPClient) StandardClient() *http.Client {
	return c.httpClient
}

// Get performs one GET request and reads the whole body. Non-2xx
// responses are returned as *errors.Error typed by status code; 429 and
// 503 responses carry a "retry_after" detail when the server sent one.
func (c *HTTPClient) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	stream, _ := ctx.Value(logger.StreamKey).(string)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "rate limiter wait aborted")
		}
	}

	if c.breaker != nil && !c.breaker.Allow() {
		atomic.AddInt64(&c.failedRequests, 1)
		return nil, errors.New(errors.ErrorTypeCircuitOpen, "circuit breaker is open").
			WithDetail("url", url)
	}

	ctx, span := observability.StartSpan(ctx, "http.get",
		attribute.String("http.url", url),
		attribute.String("stream", stream))
	resp, err := c.do(ctx, stream, url, header)
	observability.EndSpan(span, err)
	return resp, err
}

func (c *HTTPClient) do(ctx context.Context, stream, url string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to build request").
			WithDetail("url", url)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if req.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	atomic.AddInt64(&c.totalRequests, 1)
	timer := metrics.NewTimer()

	resp, err := c.httpClient.Do(req)
	metrics.RequestLatency.WithLabelValues(stream).Observe(timer.Stop().Seconds())
	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		metrics.HTTPRequests.WithLabelValues(stream, "error").Inc()
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "request cancelled").
				WithDetail("url", url)
		}
		c.recordFailure()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed").
			WithDetail("url", url)
	}
	defer resp.Body.Close()

	metrics.HTTPRequests.WithLabelValues(stream, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		c.recordFailure()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response body").
			WithDetail("url", url)
	}

	if resp.StatusCode >= 300 {
		atomic.AddInt64(&c.failedRequests, 1)
		if resp.StatusCode >= 500 {
			c.recordFailure()
		} else if c.breaker != nil {
			// client errors mean the API itself is reachable
			c.breaker.RecordSuccess()
		}

		e := errors.FromHTTPStatus(resp.StatusCode, url)
		if len(body) > 0 {
			e = e.WithDetail("body", truncate(string(body), maxErrorBody))
		}
		if d, ok := ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			e = e.WithDetail("retry_after", d)
		}

		c.logger.Debug("request failed",
			zap.String("url", url),
			zap.String("stream", stream),
			zap.Int("status", resp.StatusCode))
		return nil, e
	}

	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		URL:        url,
	}, nil
}

func (c *HTTPClient) recordFailure() {
	if c.breaker != nil {
		c.breaker.RecordFailure()
	}
}

// Stats returns request counters.
func (c *HTTPClient) Stats() (total, failed int64) {
	return atomic.LoadInt64(&c.totalRequests), atomic.LoadInt64(&c.failedRequests)
}

// Close releases idle connections
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// ParseRetryAfter parses a Retry-After header given either as seconds
// (fractions allowed, as the Admin API sends "2.0") or as an HTTP date.
func ParseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
