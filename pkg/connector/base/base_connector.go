// Package base provides the building blocks every REST tap is made of:
// BaseTap (HTTP client, authentication, retries, error accounting),
// declarative Stream definitions and the Syncer that walks them and emits
// Singer messages.
//
// # Usage
//
// A tap embeds BaseTap and declares its streams:
//
//	type MyTap struct {
//	    *base.BaseTap
//	    streams []*base.Stream
//	}
//
//	func NewMyTap(cfg *config.TapConfig) (*MyTap, error) {
//	    bt, err := base.NewBaseTap("tap-my", "1.0.0", cfg)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return &MyTap{BaseTap: bt, streams: myStreams()}, nil
//	}
//
// # Request Handling
//
// Every GET goes through the rate limiter and circuit breaker of
// clients.HTTPClient and is retried with exponential backoff while the
// ErrorHandler classifies the failure as retryable. A Retry-After header
// replaces the computed delay.
package base

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Matatika/tap-shopify/pkg/auth"
	"github.com/Matatika/tap-shopify/pkg/clients"
	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/connector/core"
	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/logger"
	"github.com/Matatika/tap-shopify/pkg/metrics"
)

// BaseTap provides the request machinery shared by every stream of a tap.
type BaseTap struct {
	name    string
	version string
	config  *config.TapConfig
	logger  *zap.Logger

	client        *clients.HTTPClient
	authenticator *auth.APIKeyAuthenticator
	retryPolicy   *RetryPolicy
	errorHandler  *ErrorHandler

	closed     bool
	closeMutex sync.Mutex
}

// Option customizes a BaseTap
type Option func(*options)

type options struct {
	clientOpts []clients.Option
	retry      *RetryPolicy
}

// WithClientOptions passes options to the underlying HTTP client.
func WithClientOptions(opts ...clients.Option) Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// WithRetryPolicy replaces the policy derived from the configuration.
func WithRetryPolicy(rp *RetryPolicy) Option {
	return func(o *options) {
		o.retry = rp
	}
}

// NewBaseTap creates the shared request machinery for a tap. One
// authenticator is created here and reused by every stream.
func NewBaseTap(name, version string, cfg *config.TapConfig, opts ...Option) (*BaseTap, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configuration is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := logger.Get().With(zap.String("tap", name))
	client := clients.NewHTTPClient(clients.HTTPConfigFromTap(cfg), log, o.clientOpts...)

	bt := &BaseTap{
		name:         name,
		version:      version,
		config:       cfg,
		logger:       log,
		client:       client,
		errorHandler: NewErrorHandler(log),
	}

	bt.authenticator = auth.FromConfig(context.Background(), cfg, client.StandardClient())

	bt.retryPolicy = o.retry
	if bt.retryPolicy == nil {
		bt.retryPolicy = RetryPolicyFromConfig(cfg.Reliability)
	}
	bt.retryPolicy.OnRetry = func(attempt int, delay time.Duration, err error) {
		bt.logger.Warn("retrying request",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	return bt, nil
}

// Name returns the tap name
func (bt *BaseTap) Name() string {
	return bt.name
}

// Type returns the connector type
func (bt *BaseTap) Type() core.ConnectorType {
	return core.ConnectorTypeSource
}

// Version returns the tap version
func (bt *BaseTap) Version() string {
	return bt.version
}

// GetConfig returns the tap configuration
func (bt *BaseTap) GetConfig() *config.TapConfig {
	return bt.config
}

// GetLogger returns the tap logger
func (bt *BaseTap) GetLogger() *zap.Logger {
	return bt.logger
}

// GetErrorHandler returns the error handler
func (bt *BaseTap) GetErrorHandler() *ErrorHandler {
	return bt.errorHandler
}

// Get requests rawURL with params, authentication headers and retries.
// The stream name labels metrics and logs.
func (bt *BaseTap) Get(ctx context.Context, stream, rawURL string, params url.Values) (*clients.Response, error) {
	if bt.isClosed() {
		return nil, errors.New(errors.ErrorTypeConnection, "tap is closed")
	}

	target := rawURL
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	header, err := bt.authenticator.Headers()
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, logger.StreamKey, stream)

	var resp *clients.Response
	attempt := 0
	err = bt.retryPolicy.ExecuteWithCondition(ctx, func() error {
		if attempt > 0 {
			metrics.HTTPRetries.WithLabelValues(stream).Inc()
		}
		attempt++
		var reqErr error
		resp, reqErr = bt.client.Get(ctx, target, header)
		return reqErr
	}, bt.errorHandler.Retryable)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Headers returns the authentication headers, e.g. for a connection check.
func (bt *BaseTap) Headers() (http.Header, error) {
	return bt.authenticator.Headers()
}

// Close shuts down the tap
func (bt *BaseTap) Close(context.Context) error {
	bt.closeMutex.Lock()
	defer bt.closeMutex.Unlock()

	if bt.closed {
		return nil
	}
	bt.closed = true

	total, failed := bt.client.Stats()
	bt.logger.Info("tap closed",
		zap.Int64("requests", total),
		zap.Int64("failed_requests", failed),
		zap.Any("errors", bt.errorHandler.GetErrorStats()))

	return bt.client.Close()
}

func (bt *BaseTap) isClosed() bool {
	bt.closeMutex.Lock()
	defer bt.closeMutex.Unlock()
	return bt.closed
}
