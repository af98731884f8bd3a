// Package config provides the configuration system for the tap.
//
// The configuration is organized into the connector settings (credentials,
// store, start date) and the ambient sections shared with the rest of the
// runtime:
//   - Performance: output buffering
//   - Timeouts: HTTP timeouts
//   - Reliability: Retry logic, circuit breaker, rate limiting
//   - Observability: Metrics, tracing, logging
//   - State: where bookmarks are persisted between runs
//   - Output: where Singer messages are written
//
// Example usage:
//
//	cfg, err := config.Load("config.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.URLBase())
package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultAPIVersion is the Admin API version used when none is configured.
	DefaultAPIVersion = "2024-01"
	// MaxPageSize is the largest page the Admin REST API serves.
	MaxPageSize = 250
)

// TapConfig is the full configuration of a tap run.
type TapConfig struct {
	// AccessToken is sent as X-Shopify-Access-Token
	AccessToken Secret `mapstructure:"access_token" yaml:"access_token" json:"access_token" validate:"required_without=ClientID"`
	// Store is the store subdomain, as in <store>.myshopify.com
	Store string `mapstructure:"store" yaml:"store" json:"store" validate:"required"`
	// AdminURL overrides the admin URL derived from Store
	AdminURL string `mapstructure:"admin_url" yaml:"admin_url" json:"admin_url" validate:"omitempty,url"`
	// StartDate is the earliest record date to sync
	StartDate string `mapstructure:"start_date" yaml:"start_date" json:"start_date" validate:"omitempty,startdate"`
	// UserAgent is sent with every request when set
	UserAgent  string `mapstructure:"user_agent" yaml:"user_agent" json:"user_agent"`
	APIVersion string `mapstructure:"api_version" yaml:"api_version" json:"api_version" validate:"required"`
	PageSize   int    `mapstructure:"page_size" yaml:"page_size" json:"page_size" validate:"min=1,max=250"`

	// ClientID and ClientSecret enable the client credentials grant
	// instead of a static access token.
	ClientID     string `mapstructure:"client_id" yaml:"client_id" json:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret Secret `mapstructure:"client_secret" yaml:"client_secret" json:"client_secret" validate:"required_with=ClientID"`

	// Streams selects streams by name when no catalog is given
	Streams []string `mapstructure:"streams" yaml:"streams" json:"streams"`

	Performance   PerformanceConfig   `mapstructure:"performance" yaml:"performance" json:"performance"`
	Timeouts      TimeoutConfig       `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Reliability   ReliabilityConfig   `mapstructure:"reliability" yaml:"reliability" json:"reliability"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability" json:"observability"`
	State         StateConfig         `mapstructure:"state" yaml:"state" json:"state"`
	Output        OutputConfig        `mapstructure:"output" yaml:"output" json:"output"`
}

// PerformanceConfig contains output buffering settings.
type PerformanceConfig struct {
	// BufferSize sets the size of the message writer buffer in bytes
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size" json:"buffer_size" validate:"min=0"`
}

// TimeoutConfig contains all timeout-related settings.
// These prevent requests from hanging indefinitely.
type TimeoutConfig struct {
	// Request timeout for individual API calls
	Request time.Duration `mapstructure:"request" yaml:"request" json:"request"`
	// Connection timeout for establishing connections
	Connection time.Duration `mapstructure:"connection" yaml:"connection" json:"connection"`
	// Idle timeout before closing inactive connections
	Idle time.Duration `mapstructure:"idle" yaml:"idle" json:"idle"`
}

// ReliabilityConfig contains reliability and error handling settings.
type ReliabilityConfig struct {
	// RetryAttempts sets maximum retry attempts for failed requests
	RetryAttempts int `mapstructure:"retry_attempts" yaml:"retry_attempts" json:"retry_attempts" validate:"min=0"`
	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
	// RetryMultiplier increases delay exponentially
	RetryMultiplier float64 `mapstructure:"retry_multiplier" yaml:"retry_multiplier" json:"retry_multiplier" validate:"gte=1"`
	// MaxRetryDelay caps the maximum retry delay
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay" yaml:"max_retry_delay" json:"max_retry_delay"`
	// CircuitBreaker enables circuit breaker pattern
	CircuitBreaker bool `mapstructure:"circuit_breaker" yaml:"circuit_breaker" json:"circuit_breaker"`
	// CircuitBreakerThreshold is the number of consecutive failures that opens the circuit
	CircuitBreakerThreshold int `mapstructure:"circuit_breaker_threshold" yaml:"circuit_breaker_threshold" json:"circuit_breaker_threshold" validate:"min=0"`
	// CircuitBreakerTimeout is how long the circuit stays open
	CircuitBreakerTimeout time.Duration `mapstructure:"circuit_breaker_timeout" yaml:"circuit_breaker_timeout" json:"circuit_breaker_timeout"`
	// RateLimitPerSec limits requests per second (0 = unlimited)
	RateLimitPerSec float64 `mapstructure:"rate_limit_per_sec" yaml:"rate_limit_per_sec" json:"rate_limit_per_sec" validate:"gte=0"`
	// FailFast stops on records that fail schema validation
	FailFast bool `mapstructure:"fail_fast" yaml:"fail_fast" json:"fail_fast"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
	// LogFormat is json or console
	LogFormat string `mapstructure:"log_format" yaml:"log_format" json:"log_format" validate:"oneof=json console"`
	// MetricsAddr serves Prometheus metrics while syncing, e.g. ":9090"
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr" json:"metrics_addr"`
	// EnableTracing exports spans to stderr
	EnableTracing bool `mapstructure:"enable_tracing" yaml:"enable_tracing" json:"enable_tracing"`
	// ProgressInterval controls how often sync progress is logged
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval" json:"progress_interval"`
}

// StateConfig selects the bookmark store.
type StateConfig struct {
	// Backend is one of file, redis, s3; empty keeps state in memory only
	Backend string `mapstructure:"backend" yaml:"backend" json:"backend" validate:"omitempty,oneof=file redis s3"`
	// Path is the state file for the file backend
	Path string `mapstructure:"path" yaml:"path" json:"path" validate:"required_if=Backend file"`

	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr" json:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword Secret `mapstructure:"redis_password" yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db" json:"redis_db" validate:"min=0"`

	S3 S3Location `mapstructure:"s3" yaml:"s3" json:"s3"`

	// Key names the state entry in redis or s3
	Key string `mapstructure:"key" yaml:"key" json:"key"`
}

// OutputConfig selects where Singer messages go.
type OutputConfig struct {
	// Path writes messages to a file instead of stdout
	Path string `mapstructure:"path" yaml:"path" json:"path"`
	// Compression applies to Path output: none, gzip, zstd, lz4, snappy
	Compression string `mapstructure:"compression" yaml:"compression" json:"compression" validate:"oneof=none gzip zstd lz4 snappy"`
	// S3 uploads the finished output file when Bucket is set
	S3 S3Location `mapstructure:"s3" yaml:"s3" json:"s3"`
}

// S3Location addresses an object in S3 or an S3-compatible store.
type S3Location struct {
	Bucket   string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Key      string `mapstructure:"key" yaml:"key" json:"key"`
	Region   string `mapstructure:"region" yaml:"region" json:"region"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint" validate:"omitempty,url"`
	// UsePathStyle is needed by most S3-compatible stores
	UsePathStyle bool `mapstructure:"use_path_style" yaml:"use_path_style" json:"use_path_style"`
	// AccessKeyID and SecretAccessKey override the default AWS credential chain
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id" json:"access_key_id" validate:"required_with=SecretAccessKey"`
	SecretAccessKey Secret `mapstructure:"secret_access_key" yaml:"secret_access_key" json:"secret_access_key"`
}

// IsSet reports whether a bucket is configured.
func (l S3Location) IsSet() bool {
	return l.Bucket != ""
}

// NewTapConfig creates a TapConfig with defaults for every optional setting.
func NewTapConfig() *TapConfig {
	return &TapConfig{
		APIVersion: DefaultAPIVersion,
		PageSize:   MaxPageSize,
		Performance: PerformanceConfig{
			BufferSize: 64 * 1024,
		},
		Timeouts: TimeoutConfig{
			Request:    60 * time.Second,
			Connection: 10 * time.Second,
			Idle:       90 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:           5,
			RetryDelay:              time.Second,
			RetryMultiplier:         2.0,
			MaxRetryDelay:           60 * time.Second,
			CircuitBreaker:          true,
			CircuitBreakerThreshold: 10,
			CircuitBreakerTimeout:   30 * time.Second,
			RateLimitPerSec:         2,
			FailFast:                false,
		},
		Observability: ObservabilityConfig{
			LogLevel:         "info",
			LogFormat:        "json",
			ProgressInterval: 30 * time.Second,
		},
		State: StateConfig{
			Key: "tap-shopify",
		},
		Output: OutputConfig{
			Compression: "none",
		},
	}
}

// URLBase returns the admin URL requests are built on, without a trailing slash.
func (c *TapConfig) URLBase() string {
	if c.AdminURL != "" {
		return strings.TrimRight(c.AdminURL, "/")
	}
	return fmt.Sprintf("https://%s.myshopify.com/admin", c.Store)
}

// APIBase returns the versioned API root, e.g. <url_base>/api/2024-01.
func (c *TapConfig) APIBase() string {
	return c.URLBase() + "/api/" + c.APIVersion
}

// StartTime returns the parsed start date, if one is configured.
func (c *TapConfig) StartTime() (time.Time, bool) {
	if c.StartDate == "" {
		return time.Time{}, false
	}
	t, err := ParseStartDate(c.StartDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// UsesClientCredentials reports whether tokens are fetched with the
// client credentials grant.
func (c *TapConfig) UsesClientCredentials() bool {
	return c.ClientID != "" && !c.ClientSecret.IsZero()
}

// IsRateLimited returns true if rate limiting is enabled
func (r *ReliabilityConfig) IsRateLimited() bool {
	return r.RateLimitPerSec > 0
}

// IsCompressed returns true if output compression should be used
func (o *OutputConfig) IsCompressed() bool {
	return o.Compression != "" && o.Compression != "none"
}

var startDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseStartDate accepts RFC 3339 timestamps and bare dates. Values
// without a zone are taken as UTC.
func ParseStartDate(s string) (time.Time, error) {
	for _, layout := range startDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid start_date %q", s)
}
