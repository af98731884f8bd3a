package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Matatika/tap-shopify/pkg/errors"
)

// EnvPrefix prefixes environment overrides, e.g. TAP_SHOPIFY_ACCESS_TOKEN
// or TAP_SHOPIFY_RELIABILITY_RETRY_ATTEMPTS.
const EnvPrefix = "TAP_SHOPIFY"

// Load reads a JSON or YAML config file, applies ${VAR} substitution and
// environment overrides, and validates the result. An empty path loads
// from the environment only.
//
// Priority (highest to lowest):
// 1. Environment variables with the TAP_SHOPIFY_ prefix
// 2. The config file
// 3. Built-in defaults
func Load(path string) (*TapConfig, error) {
	cfg := NewTapConfig()

	v := viper.New()
	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the --config flag
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", path)
		}

		v.SetConfigType(configType(path))
		if err := v.ReadConfig(strings.NewReader(substituteEnvVars(string(data)))); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse config file").
				WithDetail("path", path)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// setDefaults registers every key so AutomaticEnv can override it
// during Unmarshal.
func setDefaults(v *viper.Viper, cfg *TapConfig) {
	v.SetDefault("access_token", "")
	v.SetDefault("store", "")
	v.SetDefault("admin_url", "")
	v.SetDefault("start_date", "")
	v.SetDefault("user_agent", "")
	v.SetDefault("api_version", cfg.APIVersion)
	v.SetDefault("page_size", cfg.PageSize)
	v.SetDefault("client_id", "")
	v.SetDefault("client_secret", "")
	v.SetDefault("streams", []string{})

	v.SetDefault("performance.buffer_size", cfg.Performance.BufferSize)

	v.SetDefault("timeouts.request", cfg.Timeouts.Request)
	v.SetDefault("timeouts.connection", cfg.Timeouts.Connection)
	v.SetDefault("timeouts.idle", cfg.Timeouts.Idle)

	r := cfg.Reliability
	v.SetDefault("reliability.retry_attempts", r.RetryAttempts)
	v.SetDefault("reliability.retry_delay", r.RetryDelay)
	v.SetDefault("reliability.retry_multiplier", r.RetryMultiplier)
	v.SetDefault("reliability.max_retry_delay", r.MaxRetryDelay)
	v.SetDefault("reliability.circuit_breaker", r.CircuitBreaker)
	v.SetDefault("reliability.circuit_breaker_threshold", r.CircuitBreakerThreshold)
	v.SetDefault("reliability.circuit_breaker_timeout", r.CircuitBreakerTimeout)
	v.SetDefault("reliability.rate_limit_per_sec", r.RateLimitPerSec)
	v.SetDefault("reliability.fail_fast", r.FailFast)

	o := cfg.Observability
	v.SetDefault("observability.log_level", o.LogLevel)
	v.SetDefault("observability.log_format", o.LogFormat)
	v.SetDefault("observability.metrics_addr", o.MetricsAddr)
	v.SetDefault("observability.enable_tracing", o.EnableTracing)
	v.SetDefault("observability.progress_interval", o.ProgressInterval)

	v.SetDefault("state.backend", "")
	v.SetDefault("state.path", "")
	v.SetDefault("state.redis_addr", "")
	v.SetDefault("state.redis_password", "")
	v.SetDefault("state.redis_db", 0)
	v.SetDefault("state.key", cfg.State.Key)
	setS3Defaults(v, "state.s3")

	v.SetDefault("output.path", "")
	v.SetDefault("output.compression", cfg.Output.Compression)
	setS3Defaults(v, "output.s3")
}

func setS3Defaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".bucket", "")
	v.SetDefault(prefix+".key", "")
	v.SetDefault(prefix+".region", "")
	v.SetDefault(prefix+".endpoint", "")
	v.SetDefault(prefix+".use_path_style", false)
	v.SetDefault(prefix+".access_key_id", "")
	v.SetDefault(prefix+".secret_access_key", "")
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
// Inserted values are not expanded again.
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
