package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g. TURNSTILE_MAX_WAIT.
const EnvPrefix = "TURNSTILE"

// APICredentials holds API authentication credentials for an exchange as read from configuration.
// Use Capability to obtain the Credentials handed to signers.
type APICredentials struct {
	// APIKey is the public API key identifier.
	APIKey string `json:"api_key" mapstructure:"api_key" validate:"required"`
	// SecretKey is the private API key used for signing requests.
	SecretKey string `json:"secret_key" mapstructure:"secret_key" validate:"required"`
	// Passphrase is an optional additional credential required by some exchanges.
	Passphrase string `json:"passphrase,omitempty" mapstructure:"passphrase"`
}

// String masks everything but the first characters of the key.
func (c APICredentials) String() string {
	return "APICredentials{key=" + maskKey(c.APIKey) + "}"
}

// Capability converts the configured strings into a Credentials capability.
func (c *APICredentials) Capability() Credentials {
	return NewStaticCredentials(c.APIKey, c.SecretKey, c.Passphrase)
}

// Config contains all configuration options for an exchange session.
// It includes authentication, networking, quota, caching, and circuit breaker settings.
type Config struct {
	Exchange    string           `json:"exchange" mapstructure:"exchange" validate:"required"`
	Sandbox     bool             `json:"sandbox" mapstructure:"sandbox"`
	BaseURL     string           `json:"base_url,omitempty" mapstructure:"base_url" validate:"omitempty,url"`
	Credentials *APICredentials  `json:"credentials,omitempty" mapstructure:"credentials"`
	Keys        []APICredentials `json:"keys,omitempty" mapstructure:"keys" validate:"dive"`
	KeyRotation string           `json:"key_rotation" mapstructure:"key_rotation" validate:"omitempty,oneof=none round_robin on_failure"`

	// Timeout is the maximum duration for HTTP requests.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout" validate:"min=1ms"`

	// MaxWait bounds how long a call may wait for local quota. Zero fails fast.
	MaxWait time.Duration `json:"max_wait" mapstructure:"max_wait" validate:"min=0"`
	// DefaultBanDuration applies when a ban response carries no Retry-After.
	DefaultBanDuration time.Duration `json:"default_ban_duration" mapstructure:"default_ban_duration" validate:"min=1s"`
	// SafetyMargin scales every window capacity down, in (0,1].
	SafetyMargin float64 `json:"safety_margin" mapstructure:"safety_margin" validate:"gt=0,lte=1"`

	MaxRetries   int           `json:"max_retries" mapstructure:"max_retries" validate:"min=0"`
	RetryWaitMin time.Duration `json:"retry_wait_min" mapstructure:"retry_wait_min" validate:"min=0"`
	RetryWaitMax time.Duration `json:"retry_wait_max" mapstructure:"retry_wait_max" validate:"min=0"`

	CacheEnabled bool          `json:"cache_enabled" mapstructure:"cache_enabled"`
	CacheTTL     time.Duration `json:"cache_ttl" mapstructure:"cache_ttl" validate:"min=0"`

	CircuitBreakerEnabled          bool          `json:"circuit_breaker_enabled" mapstructure:"circuit_breaker_enabled"`
	CircuitBreakerFailThreshold    int           `json:"circuit_breaker_fail_threshold" mapstructure:"circuit_breaker_fail_threshold"`
	CircuitBreakerSuccessThreshold int           `json:"circuit_breaker_success_threshold" mapstructure:"circuit_breaker_success_threshold"`
	CircuitBreakerTimeout          time.Duration `json:"circuit_breaker_timeout" mapstructure:"circuit_breaker_timeout"`

	// CatalogPath replaces the venue's built-in catalog with a YAML file.
	CatalogPath string `json:"catalog_path,omitempty" mapstructure:"catalog_path"`

	// RedisURL enables the shared ban registry when set.
	RedisURL string `json:"redis_url,omitempty" mapstructure:"redis_url" validate:"omitempty,url"`

	LogLevel string `json:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config initialized with sensible defaults for the specified exchange.
// Default values: 10s timeout, fail-fast quota, 2m default ban, no safety margin, 3 retries
// with 100ms-1s wait, 1s cache TTL, circuit breaker with 5 failures/2 successes/30s timeout.
func DefaultConfig(exchange string) *Config {
	return &Config{
		Exchange:    exchange,
		Sandbox:     false,
		KeyRotation: "none",
		Timeout:     10 * time.Second,

		MaxWait:            0,
		DefaultBanDuration: 2 * time.Minute,
		SafetyMargin:       1,

		MaxRetries:   3,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 1 * time.Second,

		CacheEnabled: true,
		CacheTTL:     1 * time.Second,

		CircuitBreakerEnabled:          true,
		CircuitBreakerFailThreshold:    5,
		CircuitBreakerSuccessThreshold: 2,
		CircuitBreakerTimeout:          30 * time.Second,

		LogLevel: "info",
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.RetryWaitMax < c.RetryWaitMin {
		return errors.New("RetryWaitMax must not be less than RetryWaitMin")
	}
	if c.CircuitBreakerEnabled {
		if c.CircuitBreakerFailThreshold <= 0 {
			return errors.New("CircuitBreakerFailThreshold must be positive when enabled")
		}
		if c.CircuitBreakerSuccessThreshold <= 0 {
			return errors.New("CircuitBreakerSuccessThreshold must be positive when enabled")
		}
		if c.CircuitBreakerTimeout <= 0 {
			return errors.New("CircuitBreakerTimeout must be positive when enabled")
		}
	}
	return nil
}

// AllCredentials returns the configured keys with the primary credentials first.
func (c *Config) AllCredentials() []APICredentials {
	var out []APICredentials
	if c.Credentials != nil {
		out = append(out, *c.Credentials)
	}
	return append(out, c.Keys...)
}

// WithCredentials sets the API credentials and returns the config for chaining.
func (c *Config) WithCredentials(creds *APICredentials) *Config {
	c.Credentials = creds
	return c
}

// WithKeys sets the rotation key set and strategy and returns the config for chaining.
func (c *Config) WithKeys(rotation string, keys ...APICredentials) *Config {
	c.KeyRotation = rotation
	c.Keys = keys
	return c
}

// WithSandbox enables or disables sandbox mode and returns the config for chaining.
func (c *Config) WithSandbox(sandbox bool) *Config {
	c.Sandbox = sandbox
	return c
}

// WithTimeout sets the request timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithMaxWait sets how long a call may wait for local quota and returns the config for chaining.
func (c *Config) WithMaxWait(d time.Duration) *Config {
	c.MaxWait = d
	return c
}

// WithSafetyMargin sets the capacity scale factor and returns the config for chaining.
func (c *Config) WithSafetyMargin(margin float64) *Config {
	c.SafetyMargin = margin
	return c
}

// WithCache enables or disables caching with the specified TTL and returns the config for chaining.
func (c *Config) WithCache(enabled bool, ttl time.Duration) *Config {
	c.CacheEnabled = enabled
	c.CacheTTL = ttl
	return c
}

// WithCatalogPath sets a catalog file overriding the built-in one and returns the config for chaining.
func (c *Config) WithCatalogPath(path string) *Config {
	c.CatalogPath = path
	return c
}

// WithRedis enables the shared ban registry and returns the config for chaining.
func (c *Config) WithRedis(url string) *Config {
	c.RedisURL = url
	return c
}

// LoadConfig reads configuration for exchange from path (YAML, JSON or TOML) and
// TURNSTILE_* environment variables, on top of DefaultConfig. An empty path reads
// only the environment.
func LoadConfig(path, exchange string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultConfig(exchange)
	setDefaults(v, defaults)
	for _, key := range []string{"credentials.api_key", "credentials.secret_key", "credentials.passphrase", "base_url", "catalog_path", "redis_url"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Credentials != nil && cfg.Credentials.APIKey == "" && cfg.Credentials.SecretKey == "" {
		cfg.Credentials = nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("exchange", c.Exchange)
	v.SetDefault("sandbox", c.Sandbox)
	v.SetDefault("key_rotation", c.KeyRotation)
	v.SetDefault("timeout", c.Timeout)
	v.SetDefault("max_wait", c.MaxWait)
	v.SetDefault("default_ban_duration", c.DefaultBanDuration)
	v.SetDefault("safety_margin", c.SafetyMargin)
	v.SetDefault("max_retries", c.MaxRetries)
	v.SetDefault("retry_wait_min", c.RetryWaitMin)
	v.SetDefault("retry_wait_max", c.RetryWaitMax)
	v.SetDefault("cache_enabled", c.CacheEnabled)
	v.SetDefault("cache_ttl", c.CacheTTL)
	v.SetDefault("circuit_breaker_enabled", c.CircuitBreakerEnabled)
	v.SetDefault("circuit_breaker_fail_threshold", c.CircuitBreakerFailThreshold)
	v.SetDefault("circuit_breaker_success_threshold", c.CircuitBreakerSuccessThreshold)
	v.SetDefault("circuit_breaker_timeout", c.CircuitBreakerTimeout)
	v.SetDefault("log_level", c.LogLevel)
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
