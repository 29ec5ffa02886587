package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"picforge/ratelimit/forge/middleware/ratelimiter"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	PolicyGenerate   = "generate"
	PolicyNewsletter = "newsletter"
	PolicyFeedback   = "feedback"
)

type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	LogFile    string `mapstructure:"LOG_FILE"`

	RateLimiterBackend         string        `mapstructure:"RATE_LIMITER_BACKEND"`
	RateLimiterRedisAddr       string        `mapstructure:"RATE_LIMITER_REDIS_ADDR"`
	RateLimiterRedisPassword   string        `mapstructure:"RATE_LIMITER_REDIS_PASSWORD"`
	RateLimiterRedisDB         int           `mapstructure:"RATE_LIMITER_REDIS_DB"`
	RateLimiterRedisTimeout    time.Duration `mapstructure:"RATE_LIMITER_REDIS_TIMEOUT"`
	RateLimiterKeyPrefix       string        `mapstructure:"RATE_LIMITER_KEY_PREFIX"`
	RateLimiterCleanupInterval time.Duration `mapstructure:"RATE_LIMITER_CLEANUP_INTERVAL"`
	RateLimiterTrustForwarded  bool          `mapstructure:"RATE_LIMITER_TRUST_FORWARDED"`

	GenerateMaxRequests int64         `mapstructure:"RATE_LIMIT_GENERATE_MAX_REQUESTS"`
	GenerateWindow      time.Duration `mapstructure:"RATE_LIMIT_GENERATE_WINDOW"`
	GenerateFailureMode string        `mapstructure:"RATE_LIMIT_GENERATE_FAILURE_MODE"`

	NewsletterMaxRequests int64         `mapstructure:"RATE_LIMIT_NEWSLETTER_MAX_REQUESTS"`
	NewsletterWindow      time.Duration `mapstructure:"RATE_LIMIT_NEWSLETTER_WINDOW"`
	NewsletterFailureMode string        `mapstructure:"RATE_LIMIT_NEWSLETTER_FAILURE_MODE"`

	FeedbackMaxRequests int64         `mapstructure:"RATE_LIMIT_FEEDBACK_MAX_REQUESTS"`
	FeedbackWindow      time.Duration `mapstructure:"RATE_LIMIT_FEEDBACK_WINDOW"`
	FeedbackFailureMode string        `mapstructure:"RATE_LIMIT_FEEDBACK_FAILURE_MODE"`
}

var defaults = map[string]any{
	"SERVER_PORT": "8080",
	"LOG_LEVEL":   "info",
	"LOG_FILE":    "",

	"RATE_LIMITER_BACKEND":          BackendMemory,
	"RATE_LIMITER_REDIS_ADDR":       "localhost:6379",
	"RATE_LIMITER_REDIS_PASSWORD":   "",
	"RATE_LIMITER_REDIS_DB":         0,
	"RATE_LIMITER_REDIS_TIMEOUT":    ratelimiter.DefaultRedisTimeout,
	"RATE_LIMITER_KEY_PREFIX":       ratelimiter.DefaultKeyPrefix,
	"RATE_LIMITER_CLEANUP_INTERVAL": time.Minute,
	"RATE_LIMITER_TRUST_FORWARDED":  true,

	"RATE_LIMIT_GENERATE_MAX_REQUESTS": 10,
	"RATE_LIMIT_GENERATE_WINDOW":       24 * time.Hour,
	"RATE_LIMIT_GENERATE_FAILURE_MODE": "closed",

	"RATE_LIMIT_NEWSLETTER_MAX_REQUESTS": 5,
	"RATE_LIMIT_NEWSLETTER_WINDOW":       time.Hour,
	"RATE_LIMIT_NEWSLETTER_FAILURE_MODE": "open",

	"RATE_LIMIT_FEEDBACK_MAX_REQUESTS": 150,
	"RATE_LIMIT_FEEDBACK_WINDOW":       24 * time.Hour,
	"RATE_LIMIT_FEEDBACK_FAILURE_MODE": "open",
}

// LoadConfig reads path/.env when present and lets environment variables
// override every key. The result is validated.
func LoadConfig(path string) (*Config, error) {
	var config *Config

	v := viper.New()
	v.SetConfigType("env")
	v.SetConfigFile(filepath.Join(path, ".env"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	switch c.RateLimiterBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("%w: RATE_LIMITER_BACKEND: unknown backend %q", ratelimiter.ErrInvalidConfiguration, c.RateLimiterBackend)
	}

	if c.RateLimiterBackend == BackendRedis && c.RateLimiterRedisAddr == "" {
		return fmt.Errorf("%w: RATE_LIMITER_REDIS_ADDR is required for the redis backend", ratelimiter.ErrInvalidConfiguration)
	}

	_, err := c.Policies()
	return err
}

// Policies returns the guarded endpoint policies keyed by name.
func (c *Config) Policies() (map[string]ratelimiter.Policy, error) {
	specs := []struct {
		name        string
		maxRequests int64
		window      time.Duration
		failureMode string
	}{
		{PolicyGenerate, c.GenerateMaxRequests, c.GenerateWindow, c.GenerateFailureMode},
		{PolicyNewsletter, c.NewsletterMaxRequests, c.NewsletterWindow, c.NewsletterFailureMode},
		{PolicyFeedback, c.FeedbackMaxRequests, c.FeedbackWindow, c.FeedbackFailureMode},
	}

	policies := make(map[string]ratelimiter.Policy, len(specs))
	for _, s := range specs {
		mode, err := ratelimiter.ParseFailureMode(s.failureMode)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", s.name, err)
		}

		policy := ratelimiter.Policy{
			Name:        s.name,
			MaxRequests: s.maxRequests,
			Window:      s.window,
			FailureMode: mode,
		}
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("policy %s: %w", s.name, err)
		}
		policies[s.name] = policy
	}
	return policies, nil
}
