package configs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"picforge/ratelimit/forge/middleware/ratelimiter"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("writing .env: %v", err)
	}
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if config.ServerPort != "8080" {
		t.Errorf("expected port 8080, got %s", config.ServerPort)
	}
	if config.RateLimiterBackend != BackendMemory {
		t.Errorf("expected memory backend, got %s", config.RateLimiterBackend)
	}
	if config.RateLimiterCleanupInterval != time.Minute {
		t.Errorf("expected 1m cleanup interval, got %v", config.RateLimiterCleanupInterval)
	}

	policies, err := config.Policies()
	if err != nil {
		t.Fatalf("Policies returned error: %v", err)
	}

	tests := []struct {
		name        string
		maxRequests int64
		window      time.Duration
		mode        ratelimiter.FailureMode
	}{
		{PolicyGenerate, 10, 24 * time.Hour, ratelimiter.FailClosed},
		{PolicyNewsletter, 5, time.Hour, ratelimiter.FailOpen},
		{PolicyFeedback, 150, 24 * time.Hour, ratelimiter.FailOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := policies[tt.name]
			if !ok {
				t.Fatalf("missing policy %s", tt.name)
			}
			if p.MaxRequests != tt.maxRequests || p.Window != tt.window || p.FailureMode != tt.mode {
				t.Errorf("unexpected policy %+v", p)
			}
		})
	}
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	dir := writeEnvFile(t, `SERVER_PORT=9090
RATE_LIMITER_BACKEND=redis
RATE_LIMITER_REDIS_ADDR=redis:6379
RATE_LIMITER_REDIS_TIMEOUT=500ms
RATE_LIMIT_GENERATE_MAX_REQUESTS=3
RATE_LIMIT_GENERATE_WINDOW=1h
RATE_LIMIT_FEEDBACK_FAILURE_MODE=closed
`)

	config, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if config.ServerPort != "9090" {
		t.Errorf("expected port 9090, got %s", config.ServerPort)
	}
	if config.RateLimiterBackend != BackendRedis || config.RateLimiterRedisAddr != "redis:6379" {
		t.Errorf("unexpected redis settings: %s %s", config.RateLimiterBackend, config.RateLimiterRedisAddr)
	}
	if config.RateLimiterRedisTimeout != 500*time.Millisecond {
		t.Errorf("expected 500ms timeout, got %v", config.RateLimiterRedisTimeout)
	}

	policies, _ := config.Policies()
	if p := policies[PolicyGenerate]; p.MaxRequests != 3 || p.Window != time.Hour {
		t.Errorf("unexpected generate policy %+v", p)
	}
	if p := policies[PolicyFeedback]; p.FailureMode != ratelimiter.FailClosed {
		t.Errorf("expected feedback to fail closed, got %v", p.FailureMode)
	}
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	dir := writeEnvFile(t, "RATE_LIMIT_NEWSLETTER_MAX_REQUESTS=5\n")
	t.Setenv("RATE_LIMIT_NEWSLETTER_MAX_REQUESTS", "42")

	config, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if config.NewsletterMaxRequests != 42 {
		t.Errorf("expected 42, got %d", config.NewsletterMaxRequests)
	}
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  string
	}{
		{"zero max requests", "RATE_LIMIT_GENERATE_MAX_REQUESTS=0\n"},
		{"negative window", "RATE_LIMIT_FEEDBACK_WINDOW=-1m\n"},
		{"unknown failure mode", "RATE_LIMIT_NEWSLETTER_FAILURE_MODE=sometimes\n"},
		{"unknown backend", "RATE_LIMITER_BACKEND=memcached\n"},
		{"redis without addr", "RATE_LIMITER_BACKEND=redis\nRATE_LIMITER_REDIS_ADDR=\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeEnvFile(t, tt.env))
			if !errors.Is(err, ratelimiter.ErrInvalidConfiguration) {
				t.Errorf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}
