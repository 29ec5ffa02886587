package ratelimiter

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const rateLimitedMessage = "Too many requests, try again later"

type IdentifierFunc func(r *http.Request) string

type middlewareConfig struct {
	identify IdentifierFunc
	logger   *zap.Logger
	now      func() time.Time
}

type MiddlewareOption func(*middlewareConfig)

func WithIdentifierFunc(fn IdentifierFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.identify = fn
	}
}

// WithTrustForwarded makes the default identifier honour X-Forwarded-For and X-Real-IP.
func WithTrustForwarded(trust bool) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.identify = func(r *http.Request) string {
			return ClientIdentifier(r, trust)
		}
	}
}

func WithMiddlewareLogger(logger *zap.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.logger = logger
	}
}

func withMiddlewareClock(now func() time.Time) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.now = now
	}
}

type rateLimitedBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Policy     string `json:"policy"`
	ResetTime  int64  `json:"resetTime"`
	RetryAfter int64  `json:"retryAfter"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Middleware guards next with policy. Denied requests get 429 with the
// window end; fail-closed backend failures get 503.
func Middleware(limiter *Limiter, policy Policy, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{
		identify: func(r *http.Request) string {
			return ClientIdentifier(r, false)
		},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := cfg.identify(r)

			res, err := limiter.Enforce(r.Context(), identifier, policy)
			if err != nil {
				switch {
				case errors.Is(err, ErrInvalidIdentifier):
					writeJSON(w, http.StatusBadRequest, errorBody{
						Error:   "invalid_client",
						Message: "could not identify client",
					})
				case errors.Is(err, ErrBackendUnavailable):
					writeJSON(w, http.StatusServiceUnavailable, errorBody{
						Error:   "rate_limiter_unavailable",
						Message: "service temporarily unavailable, try again later",
					})
				default:
					cfg.logger.Error("rate limiter failed", zap.String("policy", policy.Name), zap.Error(err))
					writeJSON(w, http.StatusInternalServerError, errorBody{
						Error:   "internal_error",
						Message: http.StatusText(http.StatusInternalServerError),
					})
				}
				return
			}

			setRateLimitHeaders(w, res)

			if !res.Allowed {
				retryAfter := retryAfterSeconds(res.ResetTime, cfg.now())
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				cfg.logger.Info("rate limited",
					zap.String("policy", policy.Name),
					zap.String("identifier", identifier),
					zap.Time("reset_time", res.ResetTime))
				writeJSON(w, http.StatusTooManyRequests, rateLimitedBody{
					Error:      "rate_limited",
					Message:    rateLimitedMessage,
					Policy:     policy.Name,
					ResetTime:  res.ResetTime.UnixMilli(),
					RetryAfter: retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, res Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	if !res.ResetTime.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
	}
}

func retryAfterSeconds(resetTime, now time.Time) int64 {
	seconds := int64(math.Ceil(resetTime.Sub(now).Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
