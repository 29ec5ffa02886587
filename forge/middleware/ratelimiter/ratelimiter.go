package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Limiter applies a fixed-window counter per identifier. A window starts on
// the first action of an identifier and lasts for the requested duration.
type Limiter struct {
	backend  Backend
	fallback Backend
	logger   *zap.Logger
	metrics  *Metrics
	now      func() time.Time
}

type Option func(*Limiter)

func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithFallback sets the store used by fail-open policies while the primary
// backend is unavailable.
func WithFallback(fallback Backend) Option {
	return func(l *Limiter) {
		l.fallback = fallback
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(l *Limiter) {
		l.metrics = metrics
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func NewLimiter(backend Backend, opts ...Option) (*Limiter, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend is required", ErrInvalidConfiguration)
	}

	l := &Limiter{
		backend: backend,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// CheckRateLimit records one action for identifier and reports whether it is
// allowed. Exceeding the limit is reported through Result.Allowed; the only
// errors are invalid arguments and backend failures.
func (l *Limiter) CheckRateLimit(ctx context.Context, identifier string, maxRequests int64, window time.Duration) (Result, error) {
	return l.check(ctx, l.backend, identifier, maxRequests, window)
}

// Peek returns the live window of identifier without recording an action.
// The bool is false when the identifier has no live window.
func (l *Limiter) Peek(ctx context.Context, identifier string, maxRequests int64) (Result, bool, error) {
	return l.peek(ctx, l.backend, identifier, maxRequests)
}

// Enforce checks identifier against policy inside the policy's own namespace
// and applies its failure mode when the backend is unavailable.
func (l *Limiter) Enforce(ctx context.Context, identifier string, policy Policy) (Result, error) {
	key := PolicyKey(policy.Name, identifier)

	res, err := l.check(ctx, l.backend, key, policy.MaxRequests, policy.Window)
	if err == nil {
		l.metrics.observeDecision(policy.Name, decisionOf(res))
		return res, nil
	}
	if !errors.Is(err, ErrBackendUnavailable) {
		return Result{}, err
	}

	l.metrics.observeBackendError(policy.Name)

	if policy.FailureMode == FailClosed {
		l.logger.Error("rate limit backend unavailable, rejecting",
			zap.String("policy", policy.Name),
			zap.String("identifier", identifier),
			zap.Error(err))
		l.metrics.observeDecision(policy.Name, decisionRejected)
		return Result{Allowed: false, Limit: policy.MaxRequests}, err
	}

	l.logger.Warn("rate limit backend unavailable, using fallback",
		zap.String("policy", policy.Name),
		zap.String("identifier", identifier),
		zap.Error(err))

	if l.fallback == nil {
		l.metrics.observeDecision(policy.Name, decisionDegraded)
		return Result{
			Allowed:   true,
			Limit:     policy.MaxRequests,
			Remaining: policy.MaxRequests,
			ResetTime: l.now().Add(policy.Window),
			Degraded:  true,
		}, nil
	}

	res, err = l.check(ctx, l.fallback, key, policy.MaxRequests, policy.Window)
	if err != nil {
		return Result{}, err
	}
	res.Degraded = true
	if res.Allowed {
		l.metrics.observeDecision(policy.Name, decisionDegraded)
	} else {
		l.metrics.observeDecision(policy.Name, decisionDenied)
	}
	return res, nil
}

// Status is Peek inside a policy namespace. Fail-open policies read the
// fallback store while the backend is unavailable, matching Enforce.
func (l *Limiter) Status(ctx context.Context, identifier string, policy Policy) (Result, bool, error) {
	key := PolicyKey(policy.Name, identifier)

	res, active, err := l.peek(ctx, l.backend, key, policy.MaxRequests)
	if err == nil || !errors.Is(err, ErrBackendUnavailable) || policy.FailureMode == FailClosed {
		return res, active, err
	}

	l.logger.Warn("rate limit backend unavailable, reading fallback",
		zap.String("policy", policy.Name),
		zap.String("identifier", identifier),
		zap.Error(err))

	if l.fallback == nil {
		return Result{Allowed: true, Limit: policy.MaxRequests, Remaining: policy.MaxRequests, Degraded: true}, false, nil
	}

	res, active, err = l.peek(ctx, l.fallback, key, policy.MaxRequests)
	if err != nil {
		return Result{}, false, err
	}
	res.Degraded = true
	return res, active, nil
}

// Reset forgets the window stored under the raw key identifier in both
// stores. Use ResetPolicy for callers counted through Enforce.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	if identifier == "" {
		return ErrInvalidIdentifier
	}
	if err := l.backend.Delete(ctx, identifier); err != nil {
		return err
	}
	if l.fallback != nil {
		return l.fallback.Delete(ctx, identifier)
	}
	return nil
}

// ResetPolicy forgets identifier's window inside policy's namespace.
func (l *Limiter) ResetPolicy(ctx context.Context, identifier string, policy Policy) error {
	if identifier == "" {
		return ErrInvalidIdentifier
	}
	return l.Reset(ctx, PolicyKey(policy.Name, identifier))
}

func (l *Limiter) peek(ctx context.Context, backend Backend, identifier string, maxRequests int64) (Result, bool, error) {
	if identifier == "" {
		return Result{}, false, ErrInvalidIdentifier
	}
	if maxRequests <= 0 {
		return Result{}, false, newValidationError("max_requests", fmt.Sprintf("must be positive, got %d", maxRequests))
	}

	entry, err := backend.Read(ctx, identifier, l.now())
	if err != nil {
		return Result{}, false, err
	}
	if entry == nil {
		return Result{Allowed: true, Limit: maxRequests, Remaining: maxRequests}, false, nil
	}

	return newResult(entry, maxRequests, entry.Count < maxRequests), true, nil
}

func (l *Limiter) check(ctx context.Context, backend Backend, identifier string, maxRequests int64, window time.Duration) (Result, error) {
	if identifier == "" {
		return Result{}, ErrInvalidIdentifier
	}
	if err := validateLimits(maxRequests, window); err != nil {
		return Result{}, err
	}

	entry, admitted, err := backend.IncrementWindow(ctx, identifier, maxRequests, window, l.now())
	if err != nil {
		return Result{}, err
	}
	return newResult(entry, maxRequests, admitted), nil
}

func PolicyKey(policy, identifier string) string {
	if policy == "" || identifier == "" {
		return identifier
	}
	return policy + ":" + identifier
}

func decisionOf(res Result) string {
	if res.Allowed {
		return decisionAllowed
	}
	return decisionDenied
}
