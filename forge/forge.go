// Package forge is the PicForge HTTP router: a chi mux with request logging
// and per-route rate limit guards.
package forge

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"picforge/ratelimit/forge/middleware/ratelimiter"
)

type Router struct {
	mux    chi.Router
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := chi.NewRouter()
	mux.Use(chimiddleware.Recoverer)
	mux.Use(requestLogger(logger))

	return &Router{
		mux:    mux,
		logger: logger,
	}
}

func (f *Router) HandleFunc(pattern string, handler http.HandlerFunc) {
	f.mux.HandleFunc(pattern, handler)
}

func (f *Router) Handle(pattern string, handler http.Handler) {
	f.mux.Handle(pattern, handler)
}

func (f *Router) Method(method, pattern string, handler http.HandlerFunc) {
	f.mux.Method(method, pattern, handler)
}

// Guard returns a group whose routes all pass through the rate limiter
// under policy before reaching their handler.
func (f *Router) Guard(limiter *ratelimiter.Limiter, policy ratelimiter.Policy, opts ...ratelimiter.MiddlewareOption) *Router {
	opts = append([]ratelimiter.MiddlewareOption{ratelimiter.WithMiddlewareLogger(f.logger)}, opts...)
	return &Router{
		mux:    f.mux.With(ratelimiter.Middleware(limiter, policy, opts...)),
		logger: f.logger,
	}
}

func (f *Router) Handler() http.Handler {
	return f.mux
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
