package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"picforge/ratelimit/cmd/configs"
	"picforge/ratelimit/forge"
	"picforge/ratelimit/forge/middleware/ratelimiter"
	"picforge/ratelimit/internal/infra/api"
)

func newHandler(limiter *ratelimiter.Limiter, policies map[string]ratelimiter.Policy, gatherer prometheus.Gatherer, trustForwarded bool, zl *zap.Logger) http.Handler {
	router := forge.NewRouter(zl)
	identify := func(r *http.Request) string {
		return ratelimiter.ClientIdentifier(r, trustForwarded)
	}
	guardOpts := []ratelimiter.MiddlewareOption{ratelimiter.WithIdentifierFunc(identify)}

	router.HandleFunc("/health", api.HealthHandler)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	router.Guard(limiter, policies[configs.PolicyGenerate], guardOpts...).
		Method(http.MethodPost, "/api/generate", api.AcceptedHandler(configs.PolicyGenerate))
	router.Guard(limiter, policies[configs.PolicyNewsletter], guardOpts...).
		Method(http.MethodPost, "/api/newsletter", api.AcceptedHandler(configs.PolicyNewsletter))
	router.Guard(limiter, policies[configs.PolicyFeedback], guardOpts...).
		Method(http.MethodPost, "/api/feedback", api.AcceptedHandler(configs.PolicyFeedback))

	router.Method(http.MethodGet, "/api/ratelimit/{policy}", (&api.StatusHandler{
		Limiter:  limiter,
		Policies: policies,
		Identify: identify,
		Logger:   zl,
	}).ServeHTTP)

	return router.Handler()
}
