package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"picforge/ratelimit/forge/middleware/ratelimiter"
)

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// AcceptedHandler stands in for the guarded PicForge actions; the work itself
// is done by external services.
func AcceptedHandler(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, map[string]string{
			"action": action,
			"status": "queued",
		})
	}
}

type statusResponse struct {
	Policy    string `json:"policy"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	ResetTime int64  `json:"resetTime,omitempty"`
	Active    bool   `json:"active"`
}

type StatusHandler struct {
	Limiter  *ratelimiter.Limiter
	Policies map[string]ratelimiter.Policy
	Identify ratelimiter.IdentifierFunc
	Logger   *zap.Logger
}

// ServeHTTP reports the caller's current window for the {policy} URL param
// without counting the request.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "policy")
	policy, ok := h.Policies[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown_policy"})
		return
	}

	res, active, err := h.Limiter.Status(r.Context(), h.Identify(r), policy)
	if errors.Is(err, ratelimiter.ErrInvalidIdentifier) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_client"})
		return
	}
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("rate limit status failed", zap.String("policy", name), zap.Error(err))
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "rate_limiter_unavailable"})
		return
	}

	body := statusResponse{
		Policy:    policy.Name,
		Limit:     res.Limit,
		Remaining: res.Remaining,
		Active:    active,
	}
	if active {
		body.ResetTime = res.ResetTime.UnixMilli()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
