package ratelimiter

import (
	"fmt"
	"strings"
	"time"
)

// FailureMode decides what a policy does when the backend cannot be reached.
type FailureMode int

const (
	// FailOpen admits the action, counting it against the fallback store if one is set.
	FailOpen FailureMode = iota
	// FailClosed rejects the action.
	FailClosed
)

func (m FailureMode) String() string {
	switch m {
	case FailOpen:
		return "open"
	case FailClosed:
		return "closed"
	default:
		return fmt.Sprintf("FailureMode(%d)", int(m))
	}
}

func ParseFailureMode(s string) (FailureMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return FailOpen, newValidationError("failure_mode", fmt.Sprintf("unknown mode %q", s))
	}
}

// Policy bundles the limits chosen for one guarded call site.
type Policy struct {
	Name        string
	MaxRequests int64
	Window      time.Duration
	FailureMode FailureMode
}

func (p Policy) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return newValidationError("name", "must not be empty")
	}
	return validateLimits(p.MaxRequests, p.Window)
}

func validateLimits(maxRequests int64, window time.Duration) error {
	if maxRequests <= 0 {
		return newValidationError("max_requests", fmt.Sprintf("must be positive, got %d", maxRequests))
	}
	if window < time.Millisecond {
		return newValidationError("window", fmt.Sprintf("must be at least 1ms, got %s", window))
	}
	if window%time.Millisecond != 0 {
		return newValidationError("window", fmt.Sprintf("must be a whole number of milliseconds, got %s", window))
	}
	return nil
}
