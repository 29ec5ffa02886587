package ratelimiter

import "time"

// Entry is the stored state of one identifier's current window.
type Entry struct {
	Identifier string
	Count      int64
	ResetTime  time.Time
}

func (e *Entry) expired(now time.Time) bool {
	return !e.ResetTime.After(now)
}

type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetTime time.Time
	// Degraded is set when the decision came from the fallback store.
	Degraded bool
}

func newResult(entry *Entry, maxRequests int64, admitted bool) Result {
	remaining := maxRequests - entry.Count
	if !admitted || remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   admitted,
		Limit:     maxRequests,
		Remaining: remaining,
		ResetTime: entry.ResetTime,
	}
}
