package ratelimiter

import (
	"net"
	"net/http"
	"strings"
)

// ClientIdentifier derives "ip:<address>" for r. Forwarded headers are set by
// the caller and can be spoofed; pass trustForwarded only behind a proxy that
// overwrites them.
func ClientIdentifier(r *http.Request, trustForwarded bool) string {
	if ip := clientIP(r, trustForwarded); ip != "" {
		return "ip:" + ip
	}
	return ""
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if forwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwardedFor != "" {
			first, _, _ := strings.Cut(forwardedFor, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}

	remoteAddr := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
