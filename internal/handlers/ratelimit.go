package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/vidtube/backend/internal/apierror"
	"github.com/vidtube/backend/internal/logging"
)

// RateLimiter decides whether the caller identified by key may proceed.
type RateLimiter interface {
	Allow(key string) bool
}

// Credential endpoints each get their own budget per client.
const (
	scopeRegister = "register"
	scopeLogin    = "login"
	scopeRefresh  = "refresh-token"
)

// throttled answers 429 and reports true when the client has exhausted its
// budget for scope.
func (h UserHandler) throttled(w http.ResponseWriter, r *http.Request, scope string) bool {
	if h.Limiter == nil {
		return false
	}
	ip := clientIP(r)
	if h.Limiter.Allow(scope + ":" + ip) {
		return false
	}

	logging.FromContext(r.Context()).Warn("rate limit exceeded", "scope", scope, "client_ip", ip)
	respondError(r.Context(), w, apierror.TooManyRequests("Too many requests"))
	return true
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}
