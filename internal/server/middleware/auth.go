package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// callerKey carries the authenticated wallet address through the request
// context.
const callerKey contextKey = "caller"

// Auth returns middleware that identifies the calling wallet. The address
// arrives as a Bearer token in the Authorization header or in the X-Wallet
// header; signature verification happens upstream at the gateway, so the
// engine treats the presented address as authenticated. Requests without an
// address still pass through; handlers that require a caller reject them.
func Auth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if addr := extractAddress(r); addr != "" {
				r = r.WithContext(context.WithValue(r.Context(), callerKey, addr))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Caller returns the authenticated wallet address from the request context,
// or "" when the request carried none.
func Caller(r *http.Request) string {
	addr, _ := r.Context().Value(callerKey).(string)
	return addr
}

// extractAddress looks for a wallet address in the Authorization header
// (Bearer scheme) or in the X-Wallet header.
func extractAddress(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if addr := r.Header.Get("X-Wallet"); addr != "" {
		return strings.TrimSpace(addr)
	}
	return ""
}
