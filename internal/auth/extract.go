package auth

import (
	"net/http"
	"strings"
)

const (
	bearerPrefix   = "Bearer "
	tokenQueryName = "token"
)

// ExtractToken returns the raw credential of a connection attempt. The
// Authorization header is tried before the token query parameter.
func ExtractToken(r *http.Request) (string, bool) {
	if token, ok := BearerToken(r.Header); ok {
		return token, true
	}
	if token := strings.TrimSpace(r.URL.Query().Get(tokenQueryName)); token != "" {
		return token, true
	}
	return "", false
}

// BearerToken reads a "Bearer <token>" Authorization header.
func BearerToken(h http.Header) (string, bool) {
	raw := strings.TrimSpace(h.Get("Authorization"))
	if len(raw) <= len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(raw[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
