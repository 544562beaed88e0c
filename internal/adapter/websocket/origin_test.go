package websocket

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCheckOrigin(t *testing.T) {
	allowed := []string{"https://tasks.example.com/app", "https://admin.example.com"}

	tests := []struct {
		name          string
		origin        string
		isDevelopment bool
		want          bool
	}{
		{"empty origin", "", false, true},
		{"app origin", "https://tasks.example.com", false, true},
		{"second allowed origin", "https://admin.example.com", false, true},
		{"trailing slash", "https://tasks.example.com/", false, true},

		{"different host", "https://evil.com", false, false},
		{"different port", "https://tasks.example.com:9090", false, false},
		{"http instead of https", "http://tasks.example.com", false, false},
		{"subdomain", "https://sub.tasks.example.com", false, false},

		{"localhost dev", "http://localhost:5173", true, true},
		{"loopback dev", "http://127.0.0.1:3000", true, true},
		{"localhost prod rejected", "http://localhost:5173", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewCheckOrigin(allowed, tt.isDevelopment)
			r := httptest.NewRequest(http.MethodGet, "/ws/tasks", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checker(r))
		})
	}
}

func TestExtractOrigin(t *testing.T) {
	assert.Equal(t, "https://example.com", extractOrigin("https://example.com/path"))
	assert.Equal(t, "http://localhost:8080", extractOrigin("http://localhost:8080/callback"))
	assert.Equal(t, "", extractOrigin(""))
	assert.Equal(t, "", extractOrigin("mailto:user@example.com"))
}
