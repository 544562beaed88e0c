package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_AllGroupsRegister(t *testing.T) {
	reg := NewRegistry()

	require.NotPanics(t, func() {
		NewHTTPMetrics(reg)
		NewWebSocketMetrics(reg)
		NewBroadcastMetrics(reg)
		NewAuthMetrics(reg)
		NewRelayMetrics(reg)
		NewDBMetrics(reg)
	})
}

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	reg := NewRegistry()
	bm := NewBroadcastMetrics(reg)
	bm.Published.Add(3)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "taskman_broadcast_published_total 3")
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	reg := NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/tasks", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for _, path := range []string{"/api/tasks", "/api/tasks", "/health/live"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/api/tasks", "204")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightGauge))

	count, err := testutil.GatherAndCount(reg, "taskman_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "health probes must not create series")
}

func TestAuthMetrics_Labels(t *testing.T) {
	reg := NewRegistry()
	m := NewAuthMetrics(reg)

	m.Verifications.WithLabelValues("ok").Inc()
	m.Verifications.WithLabelValues("invalid").Inc()

	expected := `
# HELP taskman_auth_verifications_total Total number of token verifications, by result.
# TYPE taskman_auth_verifications_total counter
taskman_auth_verifications_total{result="invalid"} 1
taskman_auth_verifications_total{result="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "taskman_auth_verifications_total"))
}
