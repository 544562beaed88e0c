package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/taskman/taskman/internal/adapter/metrics"
)

func TestQueryVerb(t *testing.T) {
	tests := []struct{ sql, want string }{
		{"SELECT 1", "SELECT"},
		{"\n\t  insert into tasks VALUES ($1)", "INSERT"},
		{"update tasks set x = 1", "UPDATE"},
		{"DELETE FROM tasks", "DELETE"},
		{"TRUNCATE users", "other"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, queryVerb(tt.sql), tt.sql)
	}
}

func TestMetricsTracer_RecordsErrors(t *testing.T) {
	m := metrics.NewDBMetrics(prometheus.NewRegistry())
	tracer := NewMetricsTracer(m)

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "DELETE FROM tasks"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("boom")})

	ctx = tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("DELETE")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Errors.WithLabelValues("SELECT")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.QueryDuration))
}

func TestMetricsTracer_IgnoresUntracedContext(t *testing.T) {
	m := metrics.NewDBMetrics(prometheus.NewRegistry())
	NewMetricsTracer(m).TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{Err: errors.New("boom")})
	assert.Equal(t, 0, testutil.CollectAndCount(m.Errors))
}
