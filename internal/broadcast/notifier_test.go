package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskman/taskman/internal/adapter/metrics"
	"github.com/taskman/taskman/internal/domain"
)

type recordingPublisher struct {
	groupKey string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, groupKey string, payload []byte) error {
	p.groupKey = groupKey
	p.payloads = append(p.payloads, payload)
	return p.err
}

func testTask() *domain.Task {
	desc := "details"
	due := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	created := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	return &domain.Task{
		ID: 7, Title: "x", Description: &desc, Status: domain.StatusPending, Priority: domain.PriorityHigh,
		DueDate: &due, OwnerID: 42, CreatedAt: created, UpdatedAt: created,
	}
}

func TestNotifier_CreatedCarriesFullTask(t *testing.T) {
	pub := &recordingPublisher{}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))
	n := NewNotifier(pub, clock, metrics.NewBroadcastMetrics(prometheus.NewRegistry()))

	n.Notify(context.Background(), 42, domain.ActionCreated, testTask())

	assert.Equal(t, "tasks_42", pub.groupKey)
	require.Len(t, pub.payloads, 1)
	assert.JSONEq(t, `{"action":"created","task":{
		"id":7,"title":"x","description":"details","status":"pending","priority":"high",
		"due_date":"2025-01-05","is_overdue":true,"owner":42,
		"created_at":"2025-01-01T09:00:00Z","updated_at":"2025-01-01T09:00:00Z"}}`, string(pub.payloads[0]))
}

func TestNotifier_DeletedCarriesOnlyID(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewNotifier(pub, clockwork.NewFakeClock(), metrics.NewBroadcastMetrics(prometheus.NewRegistry()))

	n.Notify(context.Background(), 42, domain.ActionDeleted, testTask())

	require.Len(t, pub.payloads, 1)
	assert.JSONEq(t, `{"action":"deleted","task":{"id":7}}`, string(pub.payloads[0]))
}

func TestNotifier_PublishFailureIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("redis down")}
	m := metrics.NewBroadcastMetrics(prometheus.NewRegistry())
	n := NewNotifier(pub, clockwork.NewFakeClock(), m)

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), 42, domain.ActionUpdated, testTask())
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotifyErrors))
}

func TestNotifier_CanceledRequestStillPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewNotifier(pub, clockwork.NewFakeClock(), metrics.NewBroadcastMetrics(prometheus.NewRegistry()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Notify(ctx, 42, domain.ActionUpdated, testTask())

	assert.Len(t, pub.payloads, 1)
}

func TestNotifier_FansOutThroughRegistry(t *testing.T) {
	r, m := newTestRegistry(t)
	n := NewNotifier(r, clockwork.NewFakeClock(), m)

	c1, c2, c3 := NewMember(4), NewMember(4), NewMember(4)
	require.NoError(t, r.Join(GroupKey(42), c1))
	require.NoError(t, r.Join(GroupKey(42), c2))
	require.NoError(t, r.Join(GroupKey(99), c3))

	n.Notify(context.Background(), 42, domain.ActionUpdated, testTask())

	first, second := receive(t, c1), receive(t, c2)
	assert.Equal(t, first, second)
	assert.Contains(t, string(first), `"action":"updated"`)
	assertNoEvent(t, c3)
}
