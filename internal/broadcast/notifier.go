package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/taskman/taskman/internal/adapter/metrics"
	"github.com/taskman/taskman/internal/domain"
)

const publishTimeout = 2 * time.Second

// Notifier publishes committed task mutations to the owner's group.
// Failures are logged and counted; they never reach the caller.
type Notifier struct {
	publisher domain.EventPublisher
	clock     clockwork.Clock
	metrics   *metrics.BroadcastMetrics
}

func NewNotifier(publisher domain.EventPublisher, clock clockwork.Clock, m *metrics.BroadcastMetrics) *Notifier {
	return &Notifier{publisher: publisher, clock: clock, metrics: m}
}

// Notify encodes the envelope once and hands it to the publisher. For
// ActionDeleted only task.ID is read.
func (n *Notifier) Notify(ctx context.Context, owner domain.UserID, action domain.Action, task *domain.Task) {
	event := domain.MutationEvent{Action: action, Owner: owner, Task: task.View(n.clock.Now())}

	payload, err := json.Marshal(event.Envelope())
	if err != nil {
		n.metrics.NotifyErrors.Inc()
		slog.ErrorContext(ctx, "Failed to encode mutation event", "user_id", owner, "action", action.String(), "error", err)
		return
	}

	// Detached from request cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := n.publisher.Publish(ctx, GroupKey(owner), payload); err != nil {
		n.metrics.NotifyErrors.Inc()
		slog.WarnContext(ctx, "Failed to publish mutation event",
			"user_id", owner,
			"action", action.String(),
			"task_id", task.ID,
			"error", err,
		)
		return
	}

	slog.DebugContext(ctx, "Mutation event published", "user_id", owner, "action", action.String(), "task_id", task.ID)
}
