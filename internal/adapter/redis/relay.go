package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/taskman/taskman/internal/adapter/metrics"
	"github.com/taskman/taskman/internal/domain"
)

const channelPrefix = "taskman:events:"

func channelFor(groupKey string) string {
	return channelPrefix + groupKey
}

// Relay is a domain.EventPublisher that routes events through Redis so every
// instance can deliver them to its own connections. Run must be active on
// each instance for events to arrive locally.
type Relay struct {
	rdb     *goredis.Client
	local   domain.EventPublisher
	metrics *metrics.RelayMetrics
}

func NewRelay(rdb *goredis.Client, local domain.EventPublisher, m *metrics.RelayMetrics) *Relay {
	return &Relay{rdb: rdb, local: local, metrics: m}
}

// Publish sends payload to Redis. If Redis refuses it, the payload is
// delivered to this instance's connections only and the Redis error is
// returned.
func (r *Relay) Publish(ctx context.Context, groupKey string, payload []byte) error {
	if err := r.rdb.Publish(ctx, channelFor(groupKey), payload).Err(); err != nil {
		r.metrics.PublishErrors.Inc()
		if localErr := r.local.Publish(ctx, groupKey, payload); localErr != nil {
			slog.WarnContext(ctx, "Local fallback publish failed", "group", groupKey, "error", localErr)
		}
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	r.metrics.Published.Inc()
	return nil
}

// Run subscribes to every group channel and forwards messages into the
// local publisher until ctx is cancelled. ready, if non-nil, is closed once
// the subscription is confirmed.
func (r *Relay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event channels: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	slog.Info("Event relay subscribed", "pattern", channelPrefix+"*")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			groupKey := strings.TrimPrefix(msg.Channel, channelPrefix)
			r.metrics.Received.Inc()
			if err := r.local.Publish(ctx, groupKey, []byte(msg.Payload)); err != nil {
				slog.WarnContext(ctx, "Failed to relay event locally", "group", groupKey, "error", err)
			}
		}
	}
}
