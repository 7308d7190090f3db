// Package eventpublisher fans moderation events out to the chat platform bridge over Redis pub/sub.
package eventpublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/chatwarden/internal/adapter/metrics"
	"github.com/pscheid92/chatwarden/internal/domain"
)

// EventPublisher implements domain.EventPublisher by publishing JSON on a Redis channel.
type EventPublisher struct {
	rdb     goredis.UniversalClient
	channel string
	metrics *metrics.EventMetrics
}

var _ domain.EventPublisher = (*EventPublisher)(nil)

// New builds a publisher. m may be nil.
func New(rdb goredis.UniversalClient, channel string, m *metrics.EventMetrics) *EventPublisher {
	return &EventPublisher{rdb: rdb, channel: channel, metrics: m}
}

func (ep *EventPublisher) PublishModerationEvent(ctx context.Context, event domain.ModerationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		ep.observe(event.Kind, "error")
		return fmt.Errorf("marshal moderation event: %w", err)
	}

	receivers, err := ep.rdb.Publish(ctx, ep.channel, payload).Result()
	if err != nil {
		ep.observe(event.Kind, "error")
		return fmt.Errorf("publish moderation event: %w", err)
	}

	if receivers == 0 {
		slog.WarnContext(ctx, "Moderation event had no subscribers", "channel", ep.channel, "kind", event.Kind, "event_id", event.ID)
		ep.observe(event.Kind, "unheard")
		return nil
	}
	ep.observe(event.Kind, "ok")
	return nil
}

func (ep *EventPublisher) observe(kind domain.ActionKind, result string) {
	if ep.metrics != nil {
		ep.metrics.Published.WithLabelValues(string(kind), result).Inc()
	}
}
