package eventpublisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/chatwarden/internal/adapter/metrics"
	"github.com/pscheid92/chatwarden/internal/domain"
)

func setup(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestPublishModerationEvent_DeliversJSON(t *testing.T) {
	_, rdb := setup(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, "chatwarden:events")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	m := metrics.NewEventMetrics(prometheus.NewRegistry())
	ep := New(rdb, "chatwarden:events", m)

	tally := 3
	event := domain.ModerationEvent{
		ID:               uuid.New(),
		Kind:             domain.ActionVoteKick,
		ChatID:           -100,
		ActorID:          11,
		Target:           domain.Subject{ID: 22, Username: "spammer"},
		VoteKickTally:    &tally,
		ThresholdReached: true,
		OccurredAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, ep.PublishModerationEvent(ctx, event))

	select {
	case msg := <-sub.Channel():
		var got domain.ModerationEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, event.ID, got.ID)
		assert.True(t, got.ThresholdReached)
		require.NotNil(t, got.VoteKickTally)
		assert.Equal(t, 3, *got.VoteKickTally)
		assert.Nil(t, got.WarnCount)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	assert.InDelta(t, 1, testutil.ToFloat64(m.Published.WithLabelValues("votekick", "ok")), 0)
}

func TestPublishModerationEvent_NoSubscribers(t *testing.T) {
	_, rdb := setup(t)
	m := metrics.NewEventMetrics(prometheus.NewRegistry())

	err := New(rdb, "chatwarden:events", m).PublishModerationEvent(context.Background(), domain.ModerationEvent{Kind: domain.ActionWarn})
	require.NoError(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Published.WithLabelValues("warn", "unheard")), 0)
}

func TestPublishModerationEvent_RedisDown(t *testing.T) {
	mr, rdb := setup(t)
	mr.Close()

	err := New(rdb, "chatwarden:events", nil).PublishModerationEvent(context.Background(), domain.ModerationEvent{Kind: domain.ActionTrust})
	assert.ErrorContains(t, err, "publish moderation event")
}
