package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID_Unique(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for range 100 {
		id := NewID()
		assert.Len(t, id, 8)
		ids[id] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestFromHeader(t *testing.T) {
	assert.Equal(t, "req-123_abc", FromHeader("req-123_abc"))

	for _, bad := range []string{"", "has space", "semi;colon", strings.Repeat("a", 65)} {
		got := FromHeader(bad)
		assert.NotEqual(t, bad, got)
		assert.Len(t, got, 8)
	}
}

func TestID_Roundtrip(t *testing.T) {
	id, ok := ID(WithID(context.Background(), "abc12345"))
	assert.True(t, ok)
	assert.Equal(t, "abc12345", id)

	_, ok = ID(context.Background())
	assert.False(t, ok)

	_, ok = ID(WithID(context.Background(), ""))
	assert.False(t, ok)
}

func TestHandler_AddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil))).With("component", "gate")

	logger.InfoContext(WithID(context.Background(), "test1234"), "authorized", "kind", "warn")
	logger.InfoContext(context.Background(), "no correlation")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "correlation_id=test1234")
	assert.Contains(t, lines[0], "component=gate")
	assert.Contains(t, lines[0], "kind=warn")
	assert.NotContains(t, lines[1], "correlation_id")
}
