package diagnostics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"api_config/internal/config"
)

func sampleDiagnostics(cycleID string, n int) []Diagnostic {
	out := make([]Diagnostic, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Diagnostic{
			CycleID:   cycleID,
			Timestamp: time.Date(2026, 10, 19, 12, 0, i, 0, time.UTC),
			Stage:     StageModel,
			EntityKey: "gpt-" + string(rune('a'+i)),
			Reason:    "provider not found",
		})
	}
	return out
}

func TestNoopSink(t *testing.T) {
	sink := NewNoopSink()

	err := sink.Publish(context.Background(), sampleDiagnostics("c1", 2))
	if err != nil {
		t.Errorf("Expected no error from NoopSink.Publish, got %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Expected no error from NoopSink.Close, got %v", err)
	}
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	require.NoError(t, sink.Publish(ctx, sampleDiagnostics("c1", 2)))
	require.NoError(t, sink.Publish(ctx, sampleDiagnostics("c2", 1)))

	got := sink.Snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, "c1", got[0].CycleID)
	assert.Equal(t, "c2", got[2].CycleID)

	// Snapshot is a copy
	got[0].CycleID = "changed"
	assert.Equal(t, "c1", sink.Snapshot()[0].CycleID)

	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.Publish(ctx, sampleDiagnostics("c3", 1)), ErrSinkClosed)
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Stage: StagePlugin, EntityKey: "tracing", Parent: "default", Reason: "missing endpoint"}
	assert.Equal(t, `plugin "tracing" in "default" skipped: missing endpoint`, d.String())

	d = Diagnostic{Stage: StageProvider, EntityID: "p-1", Reason: "boom"}
	assert.Equal(t, `provider "p-1" skipped: boom`, d.String())
}

func newTestRedisSink(t *testing.T, maxLen int64) (*RedisSink, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sink := NewRedisSinkWithClient(client, "diagnostics:test", maxLen)
	t.Cleanup(func() { sink.Close() })
	return sink, mr
}

func TestRedisSink_PublishAndRecent(t *testing.T) {
	sink, mr := newTestRedisSink(t, 0)
	ctx := context.Background()

	require.NoError(t, sink.Publish(ctx, sampleDiagnostics("cycle-1", 3)))

	length, err := sink.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), length)

	items, err := mr.List("diagnostics:test")
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Contains(t, items[0], `"cycle_id":"cycle-1"`)

	recent, err := sink.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "gpt-b", recent[0].EntityKey)
	assert.Equal(t, "gpt-c", recent[1].EntityKey)
}

func TestRedisSink_TrimsToMaxLen(t *testing.T) {
	sink, _ := newTestRedisSink(t, 2)
	ctx := context.Background()

	require.NoError(t, sink.Publish(ctx, sampleDiagnostics("cycle-1", 3)))
	require.NoError(t, sink.Publish(ctx, sampleDiagnostics("cycle-2", 1)))

	recent, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "cycle-1", recent[0].CycleID)
	assert.Equal(t, "gpt-c", recent[0].EntityKey)
	assert.Equal(t, "cycle-2", recent[1].CycleID)
}

func TestRedisSink_EmptyPublish(t *testing.T) {
	sink, _ := newTestRedisSink(t, 10)
	require.NoError(t, sink.Publish(context.Background(), nil))

	length, err := sink.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func TestNewRedisSink_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisSink(context.Background(), config.RedisConfig{
		Address:     addr,
		Key:         "diagnostics:test",
		DialTimeout: 200 * time.Millisecond,
	})
	assert.Error(t, err)
}

func TestNewSink(t *testing.T) {
	ctx := context.Background()

	sink, err := NewSink(ctx, config.DiagnosticsConfig{Sink: "none"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &NoopSink{}, sink)

	sink, err = NewSink(ctx, config.DiagnosticsConfig{Sink: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemorySink{}, sink)

	mr := miniredis.RunT(t)
	sink, err = NewSink(ctx, config.DiagnosticsConfig{
		Sink:  "redis",
		Redis: config.RedisConfig{Address: mr.Addr(), Key: "diagnostics:test", MaxLen: 10},
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &RedisSink{}, sink)
	sink.Close()

	_, err = NewSink(ctx, config.DiagnosticsConfig{Sink: "kafka"}, nil)
	assert.Error(t, err)
}
