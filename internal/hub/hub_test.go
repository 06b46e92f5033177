package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"liveclass/internal/router"
	"liveclass/internal/websocket"
	"liveclass/pkg/types"
)

func newTestHub(t *testing.T, rateLimit int) (*Hub, *websocket.Registry) {
	t.Helper()
	registry := websocket.NewRegistry(zap.NewNop())
	h := NewHub(registry, router.NewRouter(registry, rateLimit, zap.NewNop()), zap.NewNop())
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Stop() })
	return h, registry
}

func subscribe(t *testing.T, h *Hub, registry *websocket.Registry, identity, sessionID string) *websocket.Connection {
	t.Helper()
	conn := websocket.NewConnection(nil, websocket.Options{BufferSize: 500})
	require.NoError(t, conn.SetCredentials(identity, types.ParticipantStudent, sessionID))
	require.NoError(t, h.RegisterConnection(conn))
	require.Eventually(t, func() bool {
		got, ok := registry.GetConnection(sessionID, identity)
		return ok && got == conn
	}, time.Second, 5*time.Millisecond)
	return conn
}

func drainEvents(t *testing.T, conn *websocket.Connection, want int) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	deadline := time.Now().Add(2 * time.Second)
	for len(out) < want && time.Now().Before(deadline) {
		for _, data := range conn.Drain() {
			var frame map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &frame))
			out = append(out, frame)
		}
		if len(out) < want {
			time.Sleep(5 * time.Millisecond)
		}
	}
	return out
}

func TestHub_StartStop(t *testing.T) {
	registry := websocket.NewRegistry(zap.NewNop())
	h := NewHub(registry, router.NewRouter(registry, 0, zap.NewNop()), zap.NewNop())

	assert.ErrorIs(t, h.Publish(context.Background(), types.NewEvent("s1", types.EventSlideChanged, "", nil)), ErrHubNotRunning)
	assert.ErrorIs(t, h.Stop(), ErrHubNotRunning)

	require.NoError(t, h.Start(context.Background()))
	assert.ErrorIs(t, h.Start(context.Background()), ErrHubAlreadyRunning)

	conn := websocket.NewConnection(nil, websocket.Options{})
	require.NoError(t, conn.SetCredentials("child-c1", types.ParticipantStudent, "s1"))
	require.NoError(t, h.RegisterConnection(conn))
	require.Eventually(t, func() bool { return registry.GetStats()["total_connections"] == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Stop())
	assert.ErrorIs(t, conn.TrySend("x"), websocket.ErrConnectionClosed, "stop closes subscribers")
	assert.ErrorIs(t, h.RegisterConnection(conn), ErrHubNotRunning)
}

func TestHub_ContextCancelStops(t *testing.T) {
	registry := websocket.NewRegistry(zap.NewNop())
	h := NewHub(registry, router.NewRouter(registry, 0, zap.NewNop()), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.Start(ctx))

	cancel()
	assert.Eventually(t, func() bool {
		return errors.Is(h.Publish(context.Background(), types.NewEvent("s1", types.EventSlideChanged, "", nil)), ErrHubNotRunning)
	}, time.Second, 5*time.Millisecond)
}

// One teacher slide change reaches every other subscriber exactly once and
// never the teacher.
func TestHub_FanOutExcludesPublisher(t *testing.T) {
	h, registry := newTestHub(t, 0)
	teacher := subscribe(t, h, registry, "teacher-t1", "s1")
	students := []*websocket.Connection{
		subscribe(t, h, registry, "child-a", "s1"),
		subscribe(t, h, registry, "child-b", "s1"),
	}

	require.NoError(t, h.Publish(context.Background(),
		types.NewEvent("s1", types.EventSlideChanged, "teacher-t1", types.SlideChangedPayload{SlideID: "42", ChangedBy: "t1"})))

	for _, s := range students {
		frames := drainEvents(t, s, 1)
		require.Len(t, frames, 1)
		assert.Equal(t, "SlideChanged", frames[0]["event"])
		assert.Equal(t, "live-session.s1", frames[0]["channel"])
		payload := frames[0]["payload"].(map[string]interface{})
		assert.Equal(t, "42", payload["slideId"])
		assert.Equal(t, "t1", payload["changedBy"])
	}

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, teacher.Drain())
}

func TestHub_PublisherOrderPreserved(t *testing.T) {
	h, registry := newTestHub(t, 0)
	student := subscribe(t, h, registry, "child-a", "s1")

	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, h.Publish(context.Background(),
			types.NewEvent("s1", types.EventSlideChanged, "teacher-t1", types.SlideChangedPayload{SlideID: fmt.Sprint(i)})))
	}

	frames := drainEvents(t, student, n)
	require.Len(t, frames, n)
	for i, frame := range frames {
		assert.Equal(t, fmt.Sprint(i), frame["payload"].(map[string]interface{})["slideId"])
	}
}

func TestHub_ConcurrentPublishers(t *testing.T) {
	h, registry := newTestHub(t, 0)
	student := subscribe(t, h, registry, "child-a", "s1")

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				assert.NoError(t, h.Publish(context.Background(),
					types.NewEvent("s1", types.EventHandRaised, fmt.Sprintf("child-%d", p), types.HandRaisedPayload{ChildID: fmt.Sprint(p), ChildName: fmt.Sprint(i)})))
			}
		}(p)
	}
	wg.Wait()

	frames := drainEvents(t, student, 100)
	require.Len(t, frames, 100)

	last := map[string]int{}
	for _, frame := range frames {
		payload := frame["payload"].(map[string]interface{})
		publisher := payload["childId"].(string)
		var seq int
		_, err := fmt.Sscan(payload["childName"].(string), &seq)
		require.NoError(t, err)
		if prev, ok := last[publisher]; ok {
			assert.Greater(t, seq, prev, "per-publisher order")
		}
		last[publisher] = seq
	}
}

func TestHub_RateLimited(t *testing.T) {
	h, _ := newTestHub(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.Publish(ctx, types.NewEvent("s1", types.EventEmojiReaction, "child-a", nil)))
	}
	err := h.Publish(ctx, types.NewEvent("s1", types.EventEmojiReaction, "child-a", nil))
	assert.True(t, errors.Is(err, types.ErrRateLimited))
}

func TestHub_UnregisterKeepsReplacement(t *testing.T) {
	h, registry := newTestHub(t, 0)
	first := subscribe(t, h, registry, "child-a", "s1")
	second := subscribe(t, h, registry, "child-a", "s1")

	require.NoError(t, h.UnregisterConnection(first))
	time.Sleep(50 * time.Millisecond)

	got, ok := registry.GetConnection("s1", "child-a")
	require.True(t, ok)
	assert.Same(t, second, got)

	require.NoError(t, h.UnregisterConnection(second))
	assert.Eventually(t, func() bool {
		_, ok := registry.GetConnection("s1", "child-a")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestHub_Stats(t *testing.T) {
	h, registry := newTestHub(t, 0)
	subscribe(t, h, registry, "child-a", "s1")

	stats := h.GetStats()
	assert.Equal(t, 1, stats["total_connections"])
	assert.Contains(t, stats, "queued_events")
}
