package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"liveclass/pkg/types"
)

// frame is an event as subscribers receive it.
type frame struct {
	Channel   string          `json:"channel"`
	SessionID string          `json:"session_id"`
	Type      types.EventType `json:"event"`
	Payload   json.RawMessage `json:"payload"`
}

// testClient is a subscriber on one session channel.
type testClient struct {
	conn   *websocket.Conn
	frames chan frame
	done   chan struct{}

	closeOnce sync.Once
}

// dial subscribes with token to sessionID. childID may be empty.
func dial(ctx context.Context, serverURL, token, sessionID, childID string) (*testClient, *http.Response, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid server URL: %w", err)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"
	query := u.Query()
	query.Set("session_id", sessionID)
	if childID != "" {
		query.Set("child_id", childID)
	}
	u.RawQuery = query.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, resp, err
	}

	c := &testClient{
		conn:   conn,
		frames: make(chan frame, 100),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, resp, nil
}

func (c *testClient) readLoop() {
	defer close(c.done)
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		c.frames <- f
	}
}

// expect waits for the next frame and checks its type.
func (c *testClient) expect(t *testing.T, eventType types.EventType) frame {
	t.Helper()
	select {
	case f := <-c.frames:
		require.Equal(t, eventType, f.Type, "payload: %s", string(f.Payload))
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", eventType)
		return frame{}
	}
}

// expectNone checks that no frame arrives within wait.
func (c *testClient) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case f := <-c.frames:
		t.Fatalf("unexpected %s frame: %s", f.Type, string(f.Payload))
	case <-time.After(wait):
	}
}

func (c *testClient) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.conn.Close()
	})
}
