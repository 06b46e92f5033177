package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

type stubAuthenticator map[string]types.ActorContext

func (s stubAuthenticator) Authenticate(token string) (types.ActorContext, error) {
	actor, ok := s[token]
	if !ok {
		return types.ActorContext{}, errors.New("unknown token")
	}
	return actor, nil
}

type stubGate struct {
	mu           sync.Mutex
	err          error
	session      *types.Session
	disconnected []string
}

func (g *stubGate) Admit(ctx context.Context, actor types.ActorContext, sessionID, childID string) (*types.Admission, error) {
	if g.err != nil {
		return nil, g.err
	}
	s := *g.session
	if actor.Role == types.RoleGuardian {
		return &types.Admission{Session: &s, Identity: types.ChildIdentity(childID), Role: types.ParticipantStudent, ChildID: childID}, nil
	}
	return &types.Admission{Session: &s, Identity: types.TeacherIdentity(actor.AccountID), Role: types.ParticipantTeacher}, nil
}

func (g *stubGate) Disconnected(ctx context.Context, admission *types.Admission) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disconnected = append(g.disconnected, admission.Identity)
	return nil
}

func (g *stubGate) released() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.disconnected...)
}

// directSubscriptions applies registrations immediately.
type directSubscriptions struct{ registry *Registry }

func (d directSubscriptions) RegisterConnection(conn *Connection) error {
	return d.registry.RegisterConnection(conn)
}

func (d directSubscriptions) UnregisterConnection(conn *Connection) error {
	d.registry.UnregisterConnection(conn)
	return nil
}

var _ interfaces.SubscriberGate = (*stubGate)(nil)

type handlerFixture struct {
	server   *httptest.Server
	registry *Registry
	gate     *stubGate
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	slide := "42"
	gate := &stubGate{session: &types.Session{ID: "s1", Status: types.StatusLive, CurrentSlideID: &slide, NavigationLocked: true}}
	registry := NewRegistry(zap.NewNop())
	tokens := stubAuthenticator{
		"teacher-token":  {AccountID: "t1", Role: types.RoleTeacher},
		"guardian-token": {AccountID: "g1", Role: types.RoleGuardian},
	}
	handler := NewHandler(tokens, gate, directSubscriptions{registry}, Options{PingInterval: 50 * time.Millisecond}, zap.NewNop())

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)
	return &handlerFixture{server: server, registry: registry, gate: gate}
}

func (f *handlerFixture) url(query string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?" + query
}

func (f *handlerFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(f.url(query), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandler_SubscribedFrame(t *testing.T) {
	f := newHandlerFixture(t)
	conn := f.dial(t, "session_id=s1&token=teacher-token")

	var frame struct {
		Channel string                  `json:"channel"`
		Event   types.EventType         `json:"event"`
		Payload types.SubscribedPayload `json:"payload"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))

	assert.Equal(t, "live-session.s1", frame.Channel)
	assert.Equal(t, types.EventSubscribed, frame.Event)
	assert.Equal(t, types.StatusLive, frame.Payload.Status)
	require.NotNil(t, frame.Payload.CurrentSlideID)
	assert.Equal(t, "42", *frame.Payload.CurrentSlideID)
	assert.True(t, frame.Payload.NavigationLocked)
	assert.Equal(t, "teacher-t1", frame.Payload.Identity)

	assert.Eventually(t, func() bool {
		_, ok := f.registry.GetConnection("s1", "teacher-t1")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestHandler_BearerHeader(t *testing.T) {
	f := newHandlerFixture(t)
	header := http.Header{}
	header.Set("Authorization", "Bearer guardian-token")

	conn, _, err := websocket.DefaultDialer.Dial(f.url("session_id=s1&child_id=c1"), header)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool {
		_, ok := f.registry.GetConnection("s1", "child-c1")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestHandler_Refusals(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		gateErr  error
		expected int
	}{
		{"missing session", "token=teacher-token", nil, http.StatusBadRequest},
		{"missing token", "session_id=s1", nil, http.StatusUnauthorized},
		{"bad token", "session_id=s1&token=nope", nil, http.StatusUnauthorized},
		{"not found", "session_id=s1&token=teacher-token", interfaces.ErrSessionNotFound, http.StatusNotFound},
		{"denied", "session_id=s1&token=teacher-token", types.ErrAccessDenied, http.StatusForbidden},
		{"ended", "session_id=s1&token=teacher-token", fmt.Errorf("ended: %w", types.ErrInvalidStateTransition), http.StatusConflict},
		{"no dependents", "session_id=s1&token=guardian-token", types.ErrMissingDependentProfile, http.StatusUnprocessableEntity},
		{"ambiguous", "session_id=s1&token=guardian-token", &types.AmbiguousDependent{}, http.StatusBadRequest},
		{"store failure", "session_id=s1&token=teacher-token", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			f.gate.err = tt.gateErr

			_, resp, err := websocket.DefaultDialer.Dial(f.url(tt.query), nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.expected, resp.StatusCode)
			assert.Equal(t, 0, f.registry.GetStats()["total_connections"])
		})
	}
}

func TestHandler_DisconnectReleasesStudent(t *testing.T) {
	f := newHandlerFixture(t)
	conn := f.dial(t, "session_id=s1&token=guardian-token&child_id=c1")

	require.Eventually(t, func() bool {
		_, ok := f.registry.GetConnection("s1", "child-c1")
		return ok
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return len(f.gate.released()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"child-c1"}, f.gate.released())
	assert.Eventually(t, func() bool {
		_, ok := f.registry.GetConnection("s1", "child-c1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestHandler_ReplacedSubscriptionIsNotReleased(t *testing.T) {
	f := newHandlerFixture(t)
	f.dial(t, "session_id=s1&token=guardian-token&child_id=c1")
	require.Eventually(t, func() bool {
		_, ok := f.registry.GetConnection("s1", "child-c1")
		return ok
	}, time.Second, 10*time.Millisecond)
	first, _ := f.registry.GetConnection("s1", "child-c1")

	f.dial(t, "session_id=s1&token=guardian-token&child_id=c1")
	require.Eventually(t, func() bool {
		current, ok := f.registry.GetConnection("s1", "child-c1")
		return ok && current != first
	}, time.Second, 10*time.Millisecond)

	// The first socket is closed by the replacement; its cleanup must not
	// report the child as dropped.
	<-first.Done()
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, f.gate.released())
}

func TestHandler_Heartbeat(t *testing.T) {
	f := newHandlerFixture(t)
	conn := f.dial(t, "session_id=s1&token=teacher-token")

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}
