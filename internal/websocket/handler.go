package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"liveclass/internal/auth"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Options tune the per-connection heartbeat and buffering.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultOptions: 30s ping, 60s read deadline, 10s write timeout, 100 frames.
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   100,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	return o
}

// Authenticator resolves a bearer token to the calling account.
type Authenticator interface {
	Authenticate(token string) (types.ActorContext, error)
}

// Subscriptions applies registrations in order with event delivery.
type Subscriptions interface {
	RegisterConnection(conn *Connection) error
	UnregisterConnection(conn *Connection) error
}

// Handler upgrades subscription requests on GET /ws.
type Handler struct {
	authenticator Authenticator
	gate          interfaces.SubscriberGate
	subscriptions Subscriptions
	options       Options
	logger        *zap.Logger
}

func NewHandler(authenticator Authenticator, gate interfaces.SubscriberGate, subscriptions Subscriptions, options Options, logger *zap.Logger) *Handler {
	return &Handler{
		authenticator: authenticator,
		gate:          gate,
		subscriptions: subscriptions,
		options:       options.withDefaults(),
		logger:        logger.Named("websocket"),
	}
}

// HandleWebSocket validates the caller before upgrading, so refusals are
// plain HTTP errors. Once upgraded the subscriber receives a Subscribed frame
// with the current slide and lock state, then live events only.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sessionID := strings.TrimSpace(query.Get("session_id"))
	childID := strings.TrimSpace(query.Get("child_id"))
	if sessionID == "" {
		http.Error(w, "Missing required query parameter: session_id", http.StatusBadRequest)
		return
	}

	token := auth.BearerToken(r)
	if token == "" {
		http.Error(w, ErrMissingToken.Error(), http.StatusUnauthorized)
		return
	}
	actor, err := h.authenticator.Authenticate(token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	admission, err := h.gate.Admit(r.Context(), actor, sessionID, childID)
	if err != nil {
		status, message := refusal(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("subscription admission failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		http.Error(w, message, status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		h.release(admission)
		return
	}

	wsConn := NewConnection(conn, h.options)
	if err := wsConn.SetCredentials(admission.Identity, admission.Role, admission.Session.ID); err != nil {
		h.logger.Warn("failed to set credentials", zap.Error(err))
		_ = wsConn.Close()
		h.release(admission)
		return
	}

	// The frame reflects the session as read at admission. Events published
	// before the hub applies the registration are not replayed, so clients
	// re-read the session after subscribing.
	s := admission.Session
	subscribed := types.NewEvent(s.ID, types.EventSubscribed, "", types.SubscribedPayload{
		Status:           s.Status,
		CurrentSlideID:   s.CurrentSlideID,
		NavigationLocked: s.NavigationLocked,
		Identity:         admission.Identity,
	})
	if err := wsConn.WriteJSON(subscribed); err != nil {
		h.logger.Warn("failed to send subscribed frame", zap.Error(err))
		_ = wsConn.Close()
		h.release(admission)
		return
	}

	if err := h.subscriptions.RegisterConnection(wsConn); err != nil {
		h.logger.Warn("failed to register connection", zap.Error(err))
		_ = wsConn.Close()
		h.release(admission)
		return
	}

	h.logger.Info("subscriber connected",
		zap.String("session_id", s.ID),
		zap.String("identity", admission.Identity))
	go h.handleConnection(wsConn, admission)
}

// handleConnection runs the read side and heartbeat until the socket drops.
// Clients publish through the HTTP API; inbound frames are discarded.
func (h *Handler) handleConnection(conn *Connection, admission *types.Admission) {
	defer func() {
		if err := h.subscriptions.UnregisterConnection(conn); err != nil {
			h.logger.Debug("failed to unregister connection", zap.Error(err))
		}
		_ = conn.Close()
		if !conn.Replaced() {
			h.release(admission)
		}
		h.logger.Info("subscriber disconnected",
			zap.String("session_id", conn.GetSessionID()),
			zap.String("identity", conn.GetIdentity()))
	}()

	ws := conn.conn
	ws.SetReadLimit(4096)
	if err := ws.SetReadDeadline(time.Now().Add(h.options.ReadTimeout)); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.options.ReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(h.options.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.options.WriteTimeout)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}

// release reports a dropped student subscription to the gate.
func (h *Handler) release(admission *types.Admission) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.gate.Disconnected(ctx, admission); err != nil {
		h.logger.Warn("failed to record disconnect",
			zap.String("identity", admission.Identity),
			zap.Error(err))
	}
}

// refusal maps an admission error to an HTTP status and message.
func refusal(err error) (int, string) {
	var ambiguous *types.AmbiguousDependent
	switch {
	case errors.As(err, &ambiguous):
		return http.StatusBadRequest, "child_id is required for accounts with several dependents"
	case errors.Is(err, types.ErrMissingDependentProfile):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, types.ErrAccessDenied):
		return http.StatusForbidden, "Not authorized to subscribe to this session"
	case errors.Is(err, types.ErrInvalidStateTransition):
		return http.StatusConflict, "Session is not accepting subscribers"
	default:
		return http.StatusInternalServerError, "Subscription failed"
	}
}
