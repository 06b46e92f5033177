// Package hub is the event broadcaster. One goroutine applies registrations
// and routes events in arrival order, which keeps every publisher's events
// ordered on every channel.
package hub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"liveclass/internal/router"
	"liveclass/internal/websocket"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

var _ interfaces.Broadcaster = (*Hub)(nil)

const cleanupInterval = time.Minute

// Hub coordinates event routing and connection registration.
type Hub struct {
	eventChannel      chan *types.Event
	registerChannel   chan *websocket.Connection
	unregisterChannel chan *websocket.Connection
	shutdownChannel   chan struct{}
	done              chan struct{}

	registry *websocket.Registry
	router   *router.Router
	logger   *zap.Logger

	running bool
	mu      sync.RWMutex
}

func NewHub(registry *websocket.Registry, router *router.Router, logger *zap.Logger) *Hub {
	return &Hub{
		eventChannel:      make(chan *types.Event, 1000),
		registerChannel:   make(chan *websocket.Connection, 100),
		unregisterChannel: make(chan *websocket.Connection, 100),
		shutdownChannel:   make(chan struct{}),
		done:              make(chan struct{}),
		registry:          registry,
		router:            router,
		logger:            logger.Named("hub"),
	}
}

// Start launches the processing goroutine.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	h.logger.Info("starting event hub")
	go h.run(ctx)
	return nil
}

// Stop ends processing and closes every subscriber connection.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	<-h.done
	h.registry.CloseAll()
	h.logger.Info("event hub stopped")
	return nil
}

// Publish queues event for delivery to the channel's other subscribers.
// It fails fast when the hub is down, the publisher is over its rate limit
// or the queue is full; it never waits for delivery.
func (h *Hub) Publish(ctx context.Context, event *types.Event) error {
	if err := h.checkRunning(); err != nil {
		return err
	}
	if err := h.router.Admit(event); err != nil {
		return err
	}

	select {
	case h.eventChannel <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrMessageChannelFull
	}
}

// RegisterConnection queues conn for registration. Events published after
// the registration is applied reach it.
func (h *Hub) RegisterConnection(conn *websocket.Connection) error {
	if err := h.checkRunning(); err != nil {
		return err
	}
	select {
	case h.registerChannel <- conn:
		return nil
	default:
		return ErrRegisterChannelFull
	}
}

// UnregisterConnection queues conn for removal. A connection that was
// already replaced leaves the newer one in place.
func (h *Hub) UnregisterConnection(conn *websocket.Connection) error {
	if err := h.checkRunning(); err != nil {
		return err
	}
	select {
	case h.unregisterChannel <- conn:
		return nil
	default:
		return ErrUnregisterChannelFull
	}
}

func (h *Hub) checkRunning() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}
	return nil
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-h.eventChannel:
			h.handleEvent(ctx, event)

		case conn := <-h.registerChannel:
			h.handleRegistration(conn)

		case conn := <-h.unregisterChannel:
			h.handleDeregistration(conn)

		case <-ticker.C:
			h.router.Cleanup()

		case <-h.shutdownChannel:
			h.logger.Info("hub shutdown requested")
			return

		case <-ctx.Done():
			h.logger.Info("hub context cancelled")
			h.mu.Lock()
			if h.running {
				h.running = false
				close(h.shutdownChannel)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) handleEvent(ctx context.Context, event *types.Event) {
	delivered := h.router.RouteEvent(ctx, event)
	h.logger.Debug("event routed",
		zap.String("session_id", event.SessionID),
		zap.String("event", string(event.Type)),
		zap.String("publisher", event.PublisherID),
		zap.Int("delivered", delivered))
}

func (h *Hub) handleRegistration(conn *websocket.Connection) {
	if conn == nil {
		h.logger.Warn("attempted to register nil connection")
		return
	}
	if err := h.registry.RegisterConnection(conn); err != nil {
		h.logger.Warn("connection registration failed", zap.String("identity", conn.GetIdentity()), zap.Error(err))
		if closeErr := conn.Close(); closeErr != nil {
			h.logger.Debug("failed to close rejected connection", zap.Error(closeErr))
		}
		return
	}
	h.logger.Debug("connection registered",
		zap.String("identity", conn.GetIdentity()),
		zap.String("role", string(conn.GetRole())),
		zap.String("session_id", conn.GetSessionID()))
}

func (h *Hub) handleDeregistration(conn *websocket.Connection) {
	if h.registry.UnregisterConnection(conn) {
		h.logger.Debug("connection deregistered",
			zap.String("identity", conn.GetIdentity()),
			zap.String("session_id", conn.GetSessionID()))
	}
}

// GetStats reports registry sizes and the event backlog.
func (h *Hub) GetStats() map[string]int {
	stats := h.registry.GetStats()
	stats["queued_events"] = len(h.eventChannel)
	return stats
}
