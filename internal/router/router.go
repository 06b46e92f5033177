// Package router fans session events out to the channel's subscribers.
package router

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"liveclass/internal/websocket"
	"liveclass/pkg/types"
)

// DefaultPublishRateLimit is the per-publisher budget for high-frequency
// events per minute.
const DefaultPublishRateLimit = 120

// limitedEvents are throttled per publisher; everything else passes.
var limitedEvents = map[types.EventType]bool{
	types.EventAnnotationStroke: true,
	types.EventEmojiReaction:    true,
}

// Router delivers events to the connections registered for their session.
type Router struct {
	registry    *websocket.Registry
	rateLimiter *RateLimiter
	logger      *zap.Logger
}

func NewRouter(registry *websocket.Registry, publishRateLimit int, logger *zap.Logger) *Router {
	return &Router{
		registry:    registry,
		rateLimiter: NewRateLimiter(publishRateLimit),
		logger:      logger.Named("router"),
	}
}

// Admit checks an event before it is queued. High-frequency events beyond
// the publisher's budget are rejected.
func (r *Router) Admit(event *types.Event) error {
	if event == nil || event.SessionID == "" || event.Type == "" {
		return ErrInvalidEvent
	}
	if limitedEvents[event.Type] && !r.rateLimiter.Allow(event.SessionID+"|"+event.PublisherID+"|"+string(event.Type)) {
		return ErrRateLimitExceeded
	}
	return nil
}

// RouteEvent writes event to every subscriber of its session except the
// publisher. Slow subscribers lose the frame; delivery to the rest goes on.
// It returns the number of subscribers the frame was queued for.
func (r *Router) RouteEvent(ctx context.Context, event *types.Event) int {
	delivered := 0
	for _, conn := range r.registry.GetSessionConnections(event.SessionID) {
		if event.PublisherID != "" && conn.GetIdentity() == event.PublisherID {
			continue
		}
		if err := conn.TrySend(event); err != nil {
			if errors.Is(err, websocket.ErrBufferFull) {
				r.logger.Warn("dropped event for slow subscriber",
					zap.String("session_id", event.SessionID),
					zap.String("identity", conn.GetIdentity()),
					zap.String("event", string(event.Type)))
			}
			continue
		}
		delivered++
	}
	return delivered
}

// Cleanup forgets idle rate-limit windows.
func (r *Router) Cleanup() {
	r.rateLimiter.Cleanup()
}
