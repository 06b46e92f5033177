package interfaces

import (
	"context"

	"liveclass/pkg/types"
)

// Connection is one realtime subscriber of a session channel.
type Connection interface {
	// WriteJSON queues v for the single writer, waiting up to the write timeout.
	WriteJSON(v interface{}) error

	// TrySend queues v without waiting; a full buffer drops the frame.
	TrySend(v interface{}) error

	Close() error

	// GetIdentity returns "teacher-{id}" or "child-{id}".
	GetIdentity() string
	GetRole() types.ParticipantRole
	GetSessionID() string

	IsAuthenticated() bool
	SetCredentials(identity string, role types.ParticipantRole, sessionID string) error
}

// Broadcaster publishes an event to every party subscribed to the event's
// channel except the publisher. Delivery is at-most-once with no replay;
// events from one publisher on one channel keep their publish order.
type Broadcaster interface {
	Publish(ctx context.Context, event *types.Event) error
}

// MediaTokenIssuer issues scoped credentials for the external audio/video provider.
type MediaTokenIssuer interface {
	Issue(ctx context.Context, grant types.MediaGrant) (*types.MediaCredentials, error)
}

// SubscriberGate decides who may subscribe to a session channel and records
// the connection status of student subscribers.
type SubscriberGate interface {
	Admit(ctx context.Context, actor types.ActorContext, sessionID, childID string) (*types.Admission, error)
	Disconnected(ctx context.Context, admission *types.Admission) error
}
