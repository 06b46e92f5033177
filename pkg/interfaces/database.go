package interfaces

import (
	"context"
	"time"

	"liveclass/pkg/types"
)

// SessionStore is the durable record of session identity, schedule,
// lifecycle status and synchronization flags.
type SessionStore interface {
	CreateSession(ctx context.Context, session *types.Session) error

	// GetSession returns ErrSessionNotFound for unknown ids.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// UpdateSessionDetails writes schedule, lesson and capability columns
	// while the session is still scheduled.
	UpdateSessionDetails(ctx context.Context, session *types.Session) error

	// TransitionSession writes status and lifecycle times only while the
	// stored status equals from; otherwise ErrSessionStatusChanged.
	TransitionSession(ctx context.Context, session *types.Session, from types.SessionStatus) error

	// Slide and lock writes fail with ErrSessionStatusChanged once ended.
	UpdateSessionSlide(ctx context.Context, sessionID, slideID string, updatedAt time.Time) error
	UpdateSessionNavigationLock(ctx context.Context, sessionID string, locked bool, updatedAt time.Time) error

	DeleteSession(ctx context.Context, sessionID string) error

	ListSessionsByTeacher(ctx context.Context, teacherID string) ([]*types.Session, error)
	ListSessionsByOrganization(ctx context.Context, organizationID string) ([]*types.Session, error)
	ListSessionsByIDs(ctx context.Context, sessionIDs []string) ([]*types.Session, error)

	// ListActiveSessions returns live and paused sessions for cache warm-up.
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)
}

// ParticipantStore persists presence rows keyed uniquely by (session, child).
type ParticipantStore interface {
	// UpsertParticipant inserts or overwrites status, connection status and
	// joined_at for (session, child) and returns the stored row.
	UpsertParticipant(ctx context.Context, participant *types.Participant) (*types.Participant, error)

	GetParticipant(ctx context.Context, participantID string) (*types.Participant, error)
	GetParticipantByChild(ctx context.Context, sessionID, childID string) (*types.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]*types.Participant, error)

	// UpdateParticipant overwrites status, connection and hand fields (last writer wins).
	UpdateParticipant(ctx context.Context, participant *types.Participant) error
}

// MessageStore persists the Q&A board.
type MessageStore interface {
	CreateMessage(ctx context.Context, message *types.Message) error
	GetMessage(ctx context.Context, messageID string) (*types.Message, error)
	UpdateMessageAnswer(ctx context.Context, message *types.Message) error

	// ListMessages orders by created_at ascending.
	ListMessages(ctx context.Context, sessionID string) ([]*types.Message, error)
}

// EntitlementSource is the read-only view of billing/enrollment records.
type EntitlementSource interface {
	ListEntitlements(ctx context.Context, childID string) ([]*types.Entitlement, error)
}

// Directory is the read-only view of accounts and their dependents.
type Directory interface {
	GetAccount(ctx context.Context, accountID string) (*types.Account, error)
	GetDependent(ctx context.Context, childID string) (*types.Dependent, error)
	ListDependents(ctx context.Context, accountID string) ([]*types.Dependent, error)
}

// ContentCatalog is the read-only view of lesson slides.
type ContentCatalog interface {
	SlideBelongsToLesson(ctx context.Context, lessonID, slideID string) (bool, error)

	// FirstSlide returns "" when the lesson has no slides.
	FirstSlide(ctx context.Context, lessonID string) (string, error)
}

// DatabaseManager is the full persistence surface plus lifecycle.
type DatabaseManager interface {
	SessionStore
	ParticipantStore
	MessageStore
	EntitlementSource
	Directory
	ContentCatalog

	HealthCheck(ctx context.Context) error
	Close() error
}
