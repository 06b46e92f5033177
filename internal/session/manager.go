// Package session owns the lifecycle of live sessions: creation, editing,
// start, pause/resume, end and deletion, plus the ownership checks every
// other controller gates on.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// GuardianAuthorizer decides whether a guardian may see a session through
// one of their dependents.
type GuardianAuthorizer interface {
	AuthorizeGuardian(ctx context.Context, actor types.ActorContext, sessionID string) error
}

// Manager is the session lifecycle controller. Live and paused sessions are
// cached in memory; everything else is read through to the store.
type Manager struct {
	store          interfaces.SessionStore
	catalog        interfaces.ContentCatalog
	guardians      GuardianAuthorizer
	broadcaster    interfaces.Broadcaster
	logger         *zap.Logger
	activeSessions map[string]*types.Session // sessionID -> Session
	mu             sync.RWMutex
	writeMu        sync.Mutex // orders store writes with their cache updates
	now            func() time.Time
}

// NewManager creates a new session manager
func NewManager(store interfaces.SessionStore, catalog interfaces.ContentCatalog, guardians GuardianAuthorizer, broadcaster interfaces.Broadcaster, logger *zap.Logger) *Manager {
	return &Manager{
		store:          store,
		catalog:        catalog,
		guardians:      guardians,
		broadcaster:    broadcaster,
		logger:         logger.Named("session"),
		activeSessions: make(map[string]*types.Session),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// LoadActiveSessions loads all live and paused sessions into memory
func (m *Manager) LoadActiveSessions(ctx context.Context) error {
	sessions, err := m.store.ListActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, session := range sessions {
		m.activeSessions[session.ID] = session
	}

	m.logger.Info("loaded active sessions", zap.Int("count", len(sessions)))
	return nil
}

// Create schedules a new session owned by the calling teacher, or starts it
// straight away when StartNow is set.
func (m *Manager) Create(ctx context.Context, actor types.ActorContext, cmd types.CreateSessionCommand) (*types.Session, error) {
	if actor.Role != types.RoleTeacher && actor.Role != types.RoleAdmin {
		return nil, ErrNotInstructor
	}
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}

	now := m.now()
	session := &types.Session{
		ID:             uuid.New().String(),
		UID:            newUID(),
		Code:           newCode(),
		TeacherID:      actor.AccountID,
		OrganizationID: actor.OrganizationID,
		LessonID:       strings.TrimSpace(cmd.LessonID),
		CourseID:       cmd.CourseID,
		Status:         types.StatusScheduled,
		PacingMode:     types.PacingTeacherControlled,
		Capabilities:   cmd.Capabilities.Apply(types.DefaultCapabilities()),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if cmd.ScheduledStartTime != nil {
		session.ScheduledStartTime = cmd.ScheduledStartTime.UTC()
	} else {
		session.ScheduledStartTime = now
	}

	firstSlide, err := m.catalog.FirstSlide(ctx, session.LessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up first slide: %w", err)
	}
	if firstSlide != "" {
		session.CurrentSlideID = &firstSlide
	}

	if cmd.StartNow {
		session.Status = types.StatusLive
		session.ActualStartTime = &now
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	m.remember(session)

	m.logger.Info("created session",
		zap.String("session_id", session.ID),
		zap.String("teacher_id", session.TeacherID),
		zap.String("status", string(session.Status)))

	if cmd.StartNow {
		m.publishState(ctx, actor, session, "Session started")
	}
	return session, nil
}

// Update edits schedule, lesson and capabilities of a scheduled session.
func (m *Manager) Update(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.UpdateSessionCommand) (*types.Session, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	session, err := m.Owned(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != types.StatusScheduled {
		return nil, ErrNotEditable
	}

	if cmd.LessonID != nil {
		lessonID := strings.TrimSpace(*cmd.LessonID)
		if lessonID != session.LessonID {
			session.LessonID = lessonID
			session.CurrentSlideID = nil
			firstSlide, err := m.catalog.FirstSlide(ctx, lessonID)
			if err != nil {
				return nil, fmt.Errorf("failed to look up first slide: %w", err)
			}
			if firstSlide != "" {
				session.CurrentSlideID = &firstSlide
			}
		}
	}
	if cmd.CourseID != nil {
		session.CourseID = cmd.CourseID
	}
	if cmd.ScheduledStartTime != nil {
		session.ScheduledStartTime = cmd.ScheduledStartTime.UTC()
	}
	session.Capabilities = cmd.Capabilities.Apply(session.Capabilities)
	session.UpdatedAt = m.now()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.store.UpdateSessionDetails(ctx, session); err != nil {
		if errors.Is(err, interfaces.ErrSessionStatusChanged) {
			return nil, ErrNotEditable
		}
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return session, nil
}

// Destroy deletes a scheduled session and reports it as cancelled.
func (m *Manager) Destroy(ctx context.Context, actor types.ActorContext, sessionID string) (types.SessionStatus, error) {
	session, err := m.Owned(ctx, actor, sessionID)
	if err != nil {
		return "", err
	}
	if session.Status != types.StatusScheduled {
		return "", ErrNotEditable
	}

	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		return "", fmt.Errorf("failed to delete session: %w", err)
	}
	m.forget(sessionID)

	m.logger.Info("cancelled session", zap.String("session_id", sessionID))
	return types.StatusCancelled, nil
}

// Start moves a scheduled session to live.
func (m *Manager) Start(ctx context.Context, actor types.ActorContext, sessionID string) (*types.Session, error) {
	session, err := m.Owned(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != types.StatusScheduled {
		return nil, ErrNotStartable
	}
	return m.transition(ctx, actor, session, types.StatusLive, "Session started")
}

// ChangeState applies live, paused or ended. Ended is terminal.
func (m *Manager) ChangeState(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.ChangeStateCommand) (*types.Session, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	session, err := m.Owned(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	return m.transition(ctx, actor, session, cmd.State, cmd.Message)
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to types.SessionStatus) bool {
	switch from {
	case types.StatusScheduled:
		return to == types.StatusLive
	case types.StatusLive:
		return to == types.StatusPaused || to == types.StatusEnded
	case types.StatusPaused:
		return to == types.StatusLive || to == types.StatusEnded
	default:
		return false
	}
}

func (m *Manager) transition(ctx context.Context, actor types.ActorContext, session *types.Session, to types.SessionStatus, message string) (*types.Session, error) {
	from := session.Status
	if from == types.StatusEnded {
		return nil, ErrSessionEnded
	}
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("cannot move session from %s to %s: %w", from, to, types.ErrInvalidStateTransition)
	}

	now := m.now()
	session.Status = to
	session.UpdatedAt = now
	if to == types.StatusLive && session.ActualStartTime == nil {
		session.ActualStartTime = &now
	}
	if to == types.StatusEnded {
		session.EndTime = &now
	}

	m.writeMu.Lock()
	err := m.store.TransitionSession(ctx, session, from)
	if err == nil {
		m.applyTransition(session)
	} else if errors.Is(err, interfaces.ErrSessionStatusChanged) {
		// The cached status is stale; read through to the store next time.
		m.forget(session.ID)
	}
	m.writeMu.Unlock()
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionStatusChanged) {
			return nil, fmt.Errorf("session %s is no longer %s: %w", session.ID, from, err)
		}
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	m.logger.Info("session state changed",
		zap.String("session_id", session.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	m.publishState(ctx, actor, session, message)
	return session, nil
}

// Get returns a session to anyone allowed in it: its teacher, an admin of
// its organization, or a guardian with an entitled dependent.
func (m *Manager) Get(ctx context.Context, actor types.ActorContext, sessionID string) (*types.Session, error) {
	session, err := m.Load(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if err := m.AuthorizeReader(ctx, actor, session); err != nil {
		return nil, err
	}
	return session, nil
}

// AuthorizeReader fails unless actor may read session.
func (m *Manager) AuthorizeReader(ctx context.Context, actor types.ActorContext, session *types.Session) error {
	if actor.Role == types.RoleGuardian {
		if err := m.guardians.AuthorizeGuardian(ctx, actor, session.ID); err != nil {
			return fmt.Errorf("%w: %v", ErrNotParticipant, err)
		}
		return nil
	}
	return AuthorizeOwner(actor, session)
}

// List returns the caller's sessions; admins see their whole organization.
func (m *Manager) List(ctx context.Context, actor types.ActorContext) ([]*types.Session, error) {
	switch actor.Role {
	case types.RoleAdmin:
		return m.store.ListSessionsByOrganization(ctx, actor.OrganizationID)
	case types.RoleTeacher:
		return m.store.ListSessionsByTeacher(ctx, actor.AccountID)
	default:
		return nil, ErrNotInstructor
	}
}

// Load fetches a session scoped to the actor's organization. Sessions of
// another organization are reported as not found.
func (m *Manager) Load(ctx context.Context, actor types.ActorContext, sessionID string) (*types.Session, error) {
	session, err := m.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actor.OrganizationID != "" && session.OrganizationID != "" && actor.OrganizationID != session.OrganizationID {
		return nil, interfaces.ErrSessionNotFound
	}
	return session, nil
}

// Owned loads a session the actor teaches (or administers).
func (m *Manager) Owned(ctx context.Context, actor types.ActorContext, sessionID string) (*types.Session, error) {
	session, err := m.Load(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if err := AuthorizeOwner(actor, session); err != nil {
		return nil, err
	}
	return session, nil
}

// AuthorizeOwner passes the session's teacher and admins of its organization.
func AuthorizeOwner(actor types.ActorContext, session *types.Session) error {
	if actor.Role == types.RoleGuardian {
		return ErrNotOwner
	}
	if actor.AccountID == session.TeacherID {
		return nil
	}
	if actor.IsAdmin() && actor.OrganizationID == session.OrganizationID {
		return nil
	}
	return ErrNotOwner
}

// SetSlide records slideID as the session's current slide. Only the slide
// column is written, so a concurrent state change is never overwritten.
func (m *Manager) SetSlide(ctx context.Context, session *types.Session, slideID string) error {
	now := m.now()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.store.UpdateSessionSlide(ctx, session.ID, slideID, now); err != nil {
		return m.columnWriteFailed(session.ID, err)
	}
	m.patch(session.ID, func(cached *types.Session) {
		cached.CurrentSlideID = &slideID
		cached.UpdatedAt = now
	})
	session.CurrentSlideID = &slideID
	session.UpdatedAt = now
	return nil
}

// SetNavigationLock records the lock flag the same way SetSlide records the slide.
func (m *Manager) SetNavigationLock(ctx context.Context, session *types.Session, locked bool) error {
	now := m.now()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.store.UpdateSessionNavigationLock(ctx, session.ID, locked, now); err != nil {
		return m.columnWriteFailed(session.ID, err)
	}
	m.patch(session.ID, func(cached *types.Session) {
		cached.NavigationLocked = locked
		cached.UpdatedAt = now
	})
	session.NavigationLocked = locked
	session.UpdatedAt = now
	return nil
}

func (m *Manager) columnWriteFailed(sessionID string, err error) error {
	if errors.Is(err, interfaces.ErrSessionStatusChanged) {
		m.forget(sessionID)
		return ErrSessionEnded
	}
	return fmt.Errorf("failed to update session: %w", err)
}

// lookup returns a private copy; callers may mutate it freely.
func (m *Manager) lookup(ctx context.Context, sessionID string) (*types.Session, error) {
	m.mu.RLock()
	if session, exists := m.activeSessions[sessionID]; exists {
		copied := *session
		m.mu.RUnlock()
		return &copied, nil
	}
	m.mu.RUnlock()

	return m.store.GetSession(ctx, sessionID)
}

func (m *Manager) remember(session *types.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.InProgress() {
		copied := *session
		m.activeSessions[session.ID] = &copied
		return
	}
	delete(m.activeSessions, session.ID)
}

// applyTransition updates only the lifecycle fields of a cached session so
// slide and lock changes made since session was read survive.
func (m *Manager) applyTransition(session *types.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !session.InProgress() {
		delete(m.activeSessions, session.ID)
		return
	}
	cached, ok := m.activeSessions[session.ID]
	if !ok {
		copied := *session
		m.activeSessions[session.ID] = &copied
		return
	}
	cached.Status = session.Status
	if cached.ActualStartTime == nil {
		cached.ActualStartTime = session.ActualStartTime
	}
	cached.EndTime = session.EndTime
	cached.UpdatedAt = session.UpdatedAt
}

func (m *Manager) patch(sessionID string, apply func(cached *types.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.activeSessions[sessionID]; ok {
		apply(cached)
	}
}

func (m *Manager) forget(sessionID string) {
	m.mu.Lock()
	delete(m.activeSessions, sessionID)
	m.mu.Unlock()
}

func (m *Manager) publishState(ctx context.Context, actor types.ActorContext, session *types.Session, message string) {
	event := types.NewEvent(session.ID, types.EventSessionStateChanged, types.TeacherIdentity(actor.AccountID),
		types.SessionStateChangedPayload{State: session.Status, Message: message})
	if err := m.broadcaster.Publish(ctx, event); err != nil {
		m.logger.Warn("failed to publish state change",
			zap.String("session_id", session.ID),
			zap.Error(err))
	}
}

// GetStats counts the cached live and paused sessions.
func (m *Manager) GetStats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	live, paused := 0, 0
	for _, session := range m.activeSessions {
		if session.Status == types.StatusPaused {
			paused++
		} else {
			live++
		}
	}
	return map[string]int{
		"active_sessions": len(m.activeSessions),
		"live_sessions":   live,
		"paused_sessions": paused,
	}
}

func hexID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// newUID returns "LSS-" followed by 13 upper-case characters.
func newUID() string {
	return "LSS-" + hexID()[:13]
}

// newCode returns the 6 character code teachers read out to a class.
func newCode() string {
	return hexID()[:6]
}
