// Package contentsync keeps every client on the teacher's slide. Slide and
// navigation lock are mirrored into the session row so late joiners can read
// them; highlights and annotations are broadcast only.
package contentsync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"liveclass/internal/session"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Lock messages carried by SessionStateChanged.
const (
	MessageNavigationLocked   = "Navigation locked by teacher"
	MessageNavigationUnlocked = "Navigation unlocked"
)

// ErrSlideNotInLesson rejects slides from other lessons.
var ErrSlideNotInLesson = types.NewValidationError(
	errors.New("slide does not belong to the session's lesson"),
	types.FieldError{Field: "slide_id", Error: "slide_id must be a slide of the session's lesson"},
)

// ErrWhiteboardDisabled rejects student strokes in sessions without a whiteboard.
var ErrWhiteboardDisabled = fmt.Errorf("whiteboard is disabled for this session: %w", types.ErrAccessDenied)

// Sessions is the part of the lifecycle controller the engine needs.
type Sessions interface {
	Load(ctx context.Context, actor types.ActorContext, sessionID string) (*types.Session, error)
	Owned(ctx context.Context, actor types.ActorContext, sessionID string) (*types.Session, error)
	SetSlide(ctx context.Context, s *types.Session, slideID string) error
	SetNavigationLock(ctx context.Context, s *types.Session, locked bool) error
}

// Participants resolves the joined child a guardian acts through.
type Participants interface {
	Acting(ctx context.Context, actor types.ActorContext, s *types.Session, childID string) (*types.Participant, error)
}

// Engine is the content synchronization command surface.
type Engine struct {
	sessions     Sessions
	participants Participants
	catalog      interfaces.ContentCatalog
	broadcaster  interfaces.Broadcaster
	logger       *zap.Logger
}

func NewEngine(sessions Sessions, participants Participants, catalog interfaces.ContentCatalog, broadcaster interfaces.Broadcaster, logger *zap.Logger) *Engine {
	return &Engine{
		sessions:     sessions,
		participants: participants,
		catalog:      catalog,
		broadcaster:  broadcaster,
		logger:       logger.Named("contentsync"),
	}
}

// ChangeSlide moves the session to slideID and tells everyone else.
func (e *Engine) ChangeSlide(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.ChangeSlideCommand) (*types.Session, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	s, err := e.controlled(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}

	ok, err := e.catalog.SlideBelongsToLesson(ctx, s.LessonID, cmd.SlideID)
	if err != nil {
		return nil, fmt.Errorf("failed to check slide: %w", err)
	}
	if !ok {
		return nil, ErrSlideNotInLesson
	}

	slideID := cmd.SlideID
	if err := e.sessions.SetSlide(ctx, s, slideID); err != nil {
		return nil, err
	}

	e.logger.Debug("slide changed", zap.String("session_id", s.ID), zap.String("slide_id", slideID))
	e.publishPersisted(ctx, s, actor, types.EventSlideChanged,
		types.SlideChangedPayload{SlideID: slideID, ChangedBy: actor.AccountID})
	return s, nil
}

// ToggleNavigationLock sets the lock flag. Clients ignore their own
// navigation while it is on.
func (e *Engine) ToggleNavigationLock(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.NavigationLockCommand) (*types.Session, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	s, err := e.controlled(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}

	locked := *cmd.Locked
	if err := e.sessions.SetNavigationLock(ctx, s, locked); err != nil {
		return nil, err
	}

	message := MessageNavigationUnlocked
	if locked {
		message = MessageNavigationLocked
	}
	e.publishPersisted(ctx, s, actor, types.EventSessionStateChanged, types.SessionStateChangedPayload{
		State:            s.Status,
		Message:          message,
		NavigationLocked: &locked,
	})
	return s, nil
}

// HighlightBlock is broadcast only.
func (e *Engine) HighlightBlock(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.HighlightBlockCommand) (*types.BlockHighlightedPayload, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	s, err := e.controlled(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}

	payload := types.BlockHighlightedPayload{SlideID: cmd.SlideID, BlockID: cmd.BlockID, Highlighted: *cmd.Highlighted}
	if err := e.publish(ctx, s, types.TeacherIdentity(actor.AccountID), types.EventBlockHighlighted, payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// SendAnnotation relays a stroke. Teachers draw as themselves; students draw
// through their joined child when the whiteboard is enabled.
func (e *Engine) SendAnnotation(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.AnnotationCommand) (*types.AnnotationStrokePayload, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}

	var s *types.Session
	var authorID, publisher string
	var err error

	switch cmd.Role {
	case types.ParticipantTeacher:
		if s, err = e.controlled(ctx, actor, sessionID); err != nil {
			return nil, err
		}
		authorID = actor.AccountID
		publisher = types.TeacherIdentity(actor.AccountID)
	default:
		if s, err = e.sessions.Load(ctx, actor, sessionID); err != nil {
			return nil, err
		}
		if !s.InProgress() {
			return nil, fmt.Errorf("session is %s: %w", s.Status, types.ErrInvalidStateTransition)
		}
		if !s.WhiteboardEnabled {
			return nil, ErrWhiteboardDisabled
		}
		p, err := e.participants.Acting(ctx, actor, s, cmd.ChildID)
		if err != nil {
			return nil, err
		}
		authorID = p.ChildID
		publisher = types.ChildIdentity(p.ChildID)
	}

	payload := types.AnnotationStrokePayload{
		SlideID:    cmd.SlideID,
		StrokeData: cmd.StrokeData,
		AuthorID:   authorID,
		Role:       cmd.Role,
	}
	if err := e.publish(ctx, s, publisher, types.EventAnnotationStroke, payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ClearAnnotations wipes a slide's strokes on every client. Teacher only.
func (e *Engine) ClearAnnotations(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.ClearAnnotationsCommand) (*types.AnnotationClearPayload, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	s, err := e.controlled(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}

	payload := types.AnnotationClearPayload{SlideID: cmd.SlideID, ClearedBy: actor.AccountID}
	if err := e.publish(ctx, s, types.TeacherIdentity(actor.AccountID), types.EventAnnotationClear, payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// controlled loads a session the actor teaches that has not ended.
func (e *Engine) controlled(ctx context.Context, actor types.ActorContext, sessionID string) (*types.Session, error) {
	s, err := e.sessions.Owned(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status == types.StatusEnded {
		return nil, session.ErrSessionEnded
	}
	return s, nil
}

func (e *Engine) publish(ctx context.Context, s *types.Session, publisher string, eventType types.EventType, payload interface{}) error {
	if err := e.broadcaster.Publish(ctx, types.NewEvent(s.ID, eventType, publisher, payload)); err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}
	return nil
}

// publishPersisted logs delivery failures; the stored state already changed.
func (e *Engine) publishPersisted(ctx context.Context, s *types.Session, actor types.ActorContext, eventType types.EventType, payload interface{}) {
	if err := e.publish(ctx, s, types.TeacherIdentity(actor.AccountID), eventType, payload); err != nil {
		e.logger.Warn("state saved but not delivered", zap.String("session_id", s.ID), zap.Error(err))
	}
}
