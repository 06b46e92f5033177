// Package participant tracks who is in a live session: the join protocol,
// presence and connection status, hand raising, reactions and the media
// credentials handed to each party.
package participant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"liveclass/internal/media"
	"liveclass/internal/session"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// ErrNotJoined is returned when a child acts in a session it is not currently part of.
var ErrNotJoined = fmt.Errorf("child has not joined this session: %w", types.ErrAccessDenied)

// Sessions is the part of the lifecycle controller the registry needs.
type Sessions interface {
	Load(ctx context.Context, actor types.ActorContext, sessionID string) (*types.Session, error)
	AuthorizeReader(ctx context.Context, actor types.ActorContext, session *types.Session) error
}

// Access resolves dependents and entitlements.
type Access interface {
	Dependent(ctx context.Context, actor types.ActorContext, childID string) (*types.Dependent, error)
	Authorize(ctx context.Context, childID, sessionID string) error
}

// JoinResult is the player payload returned by a successful join.
type JoinResult struct {
	Session        *types.Session          `json:"session"`
	Participant    *types.Participant      `json:"participant"`
	Participants   []*types.Participant    `json:"participants"`
	Media          *types.MediaCredentials `json:"media,omitempty"`
	MediaAvailable bool                    `json:"media_available"`
}

// Registry is the participant registry and join protocol.
type Registry struct {
	store       interfaces.ParticipantStore
	directory   interfaces.Directory
	sessions    Sessions
	access      Access
	broadcaster interfaces.Broadcaster
	issuer      interfaces.MediaTokenIssuer
	logger      *zap.Logger
	now         func() time.Time
}

var _ interfaces.SubscriberGate = (*Registry)(nil)

// NewRegistry wires the registry to its stores and collaborators.
func NewRegistry(store interfaces.ParticipantStore, directory interfaces.Directory, sessions Sessions, access Access,
	broadcaster interfaces.Broadcaster, issuer interfaces.MediaTokenIssuer, logger *zap.Logger) *Registry {
	return &Registry{
		store:       store,
		directory:   directory,
		sessions:    sessions,
		access:      access,
		broadcaster: broadcaster,
		issuer:      issuer,
		logger:      logger.Named("participant"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Join admits a guardian's dependent to a live or paused session. A guardian
// with several dependents who names none gets *types.AmbiguousDependent back.
// Re-joining overwrites the existing row.
func (r *Registry) Join(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.JoinCommand) (*JoinResult, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	s, err := r.sessions.Load(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	child, err := r.access.Dependent(ctx, actor, cmd.ChildID)
	if err != nil {
		return nil, err
	}
	if err := r.access.Authorize(ctx, child.ID, s.ID); err != nil {
		return nil, err
	}
	if !s.InProgress() {
		return nil, fmt.Errorf("cannot join a session that is %s: %w", s.Status, types.ErrInvalidStateTransition)
	}

	now := r.now()
	p, err := r.store.UpsertParticipant(ctx, &types.Participant{
		ID:               uuid.New().String(),
		SessionID:        s.ID,
		ChildID:          child.ID,
		Status:           types.ParticipantJoined,
		ConnectionStatus: types.ConnectionConnected,
		JoinedAt:         &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record join: %w", err)
	}

	r.logger.Info("participant joined",
		zap.String("session_id", s.ID),
		zap.String("child_id", child.ID),
		zap.String("participant_id", p.ID))

	r.publish(ctx, types.NewEvent(s.ID, types.EventParticipantJoined, types.ChildIdentity(child.ID),
		types.ParticipantJoinedPayload{Participant: p}))

	participants, err := r.store.ListParticipants(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	result := &JoinResult{Session: s, Participant: p, Participants: participants}
	creds, err := r.issuer.Issue(ctx, media.StudentGrant(s, child))
	if err != nil {
		r.logger.Warn("joining without media",
			zap.String("session_id", s.ID),
			zap.String("child_id", child.ID),
			zap.Error(err))
	} else {
		result.Media = creds
		result.MediaAvailable = true
	}
	return result, nil
}

// Leave marks the child as gone. Nothing is broadcast.
func (r *Registry) Leave(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.LeaveCommand) (*types.Participant, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	s, err := r.sessions.Load(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	child, err := r.access.Dependent(ctx, actor, cmd.ChildID)
	if err != nil {
		return nil, err
	}
	p, err := r.store.GetParticipantByChild(ctx, s.ID, child.ID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	p.Status = types.ParticipantLeft
	p.ConnectionStatus = types.ConnectionDisconnected
	p.LeftAt = &now
	p.UpdatedAt = now
	if err := r.store.UpdateParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to record leave: %w", err)
	}

	r.logger.Info("participant left", zap.String("session_id", s.ID), zap.String("child_id", child.ID))
	return p, nil
}

// Acting returns the joined participant row the guardian is acting through.
func (r *Registry) Acting(ctx context.Context, actor types.ActorContext, s *types.Session, childID string) (*types.Participant, error) {
	child, err := r.access.Dependent(ctx, actor, childID)
	if err != nil {
		return nil, err
	}
	p, err := r.store.GetParticipantByChild(ctx, s.ID, child.ID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, ErrNotJoined
		}
		return nil, err
	}
	if p.Status != types.ParticipantJoined {
		return nil, ErrNotJoined
	}
	if p.ChildName == "" {
		p.ChildName = child.Name
	}
	return p, nil
}

// RaiseHand sets or clears the child's own hand. Concurrent writes to the
// same row are last-writer-wins.
func (r *Registry) RaiseHand(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.RaiseHandCommand) (*types.Participant, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	s, err := r.sessions.Load(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.InProgress() {
		return nil, fmt.Errorf("session is %s: %w", s.Status, types.ErrInvalidStateTransition)
	}
	p, err := r.Acting(ctx, actor, s, cmd.ChildID)
	if err != nil {
		return nil, err
	}
	return r.setHand(ctx, s, p, *cmd.Raised, types.ChildIdentity(p.ChildID))
}

// LowerHand clears a hand. The child's guardian may lower their own child's
// hand; the teacher may lower anyone's.
func (r *Registry) LowerHand(ctx context.Context, actor types.ActorContext, sessionID, participantID string) (*types.Participant, error) {
	s, err := r.sessions.Load(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	p, err := r.participantIn(ctx, s, participantID)
	if err != nil {
		return nil, err
	}

	var publisher string
	if actor.Role == types.RoleGuardian {
		if _, err := r.access.Dependent(ctx, actor, p.ChildID); err != nil {
			return nil, err
		}
		publisher = types.ChildIdentity(p.ChildID)
	} else {
		if err := session.AuthorizeOwner(actor, s); err != nil {
			return nil, err
		}
		publisher = types.TeacherIdentity(actor.AccountID)
	}
	return r.setHand(ctx, s, p, false, publisher)
}

func (r *Registry) setHand(ctx context.Context, s *types.Session, p *types.Participant, raised bool, publisher string) (*types.Participant, error) {
	now := r.now()
	p.HandRaised = raised
	if raised {
		p.HandRaisedAt = &now
	} else {
		p.HandRaisedAt = nil
	}
	p.UpdatedAt = now
	if err := r.store.UpdateParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update hand: %w", err)
	}

	r.publish(ctx, types.NewEvent(s.ID, types.EventHandRaised, publisher, types.HandRaisedPayload{
		ChildID:   p.ChildID,
		ChildName: p.ChildName,
		Raised:    raised,
	}))
	return p, nil
}

// List returns every participant row of the session.
func (r *Registry) List(ctx context.Context, actor types.ActorContext, sessionID string) ([]*types.Participant, error) {
	s, err := r.sessions.Load(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if err := r.sessions.AuthorizeReader(ctx, actor, s); err != nil {
		return nil, err
	}
	return r.store.ListParticipants(ctx, s.ID)
}

// SendReaction broadcasts an emoji. Teachers react as themselves, guardians
// as their participating child.
func (r *Registry) SendReaction(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.ReactionCommand) (*types.EmojiReactionPayload, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	s, err := r.sessions.Load(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.InProgress() {
		return nil, fmt.Errorf("session is %s: %w", s.Status, types.ErrInvalidStateTransition)
	}

	var payload types.EmojiReactionPayload
	var publisher string
	if actor.Role == types.RoleGuardian {
		p, err := r.Acting(ctx, actor, s, cmd.ChildID)
		if err != nil {
			return nil, err
		}
		payload = types.EmojiReactionPayload{UserID: p.ChildID, UserName: p.ChildName, Emoji: cmd.Emoji}
		publisher = types.ChildIdentity(p.ChildID)
	} else {
		if err := session.AuthorizeOwner(actor, s); err != nil {
			return nil, err
		}
		account, err := r.directory.GetAccount(ctx, actor.AccountID)
		if err != nil {
			return nil, err
		}
		payload = types.EmojiReactionPayload{UserID: account.ID, UserName: account.Name, Emoji: cmd.Emoji}
		publisher = types.TeacherIdentity(actor.AccountID)
	}

	if err := r.broadcaster.Publish(ctx, types.NewEvent(s.ID, types.EventEmojiReaction, publisher, payload)); err != nil {
		return nil, fmt.Errorf("failed to publish reaction: %w", err)
	}
	return &payload, nil
}

// MediaToken issues provider credentials for the caller in the given role.
// The student display name is the child's, never the guardian's.
func (r *Registry) MediaToken(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.MediaTokenCommand) (*types.MediaCredentials, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	s, err := r.sessions.Load(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status == types.StatusEnded {
		return nil, session.ErrSessionEnded
	}

	var grant types.MediaGrant
	switch cmd.Role {
	case types.ParticipantTeacher:
		if err := session.AuthorizeOwner(actor, s); err != nil {
			return nil, err
		}
		account, err := r.directory.GetAccount(ctx, actor.AccountID)
		if err != nil {
			return nil, err
		}
		grant = media.TeacherGrant(s, account)
	default:
		p, err := r.Acting(ctx, actor, s, cmd.ChildID)
		if err != nil {
			return nil, err
		}
		grant = media.StudentGrant(s, &types.Dependent{ID: p.ChildID, Name: p.ChildName})
	}

	return r.issuer.Issue(ctx, grant)
}

// Admit decides whether actor may subscribe to the session channel. A
// guardian subscribes as their joined child and marks it connected.
func (r *Registry) Admit(ctx context.Context, actor types.ActorContext, sessionID, childID string) (*types.Admission, error) {
	s, err := r.sessions.Load(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status == types.StatusEnded {
		return nil, session.ErrSessionEnded
	}

	if actor.Role != types.RoleGuardian {
		if err := session.AuthorizeOwner(actor, s); err != nil {
			return nil, err
		}
		return &types.Admission{
			Session:  s,
			Identity: types.TeacherIdentity(actor.AccountID),
			Role:     types.ParticipantTeacher,
		}, nil
	}

	p, err := r.Acting(ctx, actor, s, childID)
	if err != nil {
		return nil, err
	}
	if err := r.setConnection(ctx, p, types.ConnectionConnected); err != nil {
		return nil, err
	}
	return &types.Admission{
		Session:  s,
		Identity: types.ChildIdentity(p.ChildID),
		Role:     types.ParticipantStudent,
		ChildID:  p.ChildID,
	}, nil
}

// Disconnected moves a dropped student subscriber to reconnecting. Rows that
// already left or were kicked are left alone.
func (r *Registry) Disconnected(ctx context.Context, admission *types.Admission) error {
	if admission == nil || admission.Role != types.ParticipantStudent {
		return nil
	}
	p, err := r.store.GetParticipantByChild(ctx, admission.Session.ID, admission.ChildID)
	if err != nil {
		return err
	}
	if p.Status != types.ParticipantJoined || p.ConnectionStatus != types.ConnectionConnected {
		return nil
	}
	return r.setConnection(ctx, p, types.ConnectionReconnecting)
}

func (r *Registry) setConnection(ctx context.Context, p *types.Participant, status types.ConnectionStatus) error {
	if p.ConnectionStatus == status {
		return nil
	}
	p.ConnectionStatus = status
	p.UpdatedAt = r.now()
	if err := r.store.UpdateParticipant(ctx, p); err != nil {
		return fmt.Errorf("failed to update connection status: %w", err)
	}
	r.logger.Debug("connection status changed",
		zap.String("session_id", p.SessionID),
		zap.String("child_id", p.ChildID),
		zap.String("status", string(status)))
	return nil
}

func (r *Registry) participantIn(ctx context.Context, s *types.Session, participantID string) (*types.Participant, error) {
	p, err := r.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p.SessionID != s.ID {
		return nil, interfaces.ErrParticipantNotFound
	}
	return p, nil
}

// publish is for events that follow a persisted change: the change stands
// even when delivery fails.
func (r *Registry) publish(ctx context.Context, event *types.Event) {
	if err := r.broadcaster.Publish(ctx, event); err != nil {
		r.logger.Warn("failed to publish event",
			zap.String("session_id", event.SessionID),
			zap.String("event", string(event.Type)),
			zap.Error(err))
	}
}
