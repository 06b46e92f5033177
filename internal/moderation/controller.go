// Package moderation implements the teacher's moderation commands. Mute and
// camera state are broadcast only; kick also updates the participant row.
package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// DefaultKickReason is used when the teacher gives none.
const DefaultKickReason = "Removed by teacher"

// Sessions loads a session the actor owns.
type Sessions interface {
	Owned(ctx context.Context, actor types.ActorContext, sessionID string) (*types.Session, error)
}

// Controller is the moderation command surface.
type Controller struct {
	sessions     Sessions
	participants interfaces.ParticipantStore
	broadcaster  interfaces.Broadcaster
	logger       *zap.Logger
	now          func() time.Time
}

func NewController(sessions Sessions, participants interfaces.ParticipantStore, broadcaster interfaces.Broadcaster, logger *zap.Logger) *Controller {
	return &Controller{
		sessions:     sessions,
		participants: participants,
		broadcaster:  broadcaster,
		logger:       logger.Named("moderation"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Mute tells every client to mute or unmute one participant.
func (c *Controller) Mute(ctx context.Context, actor types.ActorContext, sessionID, participantID string, cmd types.MuteCommand) (*types.ParticipantMutedPayload, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	s, p, err := c.target(ctx, actor, sessionID, participantID)
	if err != nil {
		return nil, err
	}

	payload := mutedPayload(p, *cmd.Muted, actor)
	if err := c.publish(ctx, s, actor, types.EventParticipantMuted, payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// MuteAll sends one mute command per joined participant.
func (c *Controller) MuteAll(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.MuteCommand) ([]types.ParticipantMutedPayload, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	s, err := c.sessions.Owned(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	participants, err := c.participants.ListParticipants(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	sent := make([]types.ParticipantMutedPayload, 0, len(participants))
	for _, p := range participants {
		if p.Status != types.ParticipantJoined {
			continue
		}
		payload := mutedPayload(p, *cmd.Muted, actor)
		if err := c.publish(ctx, s, actor, types.EventParticipantMuted, payload); err != nil {
			return sent, err
		}
		sent = append(sent, payload)
	}

	c.logger.Info("muted all participants",
		zap.String("session_id", s.ID),
		zap.Bool("muted", *cmd.Muted),
		zap.Int("count", len(sent)))
	return sent, nil
}

// DisableCamera tells every client to turn one participant's camera off or on.
func (c *Controller) DisableCamera(ctx context.Context, actor types.ActorContext, sessionID, participantID string, cmd types.DisableCameraCommand) (*types.ParticipantCameraDisabledPayload, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	s, p, err := c.target(ctx, actor, sessionID, participantID)
	if err != nil {
		return nil, err
	}

	payload := types.ParticipantCameraDisabledPayload{
		ParticipantID: p.ID,
		ChildID:       p.ChildID,
		Disabled:      *cmd.Disabled,
		By:            actor.AccountID,
	}
	if err := c.publish(ctx, s, actor, types.EventParticipantCameraDisabled, payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Kick removes a participant: the row becomes kicked and disconnected before
// the event goes out.
func (c *Controller) Kick(ctx context.Context, actor types.ActorContext, sessionID, participantID string, cmd types.KickCommand) (*types.Participant, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	s, p, err := c.target(ctx, actor, sessionID, participantID)
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = DefaultKickReason
	}

	now := c.now()
	p.Status = types.ParticipantKicked
	p.ConnectionStatus = types.ConnectionDisconnected
	p.LeftAt = &now
	p.UpdatedAt = now
	if err := c.participants.UpdateParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to record kick: %w", err)
	}

	c.logger.Info("participant kicked",
		zap.String("session_id", s.ID),
		zap.String("participant_id", p.ID),
		zap.String("reason", reason))

	payload := types.ParticipantKickedPayload{ParticipantID: p.ID, ChildID: p.ChildID, Reason: reason}
	if err := c.publish(ctx, s, actor, types.EventParticipantKicked, payload); err != nil {
		c.logger.Warn("kick recorded but not delivered", zap.String("participant_id", p.ID), zap.Error(err))
	}
	return p, nil
}

func (c *Controller) target(ctx context.Context, actor types.ActorContext, sessionID, participantID string) (*types.Session, *types.Participant, error) {
	s, err := c.sessions.Owned(ctx, actor, sessionID)
	if err != nil {
		return nil, nil, err
	}
	p, err := c.participants.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, nil, err
	}
	if p.SessionID != s.ID {
		return nil, nil, interfaces.ErrParticipantNotFound
	}
	return s, p, nil
}

func (c *Controller) publish(ctx context.Context, s *types.Session, actor types.ActorContext, eventType types.EventType, payload interface{}) error {
	event := types.NewEvent(s.ID, eventType, types.TeacherIdentity(actor.AccountID), payload)
	if err := c.broadcaster.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}
	return nil
}

func mutedPayload(p *types.Participant, muted bool, actor types.ActorContext) types.ParticipantMutedPayload {
	return types.ParticipantMutedPayload{
		ParticipantID: p.ID,
		ChildID:       p.ChildID,
		Muted:         muted,
		By:            actor.AccountID,
	}
}
