// Package qa is the session's question board. A post and its answer travel
// as the same MessageSent event; clients tell them apart by isAnswered.
package qa

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// ErrQuestionsDisabled rejects student posts when the teacher turned questions off.
var ErrQuestionsDisabled = fmt.Errorf("student questions are disabled for this session: %w", types.ErrAccessDenied)

// Sessions is the part of the lifecycle controller the board needs.
type Sessions interface {
	Load(ctx context.Context, actor types.ActorContext, sessionID string) (*types.Session, error)
	Owned(ctx context.Context, actor types.ActorContext, sessionID string) (*types.Session, error)
	AuthorizeReader(ctx context.Context, actor types.ActorContext, s *types.Session) error
}

// Participants resolves the joined child a guardian posts through.
type Participants interface {
	Acting(ctx context.Context, actor types.ActorContext, s *types.Session, childID string) (*types.Participant, error)
}

// Board stores and relays Q&A posts.
type Board struct {
	store        interfaces.MessageStore
	sessions     Sessions
	participants Participants
	broadcaster  interfaces.Broadcaster
	logger       *zap.Logger
	now          func() time.Time
}

func NewBoard(store interfaces.MessageStore, sessions Sessions, participants Participants, broadcaster interfaces.Broadcaster, logger *zap.Logger) *Board {
	return &Board{
		store:        store,
		sessions:     sessions,
		participants: participants,
		broadcaster:  broadcaster,
		logger:       logger.Named("qa"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SendMessage stores a post from the guardian's joined child and announces it.
func (b *Board) SendMessage(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.SendMessageCommand) (*types.Message, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	s, err := b.sessions.Load(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.InProgress() {
		return nil, fmt.Errorf("session is %s: %w", s.Status, types.ErrInvalidStateTransition)
	}
	if !s.AllowStudentQuestions {
		return nil, ErrQuestionsDisabled
	}
	p, err := b.participants.Acting(ctx, actor, s, cmd.ChildID)
	if err != nil {
		return nil, err
	}

	messageType := cmd.Type
	if messageType == "" {
		messageType = types.MessageQuestion
	}
	now := b.now()
	message := &types.Message{
		ID:        uuid.New().String(),
		SessionID: s.ID,
		ChildID:   p.ChildID,
		ChildName: p.ChildName,
		Body:      strings.TrimSpace(cmd.Body),
		Type:      messageType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.store.CreateMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	b.logger.Debug("message posted",
		zap.String("session_id", s.ID),
		zap.String("message_id", message.ID),
		zap.String("child_id", p.ChildID))
	b.publish(ctx, s, types.ChildIdentity(p.ChildID), message)
	return message, nil
}

// AnswerMessage records the teacher's answer. Answering again replaces the
// previous answer.
func (b *Board) AnswerMessage(ctx context.Context, actor types.ActorContext, sessionID, messageID string, cmd types.AnswerMessageCommand) (*types.Message, error) {
	if err := types.ValidateCommand(cmd); err != nil {
		return nil, err
	}
	s, err := b.sessions.Owned(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	message, err := b.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.SessionID != s.ID {
		return nil, interfaces.ErrMessageNotFound
	}

	now := b.now()
	answer := strings.TrimSpace(cmd.Answer)
	answeredBy := actor.AccountID
	message.IsAnswered = true
	message.Answer = &answer
	message.AnsweredBy = &answeredBy
	message.AnsweredAt = &now
	message.UpdatedAt = now
	if err := b.store.UpdateMessageAnswer(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to store answer: %w", err)
	}

	b.logger.Debug("message answered", zap.String("session_id", s.ID), zap.String("message_id", message.ID))
	b.publish(ctx, s, types.TeacherIdentity(actor.AccountID), message)
	return message, nil
}

// ListMessages returns the board oldest first.
func (b *Board) ListMessages(ctx context.Context, actor types.ActorContext, sessionID string) ([]*types.Message, error) {
	s, err := b.sessions.Load(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if err := b.sessions.AuthorizeReader(ctx, actor, s); err != nil {
		return nil, err
	}
	return b.store.ListMessages(ctx, s.ID)
}

// publish logs delivery failures; the post is already stored.
func (b *Board) publish(ctx context.Context, s *types.Session, publisher string, message *types.Message) {
	event := types.NewEvent(s.ID, types.EventMessageSent, publisher, types.MessageSentFrom(message))
	if err := b.broadcaster.Publish(ctx, event); err != nil {
		b.logger.Warn("message stored but not delivered",
			zap.String("message_id", message.ID),
			zap.Error(err))
	}
}
