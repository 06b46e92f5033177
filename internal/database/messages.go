package database

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

const messageSelect = `
	SELECT msg.id, msg.session_id, msg.child_id, COALESCE(c.name, '') AS child_name, msg.body, msg.type,
		msg.is_answered, msg.answer, msg.answered_by, msg.answered_at, msg.created_at, msg.updated_at
	FROM live_messages msg
	LEFT JOIN children c ON c.id = msg.child_id
`

func (m *Manager) CreateMessage(ctx context.Context, message *types.Message) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		query := `
			INSERT INTO live_messages (id, session_id, child_id, body, type, is_answered,
				answer, answered_by, answered_at, created_at, updated_at)
			VALUES (:id, :session_id, :child_id, :body, :type, :is_answered,
				:answer, :answered_by, :answered_at, :created_at, :updated_at)
		`
		if _, err := db.NamedExecContext(ctx, query, message); err != nil {
			return errors.Wrap(err, "failed to insert message")
		}
		return nil
	})
}

func (m *Manager) GetMessage(ctx context.Context, messageID string) (*types.Message, error) {
	var message types.Message
	query := m.db.Rebind(messageSelect + ` WHERE msg.id = ?`)
	if err := m.db.GetContext(ctx, &message, query, messageID); err != nil {
		if isNoRows(err) {
			return nil, interfaces.ErrMessageNotFound
		}
		return nil, errors.Wrap(err, "failed to query message")
	}
	return &message, nil
}

// UpdateMessageAnswer overwrites any previous answer.
func (m *Manager) UpdateMessageAnswer(ctx context.Context, message *types.Message) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		query := `
			UPDATE live_messages SET
				is_answered = :is_answered,
				answer = :answer,
				answered_by = :answered_by,
				answered_at = :answered_at,
				updated_at = :updated_at
			WHERE id = :id
		`
		result, err := db.NamedExecContext(ctx, query, message)
		if err != nil {
			return errors.Wrap(err, "failed to answer message")
		}
		return requireAffected(result, interfaces.ErrMessageNotFound)
	})
}

// ListMessages orders by creation time; ties fall back to id so the order is total.
func (m *Manager) ListMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	messages := []*types.Message{}
	query := m.db.Rebind(messageSelect + ` WHERE msg.session_id = ? ORDER BY msg.created_at ASC, msg.id ASC`)
	if err := m.db.SelectContext(ctx, &messages, query, sessionID); err != nil {
		return nil, errors.Wrap(err, "failed to query messages")
	}
	return messages, nil
}
