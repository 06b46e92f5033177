package database

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

const participantSelect = `
	SELECT p.id, p.session_id, p.child_id, COALESCE(c.name, '') AS child_name, p.status,
		p.connection_status, p.hand_raised, p.hand_raised_at, p.joined_at, p.left_at,
		p.created_at, p.updated_at
	FROM live_participants p
	LEFT JOIN children c ON c.id = p.child_id
`

// UpsertParticipant keeps hand-raise state and left_at from any earlier row.
func (m *Manager) UpsertParticipant(ctx context.Context, participant *types.Participant) (*types.Participant, error) {
	err := m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		query := `
			INSERT INTO live_participants (id, session_id, child_id, status, connection_status,
				hand_raised, hand_raised_at, joined_at, left_at, created_at, updated_at)
			VALUES (:id, :session_id, :child_id, :status, :connection_status,
				:hand_raised, :hand_raised_at, :joined_at, :left_at, :created_at, :updated_at)
			ON CONFLICT (session_id, child_id) DO UPDATE SET
				status = excluded.status,
				connection_status = excluded.connection_status,
				joined_at = excluded.joined_at,
				updated_at = excluded.updated_at
		`
		if _, err := db.NamedExecContext(ctx, query, participant); err != nil {
			return errors.Wrap(err, "failed to upsert participant")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.GetParticipantByChild(ctx, participant.SessionID, participant.ChildID)
}

func (m *Manager) GetParticipant(ctx context.Context, participantID string) (*types.Participant, error) {
	return m.getParticipant(ctx, participantSelect+` WHERE p.id = ?`, participantID)
}

func (m *Manager) GetParticipantByChild(ctx context.Context, sessionID, childID string) (*types.Participant, error) {
	return m.getParticipant(ctx, participantSelect+` WHERE p.session_id = ? AND p.child_id = ?`, sessionID, childID)
}

// ListParticipants returns every row for the session in join order, whatever its status.
func (m *Manager) ListParticipants(ctx context.Context, sessionID string) ([]*types.Participant, error) {
	participants := []*types.Participant{}
	query := m.db.Rebind(participantSelect + ` WHERE p.session_id = ? ORDER BY p.created_at ASC, p.id ASC`)
	if err := m.db.SelectContext(ctx, &participants, query, sessionID); err != nil {
		return nil, errors.Wrap(err, "failed to query participants")
	}
	return participants, nil
}

func (m *Manager) UpdateParticipant(ctx context.Context, participant *types.Participant) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		query := `
			UPDATE live_participants SET
				status = :status,
				connection_status = :connection_status,
				hand_raised = :hand_raised,
				hand_raised_at = :hand_raised_at,
				joined_at = :joined_at,
				left_at = :left_at,
				updated_at = :updated_at
			WHERE id = :id
		`
		result, err := db.NamedExecContext(ctx, query, participant)
		if err != nil {
			return errors.Wrap(err, "failed to update participant")
		}
		return requireAffected(result, interfaces.ErrParticipantNotFound)
	})
}

func (m *Manager) getParticipant(ctx context.Context, query string, args ...interface{}) (*types.Participant, error) {
	var participant types.Participant
	if err := m.db.GetContext(ctx, &participant, m.db.Rebind(query), args...); err != nil {
		if isNoRows(err) {
			return nil, interfaces.ErrParticipantNotFound
		}
		return nil, errors.Wrap(err, "failed to query participant")
	}
	return &participant, nil
}
