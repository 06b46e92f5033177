package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

const sessionColumns = `id, uid, session_code, teacher_id, organization_id, lesson_id, course_id, status,
	scheduled_start_time, actual_start_time, end_time, current_slide_id, navigation_locked, pacing_mode,
	audio_enabled, video_enabled, whiteboard_enabled, allow_student_questions, record_session,
	created_at, updated_at`

// CreateSession inserts a new session row.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		query := `
			INSERT INTO live_sessions (` + sessionColumns + `)
			VALUES (:id, :uid, :session_code, :teacher_id, :organization_id, :lesson_id, :course_id, :status,
				:scheduled_start_time, :actual_start_time, :end_time, :current_slide_id, :navigation_locked, :pacing_mode,
				:audio_enabled, :video_enabled, :whiteboard_enabled, :allow_student_questions, :record_session,
				:created_at, :updated_at)
		`
		if _, err := db.NamedExecContext(ctx, query, session); err != nil {
			return errors.Wrap(err, "failed to insert session")
		}
		return nil
	})
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	var session types.Session
	query := m.db.Rebind(`SELECT ` + sessionColumns + ` FROM live_sessions WHERE id = ?`)
	if err := m.db.GetContext(ctx, &session, query, sessionID); err != nil {
		if isNoRows(err) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "failed to query session")
	}
	return &session, nil
}

// UpdateSessionDetails writes the editable columns of a scheduled session.
// It never touches status, start or end times.
func (m *Manager) UpdateSessionDetails(ctx context.Context, session *types.Session) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		query := `
			UPDATE live_sessions SET
				lesson_id = :lesson_id,
				course_id = :course_id,
				scheduled_start_time = :scheduled_start_time,
				current_slide_id = :current_slide_id,
				audio_enabled = :audio_enabled,
				video_enabled = :video_enabled,
				whiteboard_enabled = :whiteboard_enabled,
				allow_student_questions = :allow_student_questions,
				record_session = :record_session,
				updated_at = :updated_at
			WHERE id = :id AND status = 'scheduled'
		`
		result, err := db.NamedExecContext(ctx, query, session)
		if err != nil {
			return errors.Wrap(err, "failed to update session")
		}
		return requireSessionRow(ctx, db, result, session.ID)
	})
}

// TransitionSession moves a session from status from to session.Status. The
// write only applies while the stored status still equals from; otherwise
// ErrSessionStatusChanged is returned. An existing actual_start_time is kept.
func (m *Manager) TransitionSession(ctx context.Context, session *types.Session, from types.SessionStatus) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		query := db.Rebind(`
			UPDATE live_sessions SET
				status = ?,
				actual_start_time = COALESCE(actual_start_time, ?),
				end_time = ?,
				updated_at = ?
			WHERE id = ? AND status = ?
		`)
		result, err := db.ExecContext(ctx, query,
			session.Status, session.ActualStartTime, session.EndTime, session.UpdatedAt, session.ID, from)
		if err != nil {
			return errors.Wrap(err, "failed to update session status")
		}
		return requireSessionRow(ctx, db, result, session.ID)
	})
}

// UpdateSessionSlide sets the current slide of a session that has not ended.
func (m *Manager) UpdateSessionSlide(ctx context.Context, sessionID, slideID string, updatedAt time.Time) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		query := db.Rebind(`UPDATE live_sessions SET current_slide_id = ?, updated_at = ? WHERE id = ? AND status <> 'ended'`)
		result, err := db.ExecContext(ctx, query, slideID, updatedAt, sessionID)
		if err != nil {
			return errors.Wrap(err, "failed to update current slide")
		}
		return requireSessionRow(ctx, db, result, sessionID)
	})
}

// UpdateSessionNavigationLock sets the lock flag of a session that has not ended.
func (m *Manager) UpdateSessionNavigationLock(ctx context.Context, sessionID string, locked bool, updatedAt time.Time) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		query := db.Rebind(`UPDATE live_sessions SET navigation_locked = ?, updated_at = ? WHERE id = ? AND status <> 'ended'`)
		result, err := db.ExecContext(ctx, query, locked, updatedAt, sessionID)
		if err != nil {
			return errors.Wrap(err, "failed to update navigation lock")
		}
		return requireSessionRow(ctx, db, result, sessionID)
	})
}

// DeleteSession removes a session and, by cascade, its participants and messages.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		result, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM live_sessions WHERE id = ?`), sessionID)
		if err != nil {
			return errors.Wrap(err, "failed to delete session")
		}
		return requireAffected(result, interfaces.ErrSessionNotFound)
	})
}

// ListSessionsByTeacher orders by scheduled start, newest first.
func (m *Manager) ListSessionsByTeacher(ctx context.Context, teacherID string) ([]*types.Session, error) {
	return m.selectSessions(ctx,
		`SELECT `+sessionColumns+` FROM live_sessions WHERE teacher_id = ? ORDER BY scheduled_start_time DESC`,
		teacherID)
}

func (m *Manager) ListSessionsByOrganization(ctx context.Context, organizationID string) ([]*types.Session, error) {
	return m.selectSessions(ctx,
		`SELECT `+sessionColumns+` FROM live_sessions WHERE organization_id = ? ORDER BY scheduled_start_time DESC`,
		organizationID)
}

// ListSessionsByIDs silently skips unknown ids. Newest scheduled first.
func (m *Manager) ListSessionsByIDs(ctx context.Context, sessionIDs []string) ([]*types.Session, error) {
	if len(sessionIDs) == 0 {
		return []*types.Session{}, nil
	}
	query, args, err := sqlx.In(
		`SELECT `+sessionColumns+` FROM live_sessions WHERE id IN (?) ORDER BY scheduled_start_time DESC`,
		sessionIDs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build session id query")
	}
	return m.selectSessions(ctx, query, args...)
}

// ListActiveSessions returns live and paused sessions.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	return m.selectSessions(ctx,
		`SELECT `+sessionColumns+` FROM live_sessions WHERE status IN ('live', 'paused') ORDER BY actual_start_time DESC`)
}

func (m *Manager) selectSessions(ctx context.Context, query string, args ...interface{}) ([]*types.Session, error) {
	sessions := []*types.Session{}
	if err := m.db.SelectContext(ctx, &sessions, m.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "failed to query sessions")
	}
	return sessions, nil
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireAffected(result rowsAffected, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// requireSessionRow tells a missing session apart from a guarded update
// whose status condition no longer held.
func requireSessionRow(ctx context.Context, db *sqlx.DB, result rowsAffected, sessionID string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := db.GetContext(ctx, &exists, db.Rebind(`SELECT COUNT(*) FROM live_sessions WHERE id = ?`), sessionID); err != nil {
		return errors.Wrap(err, "failed to check session")
	}
	if exists == 0 {
		return interfaces.ErrSessionNotFound
	}
	return interfaces.ErrSessionStatusChanged
}
