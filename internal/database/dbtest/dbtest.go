// Package dbtest builds migrated throwaway databases for package tests.
package dbtest

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"liveclass/internal/database"
	dbconfig "liveclass/pkg/database"
	"liveclass/pkg/types"
)

// New opens a SQLite database under t.TempDir, applies every migration and
// closes it when the test ends.
func New(t *testing.T) *database.Manager {
	t.Helper()

	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	logger := zap.NewNop()
	manager, err := database.NewManager(config, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	migrations, err := dbconfig.NewMigrationManager(manager.DB(), config.Driver, logger)
	require.NoError(t, err)
	require.NoError(t, migrations.ApplyMigrations(context.Background()))

	return manager
}

// SeedAccount inserts an account row.
func SeedAccount(t *testing.T, m *database.Manager, id, name string, role types.Role, orgID string) {
	t.Helper()
	exec(t, m, `INSERT INTO accounts (id, name, role, organization_id) VALUES (?, ?, ?, ?)`, id, name, string(role), orgID)
}

// SeedChild inserts a dependent profile owned by accountID.
func SeedChild(t *testing.T, m *database.Manager, id, accountID, name string) {
	t.Helper()
	exec(t, m, `INSERT INTO children (id, account_id, name) VALUES (?, ?, ?)`, id, accountID, name)
}

// SeedSlides inserts the slides of a lesson in order.
func SeedSlides(t *testing.T, m *database.Manager, lessonID string, slideIDs ...string) {
	t.Helper()
	for i, slideID := range slideIDs {
		exec(t, m, `INSERT INTO lesson_slides (id, lesson_id, position) VALUES (?, ?, ?)`, slideID, lessonID, i)
	}
}

// Entitlement describes a seeded access record. Metadata and SessionIDs are
// marshalled as given so tests can store numbers as well as strings.
type Entitlement struct {
	ID         string
	ChildID    string
	SessionID  string
	SessionIDs interface{}
	Metadata   map[string]interface{}
	Paid       bool
}

// SeedEntitlement inserts an access record.
func SeedEntitlement(t *testing.T, m *database.Manager, e Entitlement) {
	t.Helper()
	var sessionID, sessionIDs, metadata interface{}
	if e.SessionID != "" {
		sessionID = e.SessionID
	}
	if e.SessionIDs != nil {
		data, err := json.Marshal(e.SessionIDs)
		require.NoError(t, err)
		sessionIDs = string(data)
	}
	if e.Metadata != nil {
		data, err := json.Marshal(e.Metadata)
		require.NoError(t, err)
		metadata = string(data)
	}
	exec(t, m, `INSERT INTO entitlements (id, child_id, session_id, session_ids, metadata, paid) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ChildID, sessionID, sessionIDs, metadata, e.Paid)
}

// SeedSession stores a session directly, bypassing lifecycle rules.
func SeedSession(t *testing.T, m *database.Manager, s *types.Session) *types.Session {
	t.Helper()
	now := time.Now().UTC()
	if s.UID == "" {
		s.UID = "LSS-" + s.ID
	}
	if s.Code == "" {
		s.Code = "C-" + s.ID
	}
	if s.Status == "" {
		s.Status = types.StatusScheduled
	}
	if s.PacingMode == "" {
		s.PacingMode = types.PacingTeacherControlled
	}
	if s.ScheduledStartTime.IsZero() {
		s.ScheduledStartTime = now.Add(time.Hour)
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	require.NoError(t, m.CreateSession(context.Background(), s))
	return s
}

func exec(t *testing.T, m *database.Manager, query string, args ...interface{}) {
	t.Helper()
	_, err := m.DB().ExecContext(context.Background(), query, args...)
	require.NoError(t, err)
}
