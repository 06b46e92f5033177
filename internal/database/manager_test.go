package database_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveclass/internal/database/dbtest"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

func strPtr(s string) *string { return &s }

func TestManager_HealthCheck(t *testing.T) {
	m := dbtest.New(t)
	assert.NoError(t, m.HealthCheck(context.Background()))
}

func TestManager_SessionRoundTrip(t *testing.T) {
	m := dbtest.New(t)
	ctx := context.Background()

	session := dbtest.SeedSession(t, m, &types.Session{
		ID:             "s1",
		TeacherID:      "t1",
		OrganizationID: "org1",
		LessonID:       "lesson-1",
		CourseID:       strPtr("course-1"),
		Capabilities:   types.DefaultCapabilities(),
	})

	got, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, session.UID, got.UID)
	assert.Equal(t, types.StatusScheduled, got.Status)
	assert.Equal(t, "course-1", *got.CourseID)
	assert.Nil(t, got.ActualStartTime)
	assert.True(t, got.AudioEnabled)
	assert.False(t, got.VideoEnabled)

	started := time.Now().UTC()
	got.Status = types.StatusLive
	got.ActualStartTime = &started
	got.UpdatedAt = started
	require.NoError(t, m.TransitionSession(ctx, got, types.StatusScheduled))
	require.NoError(t, m.UpdateSessionSlide(ctx, "s1", "slide-1", started))
	require.NoError(t, m.UpdateSessionNavigationLock(ctx, "s1", true, started))

	updated, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusLive, updated.Status)
	require.NotNil(t, updated.ActualStartTime)
	assert.WithinDuration(t, started, *updated.ActualStartTime, time.Second)
	assert.Equal(t, "slide-1", *updated.CurrentSlideID)
	assert.True(t, updated.NavigationLocked)

	active, err := m.ListActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "s1", active[0].ID)
}

func TestManager_SessionNotFound(t *testing.T) {
	m := dbtest.New(t)
	ctx := context.Background()

	_, err := m.GetSession(ctx, "missing")
	assert.True(t, errors.Is(err, interfaces.ErrSessionNotFound))
	assert.True(t, errors.Is(err, types.ErrNotFound))

	err = m.TransitionSession(ctx, &types.Session{ID: "missing", Status: types.StatusLive}, types.StatusScheduled)
	assert.True(t, errors.Is(err, interfaces.ErrSessionNotFound))
	err = m.UpdateSessionSlide(ctx, "missing", "slide-1", time.Now())
	assert.True(t, errors.Is(err, interfaces.ErrSessionNotFound))
	err = m.UpdateSessionDetails(ctx, &types.Session{ID: "missing"})
	assert.True(t, errors.Is(err, interfaces.ErrSessionNotFound))

	assert.True(t, errors.Is(m.DeleteSession(ctx, "missing"), interfaces.ErrSessionNotFound))
}

func TestManager_ListSessions(t *testing.T) {
	m := dbtest.New(t)
	ctx := context.Background()

	dbtest.SeedSession(t, m, &types.Session{ID: "a", TeacherID: "t1", OrganizationID: "org1", LessonID: "l"})
	dbtest.SeedSession(t, m, &types.Session{ID: "b", TeacherID: "t1", OrganizationID: "org1", LessonID: "l"})
	dbtest.SeedSession(t, m, &types.Session{ID: "c", TeacherID: "t2", OrganizationID: "org2", LessonID: "l"})

	byTeacher, err := m.ListSessionsByTeacher(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, byTeacher, 2)

	byOrg, err := m.ListSessionsByOrganization(ctx, "org2")
	require.NoError(t, err)
	require.Len(t, byOrg, 1)
	assert.Equal(t, "c", byOrg[0].ID)

	byIDs, err := m.ListSessionsByIDs(ctx, []string{"a", "c", "nope"})
	require.NoError(t, err)
	assert.Len(t, byIDs, 2)

	empty, err := m.ListSessionsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestManager_TransitionSessionRequiresExpectedStatus(t *testing.T) {
	m := dbtest.New(t)
	ctx := context.Background()
	dbtest.SeedSession(t, m, &types.Session{ID: "s1", TeacherID: "t1", LessonID: "l"})

	first := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, m.TransitionSession(ctx,
		&types.Session{ID: "s1", Status: types.StatusLive, ActualStartTime: &first, UpdatedAt: first},
		types.StatusScheduled))

	second := time.Now().UTC()
	err := m.TransitionSession(ctx,
		&types.Session{ID: "s1", Status: types.StatusLive, ActualStartTime: &second, UpdatedAt: second},
		types.StatusScheduled)
	assert.True(t, errors.Is(err, interfaces.ErrSessionStatusChanged))
	assert.True(t, errors.Is(err, types.ErrInvalidStateTransition))

	// Resuming keeps the first start time.
	require.NoError(t, m.TransitionSession(ctx,
		&types.Session{ID: "s1", Status: types.StatusPaused, UpdatedAt: second}, types.StatusLive))
	require.NoError(t, m.TransitionSession(ctx,
		&types.Session{ID: "s1", Status: types.StatusLive, ActualStartTime: &second, UpdatedAt: second}, types.StatusPaused))

	got, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusLive, got.Status)
	require.NotNil(t, got.ActualStartTime)
	assert.WithinDuration(t, first, *got.ActualStartTime, time.Second)
}

func TestManager_ColumnWritesLeaveLifecycleAlone(t *testing.T) {
	m := dbtest.New(t)
	ctx := context.Background()
	dbtest.SeedSession(t, m, &types.Session{ID: "s1", TeacherID: "t1", LessonID: "l"})

	now := time.Now().UTC()
	require.NoError(t, m.TransitionSession(ctx,
		&types.Session{ID: "s1", Status: types.StatusLive, ActualStartTime: &now, UpdatedAt: now}, types.StatusScheduled))
	require.NoError(t, m.TransitionSession(ctx,
		&types.Session{ID: "s1", Status: types.StatusEnded, EndTime: &now, UpdatedAt: now}, types.StatusLive))

	err := m.UpdateSessionSlide(ctx, "s1", "slide-9", now)
	assert.True(t, errors.Is(err, interfaces.ErrSessionStatusChanged))
	err = m.UpdateSessionNavigationLock(ctx, "s1", true, now)
	assert.True(t, errors.Is(err, interfaces.ErrSessionStatusChanged))

	got, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusEnded, got.Status)
	assert.NotNil(t, got.EndTime)
	assert.Nil(t, got.CurrentSlideID)
	assert.False(t, got.NavigationLocked)
}

func TestManager_UpdateSessionDetailsOnlyWhileScheduled(t *testing.T) {
	m := dbtest.New(t)
	ctx := context.Background()
	s := dbtest.SeedSession(t, m, &types.Session{ID: "s1", TeacherID: "t1", LessonID: "l"})

	s.LessonID = "l2"
	s.CourseID = strPtr("course-2")
	require.NoError(t, m.UpdateSessionDetails(ctx, s))

	now := time.Now().UTC()
	require.NoError(t, m.TransitionSession(ctx,
		&types.Session{ID: "s1", Status: types.StatusLive, ActualStartTime: &now, UpdatedAt: now}, types.StatusScheduled))

	s.LessonID = "l3"
	err := m.UpdateSessionDetails(ctx, s)
	assert.True(t, errors.Is(err, interfaces.ErrSessionStatusChanged))

	got, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "l2", got.LessonID)
	assert.Equal(t, types.StatusLive, got.Status)
}

func TestManager_DeleteSessionCascades(t *testing.T) {
	m := dbtest.New(t)
	ctx := context.Background()

	dbtest.SeedSession(t, m, &types.Session{ID: "s1", TeacherID: "t1", LessonID: "l"})
	now := time.Now().UTC()
	_, err := m.UpsertParticipant(ctx, &types.Participant{
		ID: "p1", SessionID: "s1", ChildID: "c1",
		Status: types.ParticipantJoined, ConnectionStatus: types.ConnectionConnected,
		JoinedAt: &now, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	require.NoError(t, m.DeleteSession(ctx, "s1"))

	participants, err := m.ListParticipants(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, participants)
}

func TestManager_UpsertParticipantPreservesHandState(t *testing.T) {
	m := dbtest.New(t)
	ctx := context.Background()

	dbtest.SeedAccount(t, m, "g1", "Guardian", types.RoleGuardian, "org1")
	dbtest.SeedChild(t, m, "c1", "g1", "Amani")
	dbtest.SeedSession(t, m, &types.Session{ID: "s1", TeacherID: "t1", LessonID: "l"})

	now := time.Now().UTC()
	first, err := m.UpsertParticipant(ctx, &types.Participant{
		ID: "p1", SessionID: "s1", ChildID: "c1",
		Status: types.ParticipantJoined, ConnectionStatus: types.ConnectionConnected,
		JoinedAt: &now, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, "Amani", first.ChildName)

	first.HandRaised = true
	first.HandRaisedAt = &now
	first.Status = types.ParticipantLeft
	first.ConnectionStatus = types.ConnectionDisconnected
	first.LeftAt = &now
	require.NoError(t, m.UpdateParticipant(ctx, first))

	later := now.Add(time.Minute)
	again, err := m.UpsertParticipant(ctx, &types.Participant{
		ID: "p-other", SessionID: "s1", ChildID: "c1",
		Status: types.ParticipantJoined, ConnectionStatus: types.ConnectionConnected,
		JoinedAt: &later, CreatedAt: later, UpdatedAt: later,
	})
	require.NoError(t, err)

	assert.Equal(t, "p1", again.ID, "existing row is reused")
	assert.Equal(t, types.ParticipantJoined, again.Status)
	assert.Equal(t, types.ConnectionConnected, again.ConnectionStatus)
	assert.True(t, again.HandRaised)
	assert.NotNil(t, again.LeftAt)
	require.NotNil(t, again.JoinedAt)
	assert.WithinDuration(t, later, *again.JoinedAt, time.Second)
}

func TestManager_ParticipantNotFound(t *testing.T) {
	m := dbtest.New(t)
	ctx := context.Background()

	_, err := m.GetParticipant(ctx, "nope")
	assert.True(t, errors.Is(err, interfaces.ErrParticipantNotFound))

	_, err = m.GetParticipantByChild(ctx, "s1", "c1")
	assert.True(t, errors.Is(err, interfaces.ErrParticipantNotFound))
}

func TestManager_Messages(t *testing.T) {
	m := dbtest.New(t)
	ctx := context.Background()

	dbtest.SeedAccount(t, m, "g1", "Guardian", types.RoleGuardian, "")
	dbtest.SeedChild(t, m, "c1", "g1", "Amani")
	dbtest.SeedSession(t, m, &types.Session{ID: "s1", TeacherID: "t1", LessonID: "l"})

	base := time.Now().UTC()
	for i, id := range []string{"m2", "m1", "m3"} {
		at := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, m.CreateMessage(ctx, &types.Message{
			ID: id, SessionID: "s1", ChildID: "c1", Body: "question " + id,
			Type: types.MessageQuestion, CreatedAt: at, UpdatedAt: at,
		}))
	}

	messages, err := m.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, []string{"m2", "m1", "m3"}, []string{messages[0].ID, messages[1].ID, messages[2].ID})
	assert.Equal(t, "Amani", messages[0].ChildName)

	msg, err := m.GetMessage(ctx, "m1")
	require.NoError(t, err)
	answeredAt := time.Now().UTC()
	msg.IsAnswered = true
	msg.Answer = strPtr("because")
	msg.AnsweredBy = strPtr("t1")
	msg.AnsweredAt = &answeredAt
	require.NoError(t, m.UpdateMessageAnswer(ctx, msg))

	answered, err := m.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, answered.IsAnswered)
	assert.Equal(t, "because", *answered.Answer)

	_, err = m.GetMessage(ctx, "missing")
	assert.True(t, errors.Is(err, interfaces.ErrMessageNotFound))
}

func TestManager_Directory(t *testing.T) {
	m := dbtest.New(t)
	ctx := context.Background()

	dbtest.SeedAccount(t, m, "g1", "Guardian", types.RoleGuardian, "org1")
	dbtest.SeedChild(t, m, "c2", "g1", "Zawadi")
	dbtest.SeedChild(t, m, "c1", "g1", "Amani")

	account, err := m.GetAccount(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, types.RoleGuardian, account.Role)
	assert.Equal(t, "org1", account.OrganizationID)

	dependents, err := m.ListDependents(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, dependents, 2)
	assert.Equal(t, "Amani", dependents[0].Name)

	dependent, err := m.GetDependent(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "g1", dependent.AccountID)

	_, err = m.GetDependent(ctx, "nope")
	assert.True(t, errors.Is(err, interfaces.ErrDependentNotFound))
	_, err = m.GetAccount(ctx, "nope")
	assert.True(t, errors.Is(err, interfaces.ErrAccountNotFound))
}

func TestManager_Entitlements(t *testing.T) {
	m := dbtest.New(t)
	ctx := context.Background()

	dbtest.SeedEntitlement(t, m, dbtest.Entitlement{ID: "e1", ChildID: "c1", SessionID: "s1", Paid: true})
	dbtest.SeedEntitlement(t, m, dbtest.Entitlement{ID: "e2", ChildID: "c1", SessionIDs: []interface{}{"s2", 3}, Paid: true})
	dbtest.SeedEntitlement(t, m, dbtest.Entitlement{
		ID: "e3", ChildID: "c1",
		Metadata: map[string]interface{}{types.MetadataLiveSessionIDsKey: []interface{}{4, "s5"}},
	})

	entitlements, err := m.ListEntitlements(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, entitlements, 3)

	assert.Equal(t, "s1", *entitlements[0].SessionID)
	assert.Equal(t, types.IDList{"s2", "3"}, entitlements[1].SessionIDs)
	assert.False(t, entitlements[2].Paid)
	assert.Equal(t, []string{"4", "s5"}, entitlements[2].Grants()[0].SessionIDs())
}

func TestManager_ContentCatalog(t *testing.T) {
	m := dbtest.New(t)
	ctx := context.Background()

	dbtest.SeedSlides(t, m, "lesson-1", "slide-a", "slide-b")

	first, err := m.FirstSlide(ctx, "lesson-1")
	require.NoError(t, err)
	assert.Equal(t, "slide-a", first)

	none, err := m.FirstSlide(ctx, "lesson-2")
	require.NoError(t, err)
	assert.Empty(t, none)

	ok, err := m.SlideBelongsToLesson(ctx, "lesson-1", "slide-b")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SlideBelongsToLesson(ctx, "lesson-2", "slide-b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_ConcurrentWrites(t *testing.T) {
	m := dbtest.New(t)
	ctx := context.Background()
	dbtest.SeedSession(t, m, &types.Session{ID: "s1", TeacherID: "t1", LessonID: "l"})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at := time.Now().UTC()
			errs <- m.CreateMessage(ctx, &types.Message{
				ID: "m" + string(rune('a'+i)), SessionID: "s1", ChildID: "c1", Body: "hi",
				Type: types.MessageComment, CreatedAt: at, UpdatedAt: at,
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	messages, err := m.ListMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, messages, 20)
}

func TestManager_CloseRejectsWrites(t *testing.T) {
	m := dbtest.New(t)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	err := m.CreateMessage(context.Background(), &types.Message{ID: "x"})
	assert.Error(t, err)
}
