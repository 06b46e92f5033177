package media

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"liveclass/pkg/types"
)

func testConfig() Config {
	return Config{URL: "wss://media.example.test", APIKey: "key-1", APISecret: "secret-1"}
}

func TestIssue_SignsProviderClaims(t *testing.T) {
	issuer := NewIssuer(testConfig(), zap.NewNop())
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return fixed }

	session := &types.Session{ID: "s1", Capabilities: types.DefaultCapabilities()}
	child := &types.Dependent{ID: "c1", Name: "Amani"}

	creds, err := issuer.Issue(context.Background(), StudentGrant(session, child))
	require.NoError(t, err)

	assert.Equal(t, "live-lesson-s1", creds.RoomName)
	assert.Equal(t, "child-c1", creds.ParticipantIdentity)
	assert.Equal(t, "Amani", creds.ParticipantName)
	assert.Equal(t, "wss://media.example.test", creds.URL)
	assert.Equal(t, fixed.Add(DefaultTokenTTL).Unix(), creds.ExpireTime)

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	_, err = parser.ParseWithClaims(creds.Token, claims, func(token *jwt.Token) (interface{}, error) {
		assert.Equal(t, jwt.SigningMethodHS256.Alg(), token.Method.Alg())
		return []byte("secret-1"), nil
	})
	require.NoError(t, err)

	assert.Equal(t, "key-1", claims.Issuer)
	assert.Equal(t, "child-c1", claims.Subject)
	assert.Equal(t, "Amani", claims.Name)
	assert.True(t, claims.Video.RoomJoin)
	assert.Equal(t, "live-lesson-s1", claims.Video.Room)
	assert.True(t, claims.Video.CanPublish)
	assert.True(t, claims.Video.CanSubscribe)

	var metadata map[string]string
	require.NoError(t, json.Unmarshal([]byte(claims.Metadata), &metadata))
	assert.Equal(t, "student", metadata["role"])
	assert.Equal(t, "c1", metadata["child_id"])
}

func TestIssue_Unconfigured(t *testing.T) {
	issuer := NewIssuer(Config{URL: "wss://x"}, zap.NewNop())
	_, err := issuer.Issue(context.Background(), types.MediaGrant{SessionID: "s1", Identity: "child-c1"})
	assert.True(t, errors.Is(err, types.ErrMediaTokenIssuance))
}

func TestIssue_RequiresIdentity(t *testing.T) {
	issuer := NewIssuer(testConfig(), zap.NewNop())
	_, err := issuer.Issue(context.Background(), types.MediaGrant{SessionID: "s1"})
	assert.True(t, errors.Is(err, types.ErrMediaTokenIssuance))
}

func TestGrants(t *testing.T) {
	session := &types.Session{ID: "s1"}
	student := StudentGrant(session, &types.Dependent{ID: "c1", Name: "Amani"})
	assert.False(t, student.CanPublish, "no audio or video capability")
	assert.True(t, student.CanSubscribe)
	assert.Equal(t, types.ParticipantStudent, student.Role)

	teacher := TeacherGrant(session, &types.Account{ID: "t1", Name: "Mwalimu"})
	assert.Equal(t, "teacher-t1", teacher.Identity)
	assert.Equal(t, "Mwalimu", teacher.DisplayName)
	assert.True(t, teacher.CanPublish)
}
