// Package media issues access tokens for the external real-time audio/video
// provider. Tokens follow the LiveKit claim layout and are signed HS256 with
// the provider API secret.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// DefaultTokenTTL is how long issued credentials stay valid.
const DefaultTokenTTL = 6 * time.Hour

// Config holds the provider endpoint and API credentials.
type Config struct {
	URL       string
	APIKey    string
	APISecret string
	TokenTTL  time.Duration
}

// Configured reports whether tokens can be issued at all.
func (c Config) Configured() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// VideoGrant is the provider's room permission block.
type VideoGrant struct {
	RoomJoin       bool   `json:"roomJoin"`
	Room           string `json:"room"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
}

// Claims is the signed token body.
type Claims struct {
	jwt.RegisteredClaims
	Name     string     `json:"name,omitempty"`
	Metadata string     `json:"metadata,omitempty"`
	Video    VideoGrant `json:"video"`
}

// Issuer signs provider tokens.
type Issuer struct {
	config Config
	logger *zap.Logger
	now    func() time.Time
}

var _ interfaces.MediaTokenIssuer = (*Issuer)(nil)

func NewIssuer(config Config, logger *zap.Logger) *Issuer {
	if config.TokenTTL <= 0 {
		config.TokenTTL = DefaultTokenTTL
	}
	return &Issuer{
		config: config,
		logger: logger.Named("media"),
		now:    time.Now,
	}
}

// Issue returns credentials for grant. Missing provider credentials fail
// with types.ErrMediaTokenIssuance.
func (i *Issuer) Issue(ctx context.Context, grant types.MediaGrant) (*types.MediaCredentials, error) {
	if !i.config.Configured() {
		return nil, fmt.Errorf("media provider credentials are not configured: %w", types.ErrMediaTokenIssuance)
	}
	if grant.SessionID == "" || grant.Identity == "" {
		return nil, fmt.Errorf("grant needs a session and an identity: %w", types.ErrMediaTokenIssuance)
	}

	var metadata string
	if len(grant.Metadata) > 0 {
		data, err := json.Marshal(grant.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %v: %w", err, types.ErrMediaTokenIssuance)
		}
		metadata = string(data)
	}

	now := i.now()
	expires := now.Add(i.config.TokenTTL)
	room := types.MediaRoomName(grant.SessionID)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.config.APIKey,
			Subject:   grant.Identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Name:     grant.DisplayName,
		Metadata: metadata,
		Video: VideoGrant{
			RoomJoin:       true,
			Room:           room,
			CanPublish:     grant.CanPublish,
			CanSubscribe:   grant.CanSubscribe,
			CanPublishData: grant.CanPublishData,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.config.APISecret))
	if err != nil {
		i.logger.Error("failed to sign media token", zap.String("room", room), zap.Error(err))
		return nil, fmt.Errorf("sign token: %v: %w", err, types.ErrMediaTokenIssuance)
	}

	return &types.MediaCredentials{
		Token:               token,
		URL:                 i.config.URL,
		RoomName:            room,
		ParticipantName:     grant.DisplayName,
		ParticipantIdentity: grant.Identity,
		ExpireTime:          expires.Unix(),
	}, nil
}

// TeacherGrant gives the teacher full publish rights in the session room.
func TeacherGrant(session *types.Session, account *types.Account) types.MediaGrant {
	return types.MediaGrant{
		SessionID:   session.ID,
		Identity:    types.TeacherIdentity(account.ID),
		DisplayName: account.Name,
		Role:        types.ParticipantTeacher,
		Metadata: map[string]interface{}{
			"role":       string(types.ParticipantTeacher),
			"session_id": session.ID,
			"teacher_id": account.ID,
		},
		CanPublish:     true,
		CanSubscribe:   true,
		CanPublishData: true,
	}
}

// StudentGrant names the participant after the child, not the guardian
// account that requested it. Publishing follows the session's audio and
// video capabilities.
func StudentGrant(session *types.Session, child *types.Dependent) types.MediaGrant {
	return types.MediaGrant{
		SessionID:   session.ID,
		Identity:    types.ChildIdentity(child.ID),
		DisplayName: child.Name,
		Role:        types.ParticipantStudent,
		Metadata: map[string]interface{}{
			"role":       string(types.ParticipantStudent),
			"session_id": session.ID,
			"child_id":   child.ID,
		},
		CanPublish:     session.AudioEnabled || session.VideoEnabled,
		CanSubscribe:   true,
		CanPublishData: true,
	}
}
