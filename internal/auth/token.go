// Package auth turns bearer tokens into the ActorContext every operation
// receives.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"liveclass/pkg/types"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
	ErrNoSecret     = errors.New("jwt secret is not configured")
)

// Claims carried by control-plane tokens. Sub is the account id.
type Claims struct {
	jwt.RegisteredClaims
	Role         types.Role `json:"role"`
	Organization string     `json:"org,omitempty"`
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Authenticate validates token and returns the caller it names.
func (v *Verifier) Authenticate(token string) (types.ActorContext, error) {
	if len(v.secret) == 0 {
		return types.ActorContext{}, ErrNoSecret
	}
	if token == "" {
		return types.ActorContext{}, ErrMissingToken
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return types.ActorContext{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return types.ActorContext{}, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return types.ActorContext{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	switch claims.Role {
	case types.RoleTeacher, types.RoleAdmin, types.RoleGuardian:
	default:
		return types.ActorContext{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return types.ActorContext{
		AccountID:      claims.Subject,
		Role:           claims.Role,
		OrganizationID: claims.Organization,
	}, nil
}

// Issue signs a token for actor. Used by tooling and tests; accounts are
// normally issued tokens by the platform's login service.
func (v *Verifier) Issue(actor types.ActorContext, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSecret
	}
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.AccountID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:         actor.Role,
		Organization: actor.OrganizationID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header, falling back
// to the token query parameter that browser websocket clients must use.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
