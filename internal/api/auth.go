package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"liveclass/internal/auth"
	"liveclass/pkg/types"
)

const contextActorKey = "actor"

var errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid bearer token")

// authMiddleware resolves the bearer token into an ActorContext.
func authMiddleware(authenticator Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authenticator == nil {
				return errUnauthorized
			}
			actor, err := authenticator.Authenticate(auth.BearerToken(c.Request()))
			if err != nil {
				return errUnauthorized.WithInternal(err)
			}
			c.Set(contextActorKey, actor)
			return next(c)
		}
	}
}

func actorFrom(c echo.Context) types.ActorContext {
	actor, _ := c.Get(contextActorKey).(types.ActorContext)
	return actor
}
