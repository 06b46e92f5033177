package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"liveclass/pkg/types"
)

func bind(c echo.Context, cmd interface{}) error {
	if err := c.Bind(cmd); err != nil {
		return errors.Wrap(err, "binding request")
	}
	return nil
}

func registerSessionRoutes(g *echo.Group, opts Options) {
	sessions := opts.Sessions
	content := opts.Content

	g.POST("/sessions", func(c echo.Context) error {
		var cmd types.CreateSessionCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		s, err := sessions.Create(c.Request().Context(), actorFrom(c), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, s)
	})

	g.GET("/sessions", func(c echo.Context) error {
		list, err := sessions.List(c.Request().Context(), actorFrom(c))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, echo.Map{"sessions": list})
	})

	g.GET("/sessions/:id", func(c echo.Context) error {
		s, err := sessions.Get(c.Request().Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, s)
	})

	g.PUT("/sessions/:id", func(c echo.Context) error {
		var cmd types.UpdateSessionCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		s, err := sessions.Update(c.Request().Context(), actorFrom(c), c.Param("id"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, s)
	})

	g.DELETE("/sessions/:id", func(c echo.Context) error {
		id := c.Param("id")
		status, err := sessions.Destroy(c.Request().Context(), actorFrom(c), id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, echo.Map{"id": id, "status": status})
	})

	g.POST("/sessions/:id/start", func(c echo.Context) error {
		s, err := sessions.Start(c.Request().Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, s)
	})

	g.POST("/sessions/:id/state", func(c echo.Context) error {
		var cmd types.ChangeStateCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		s, err := sessions.ChangeState(c.Request().Context(), actorFrom(c), c.Param("id"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, s)
	})

	g.POST("/sessions/:id/slide", func(c echo.Context) error {
		var cmd types.ChangeSlideCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		s, err := content.ChangeSlide(c.Request().Context(), actorFrom(c), c.Param("id"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, s)
	})

	g.POST("/sessions/:id/navigation-lock", func(c echo.Context) error {
		var cmd types.NavigationLockCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		s, err := content.ToggleNavigationLock(c.Request().Context(), actorFrom(c), c.Param("id"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, s)
	})

	g.POST("/sessions/:id/highlight", func(c echo.Context) error {
		var cmd types.HighlightBlockCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		payload, err := content.HighlightBlock(c.Request().Context(), actorFrom(c), c.Param("id"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, payload)
	})

	g.POST("/sessions/:id/annotations", func(c echo.Context) error {
		var cmd types.AnnotationCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		payload, err := content.SendAnnotation(c.Request().Context(), actorFrom(c), c.Param("id"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, payload)
	})

	g.POST("/sessions/:id/annotations/clear", func(c echo.Context) error {
		var cmd types.ClearAnnotationsCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		payload, err := content.ClearAnnotations(c.Request().Context(), actorFrom(c), c.Param("id"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, payload)
	})
}

func registerParticipantRoutes(g *echo.Group, opts Options) {
	participants := opts.Participants
	moderation := opts.Moderation

	// A guardian with several dependents and no child_id gets the list to
	// choose from instead of a join.
	g.POST("/sessions/:id/join", func(c echo.Context) error {
		var cmd types.JoinCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		result, err := participants.Join(c.Request().Context(), actorFrom(c), c.Param("id"), cmd)
		var ambiguous *types.AmbiguousDependent
		if errors.As(err, &ambiguous) {
			return c.JSON(http.StatusOK, echo.Map{
				"selection_required": true,
				"children":           ambiguous.Dependents,
			})
		}
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, result)
	})

	g.POST("/sessions/:id/leave", func(c echo.Context) error {
		var cmd types.LeaveCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		p, err := participants.Leave(c.Request().Context(), actorFrom(c), c.Param("id"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, p)
	})

	g.POST("/sessions/:id/hand", func(c echo.Context) error {
		var cmd types.RaiseHandCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		p, err := participants.RaiseHand(c.Request().Context(), actorFrom(c), c.Param("id"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, p)
	})

	g.POST("/sessions/:id/participants/:participantId/lower-hand", func(c echo.Context) error {
		p, err := participants.LowerHand(c.Request().Context(), actorFrom(c), c.Param("id"), c.Param("participantId"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, p)
	})

	g.GET("/sessions/:id/participants", func(c echo.Context) error {
		list, err := participants.List(c.Request().Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, echo.Map{"participants": list})
	})

	g.POST("/sessions/:id/participants/:participantId/mute", func(c echo.Context) error {
		var cmd types.MuteCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		payload, err := moderation.Mute(c.Request().Context(), actorFrom(c), c.Param("id"), c.Param("participantId"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, payload)
	})

	g.POST("/sessions/:id/participants/:participantId/camera", func(c echo.Context) error {
		var cmd types.DisableCameraCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		payload, err := moderation.DisableCamera(c.Request().Context(), actorFrom(c), c.Param("id"), c.Param("participantId"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, payload)
	})

	g.POST("/sessions/:id/participants/:participantId/kick", func(c echo.Context) error {
		var cmd types.KickCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		p, err := moderation.Kick(c.Request().Context(), actorFrom(c), c.Param("id"), c.Param("participantId"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, p)
	})

	g.POST("/sessions/:id/mute-all", func(c echo.Context) error {
		var cmd types.MuteCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		payloads, err := moderation.MuteAll(c.Request().Context(), actorFrom(c), c.Param("id"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, echo.Map{"participants": payloads})
	})

	g.POST("/sessions/:id/reactions", func(c echo.Context) error {
		var cmd types.ReactionCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		payload, err := participants.SendReaction(c.Request().Context(), actorFrom(c), c.Param("id"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, payload)
	})

	g.POST("/sessions/:id/media-token", func(c echo.Context) error {
		var cmd types.MediaTokenCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		creds, err := participants.MediaToken(c.Request().Context(), actorFrom(c), c.Param("id"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, creds)
	})
}

func registerMessageRoutes(g *echo.Group, opts Options) {
	messages := opts.Messages

	g.POST("/sessions/:id/messages", func(c echo.Context) error {
		var cmd types.SendMessageCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		m, err := messages.SendMessage(c.Request().Context(), actorFrom(c), c.Param("id"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, m)
	})

	g.GET("/sessions/:id/messages", func(c echo.Context) error {
		list, err := messages.ListMessages(c.Request().Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, echo.Map{"messages": list})
	})

	g.POST("/sessions/:id/messages/:messageId/answer", func(c echo.Context) error {
		var cmd types.AnswerMessageCommand
		if err := bind(c, &cmd); err != nil {
			return err
		}
		m, err := messages.AnswerMessage(c.Request().Context(), actorFrom(c), c.Param("id"), c.Param("messageId"), cmd)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, m)
	})
}

func accessibleSessions(svc AccessService) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := svc.AccessibleSessions(c.Request().Context(), actorFrom(c))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, echo.Map{"sessions": list})
	}
}
