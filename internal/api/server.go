// Package api exposes the control-plane commands over HTTP with echo.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"liveclass/internal/access"
	"liveclass/internal/participant"
	"liveclass/pkg/types"
)

// SessionService is the lifecycle controller.
type SessionService interface {
	Create(ctx context.Context, actor types.ActorContext, cmd types.CreateSessionCommand) (*types.Session, error)
	Update(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.UpdateSessionCommand) (*types.Session, error)
	Destroy(ctx context.Context, actor types.ActorContext, sessionID string) (types.SessionStatus, error)
	Start(ctx context.Context, actor types.ActorContext, sessionID string) (*types.Session, error)
	ChangeState(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.ChangeStateCommand) (*types.Session, error)
	Get(ctx context.Context, actor types.ActorContext, sessionID string) (*types.Session, error)
	List(ctx context.Context, actor types.ActorContext) ([]*types.Session, error)
}

// ContentService drives the shared slide view.
type ContentService interface {
	ChangeSlide(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.ChangeSlideCommand) (*types.Session, error)
	ToggleNavigationLock(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.NavigationLockCommand) (*types.Session, error)
	HighlightBlock(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.HighlightBlockCommand) (*types.BlockHighlightedPayload, error)
	SendAnnotation(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.AnnotationCommand) (*types.AnnotationStrokePayload, error)
	ClearAnnotations(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.ClearAnnotationsCommand) (*types.AnnotationClearPayload, error)
}

// ParticipantService is the participant registry.
type ParticipantService interface {
	Join(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.JoinCommand) (*participant.JoinResult, error)
	Leave(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.LeaveCommand) (*types.Participant, error)
	RaiseHand(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.RaiseHandCommand) (*types.Participant, error)
	LowerHand(ctx context.Context, actor types.ActorContext, sessionID, participantID string) (*types.Participant, error)
	List(ctx context.Context, actor types.ActorContext, sessionID string) ([]*types.Participant, error)
	SendReaction(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.ReactionCommand) (*types.EmojiReactionPayload, error)
	MediaToken(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.MediaTokenCommand) (*types.MediaCredentials, error)
}

type ModerationService interface {
	Mute(ctx context.Context, actor types.ActorContext, sessionID, participantID string, cmd types.MuteCommand) (*types.ParticipantMutedPayload, error)
	MuteAll(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.MuteCommand) ([]types.ParticipantMutedPayload, error)
	DisableCamera(ctx context.Context, actor types.ActorContext, sessionID, participantID string, cmd types.DisableCameraCommand) (*types.ParticipantCameraDisabledPayload, error)
	Kick(ctx context.Context, actor types.ActorContext, sessionID, participantID string, cmd types.KickCommand) (*types.Participant, error)
}

type MessageService interface {
	SendMessage(ctx context.Context, actor types.ActorContext, sessionID string, cmd types.SendMessageCommand) (*types.Message, error)
	AnswerMessage(ctx context.Context, actor types.ActorContext, sessionID, messageID string, cmd types.AnswerMessageCommand) (*types.Message, error)
	ListMessages(ctx context.Context, actor types.ActorContext, sessionID string) ([]*types.Message, error)
}

// AccessService lists what a guardian's children may join.
type AccessService interface {
	AccessibleSessions(ctx context.Context, actor types.ActorContext) ([]*access.AccessibleSession, error)
}

type Authenticator interface {
	Authenticate(token string) (types.ActorContext, error)
}

// HealthChecker pings the database.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsProvider reports counters for the health endpoint.
type StatsProvider interface {
	GetStats() map[string]int
}

// Options carries every collaborator the routes dispatch to.
type Options struct {
	Sessions      SessionService
	Content       ContentService
	Participants  ParticipantService
	Moderation    ModerationService
	Messages      MessageService
	Access        AccessService
	Authenticator Authenticator
	Database      HealthChecker
	Realtime      StatsProvider
	SessionStats  StatsProvider
	Subscriptions http.Handler
	Debug         bool
}

// Server routes requests to the controllers. It implements http.Handler.
type Server struct {
	opts   Options
	app    *echo.Echo
	logger *zap.Logger
}

var _ http.Handler = (*Server)(nil)

func NewServer(opts Options, logger *zap.Logger) *Server {
	s := &Server{
		opts:   opts,
		app:    echo.New(),
		logger: logger.Named("api"),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.HidePort = true
	s.app.Debug = s.opts.Debug
	s.app.HTTPErrorHandler = newHTTPErrorHandler(s.logger)

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestID())
	s.app.Use(requestLogger(s.logger))
	s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			s.logger.Error("panic recovered", zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	s.app.GET("/health", s.health)
	if s.opts.Subscriptions != nil {
		s.app.GET("/ws", echo.WrapHandler(s.opts.Subscriptions))
	}

	api := s.app.Group("/api", authMiddleware(s.opts.Authenticator))
	registerSessionRoutes(api, s.opts)
	registerParticipantRoutes(api, s.opts)
	registerMessageRoutes(api, s.opts)
	api.GET("/me/live-sessions", accessibleSessions(s.opts.Access))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Database  string         `json:"database"`
	Realtime  map[string]int `json:"realtime,omitempty"`
	Sessions  map[string]int `json:"sessions,omitempty"`
}

func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Timestamp: time.Now().UTC(), Database: "healthy"}
	code := http.StatusOK
	if s.opts.Database != nil {
		if err := s.opts.Database.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			resp.Status = "unhealthy"
			resp.Database = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	if s.opts.Realtime != nil {
		resp.Realtime = s.opts.Realtime.GetStats()
	}
	if s.opts.SessionStats != nil {
		resp.Sessions = s.opts.SessionStats.GetStats()
	}
	return c.JSON(code, resp)
}

// requestLogger writes one zap line per request.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogRequestID: true,
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("request_id", v.RequestID),
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Debug("request", fields...)
			return nil
		},
	})
}
