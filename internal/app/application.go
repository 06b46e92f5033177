// Package app wires the coordinator's components and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"liveclass/internal/access"
	"liveclass/internal/api"
	"liveclass/internal/auth"
	"liveclass/internal/config"
	"liveclass/internal/contentsync"
	"liveclass/internal/database"
	"liveclass/internal/hub"
	"liveclass/internal/media"
	"liveclass/internal/moderation"
	"liveclass/internal/participant"
	"liveclass/internal/qa"
	"liveclass/internal/router"
	"liveclass/internal/session"
	"liveclass/internal/websocket"
	dbconfig "liveclass/pkg/database"
)

// Application coordinates all system components.
// Initialization order: database, access, realtime fan-out, controllers, HTTP.
type Application struct {
	config     *config.Config
	logger     *zap.Logger
	dbManager  *database.Manager
	sessions   *session.Manager
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	serveErr chan error
}

func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := DatabaseConfig(cfg)
	dbManager, err := database.NewManager(dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
	defer cancel()

	migrations, err := dbconfig.NewMigrationManager(dbManager.DB(), dbConfig.Driver, logger)
	if err == nil {
		err = migrations.ApplyMigrations(ctx)
	}
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := dbconfig.NewSchemaValidator(dbManager.DB(), dbConfig.Driver).Validate(ctx); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	resolver := access.NewResolver(dbManager, dbManager, dbManager, logger)

	registry := websocket.NewRegistry(logger)
	messageRouter := router.NewRouter(registry, cfg.WebSocket.PublishRateLimit, logger)
	messageHub := hub.NewHub(registry, messageRouter, logger)

	sessions := session.NewManager(dbManager, dbManager, resolver, messageHub, logger)
	if err := sessions.LoadActiveSessions(ctx); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to load active sessions: %w", err)
	}

	mediaConfig := media.Config{
		URL:       cfg.Media.URL,
		APIKey:    cfg.Media.APIKey,
		APISecret: cfg.Media.APISecret,
		TokenTTL:  cfg.Media.TokenTTL,
	}
	if !mediaConfig.Configured() {
		logger.Warn("media provider is not configured; sessions run without audio and video")
	}
	issuer := media.NewIssuer(mediaConfig, logger)

	participants := participant.NewRegistry(dbManager, dbManager, sessions, resolver, messageHub, issuer, logger)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	wsHandler := websocket.NewHandler(verifier, participants, messageHub, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	}, logger)

	apiServer := api.NewServer(api.Options{
		Sessions:      sessions,
		Content:       contentsync.NewEngine(sessions, participants, dbManager, messageHub, logger),
		Participants:  participants,
		Moderation:    moderation.NewController(sessions, dbManager, messageHub, logger),
		Messages:      qa.NewBoard(dbManager, sessions, participants, messageHub, logger),
		Access:        resolver,
		Authenticator: verifier,
		Database:      dbManager,
		Realtime:      messageHub,
		SessionStats:  sessions,
		Subscriptions: http.HandlerFunc(wsHandler.HandleWebSocket),
		Debug:         !cfg.IsProduction(),
	}, logger)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTP.Host, fmt.Sprint(cfg.HTTP.Port)),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		dbManager:  dbManager,
		sessions:   sessions,
		hub:        messageHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// DatabaseConfig maps the service configuration onto the storage layer's.
func DatabaseConfig(cfg *config.Config) *dbconfig.Config {
	dbConfig := dbconfig.DefaultConfig()
	dbConfig.Driver = cfg.Database.Driver
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.DSN = cfg.Database.DSN
	dbConfig.MaxConnections = cfg.Database.MaxConnections
	dbConfig.ConnMaxLifetime = cfg.Database.Timeout
	dbConfig.ConnMaxIdleTime = cfg.Database.Timeout / 3
	return dbConfig
}

// Start runs the hub, then binds the listener and serves in the background.
// Bind errors are returned directly.
func (a *Application) Start(ctx context.Context) error {
	if err := a.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	listener, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		_ = a.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", a.httpServer.Addr, err)
	}

	a.mu.Lock()
	a.listener = listener
	a.serveErr = make(chan error, 1)
	a.mu.Unlock()

	go func() {
		if err := a.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server stopped", zap.Error(err))
			a.serveErr <- err
		}
		close(a.serveErr)
	}()

	a.logger.Info("liveclass started", zap.String("addr", listener.Addr().String()))
	return nil
}

// Errors delivers a fatal serve error, if any, and is closed when serving ends.
func (a *Application) Errors() <-chan error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.serveErr
}

// Stop shuts down in reverse order: HTTP, hub, database.
func (a *Application) Stop(ctx context.Context) error {
	a.logger.Info("shutting down")

	var errs []error
	if err := a.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	if err := a.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}

	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// Addr is the bound address once started, else the configured one.
func (a *Application) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.httpServer.Addr
}

// Handler exposes the routed HTTP surface for in-process use.
func (a *Application) Handler() http.Handler {
	return a.apiServer
}
