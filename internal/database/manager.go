package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	dbconfig "liveclass/pkg/database"
	"liveclass/pkg/interfaces"
)

// Manager implements interfaces.DatabaseManager over sqlx. Reads run
// concurrently on the pool; writes are funnelled through one goroutine so
// SQLite never sees two writers.
type Manager struct {
	db           *sqlx.DB
	pool         *pgxpool.Pool
	config       *dbconfig.Config
	logger       *zap.Logger
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	retryDelay   time.Duration
	writeTimeout time.Duration
}

type writeOperation struct {
	ctx       context.Context
	operation func(context.Context, *sqlx.DB) error
	result    chan error
}

var _ interfaces.DatabaseManager = (*Manager)(nil)

// NewManager opens the configured database and starts the write loop.
func NewManager(config *dbconfig.Config, logger *zap.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid database config")
	}

	m := &Manager{
		config:       config,
		logger:       logger.Named("database"),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
		writeTimeout: 30 * time.Second,
	}

	switch config.Driver {
	case dbconfig.DriverPostgres:
		pool, err := pgxpool.New(context.Background(), config.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create postgres pool")
		}
		m.pool = pool
		m.db = sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")
	default:
		db, err := sqlx.Open(dbconfig.DriverSQLite, config.SQLiteDSN())
		if err != nil {
			return nil, errors.Wrap(err, "failed to open database")
		}
		m.db = db
	}

	m.db.SetMaxOpenConns(config.MaxConnections)
	m.db.SetConnMaxLifetime(config.ConnMaxLifetime)
	m.db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if config.Driver == dbconfig.DriverSQLite {
		for _, pragma := range dbconfig.SQLitePragmas {
			if _, err := m.db.Exec(pragma); err != nil {
				_ = m.db.Close()
				return nil, errors.Wrapf(err, "failed to execute pragma %s", pragma)
			}
		}
	}

	m.wg.Add(1)
	go m.writeLoop()

	m.logger.Info("database opened", zap.String("driver", config.Driver))
	return m, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(op.ctx, m.db)
			if err != nil && isRetryable(err) {
				m.logger.Warn("database write busy, retrying", zap.Duration("delay", m.retryDelay), zap.Error(err))
				time.Sleep(m.retryDelay)
				err = op.operation(op.ctx, m.db)
				if err != nil {
					m.logger.Error("database write failed after retry", zap.Error(err))
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debug("database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(context.Context, *sqlx.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return errors.New("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{ctx: ctx, operation: operation, result: result}:
		return <-result
	case <-time.After(m.writeTimeout):
		return errors.New("write operation timeout")
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return errors.New("database manager is shutting down")
	}
}

func isRetryable(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "database ping failed")
	}

	var count int
	if err := m.db.QueryRowxContext(ctx, "SELECT COUNT(*) FROM live_sessions").Scan(&count); err != nil {
		return errors.Wrap(err, "database read test failed")
	}
	return nil
}

// DB returns the underlying handle for migrations and schema checks.
func (m *Manager) DB() *sql.DB {
	return m.db.DB
}

// Driver returns the configured driver name.
func (m *Manager) Driver() string {
	return m.config.Driver
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return errors.Wrap(err, "failed to close database")
	}
	if m.pool != nil {
		m.pool.Close()
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func now() time.Time {
	return time.Now().UTC()
}
