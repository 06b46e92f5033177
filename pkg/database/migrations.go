package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// MigrationManager applies the embedded goose migrations.
type MigrationManager struct {
	db      *sql.DB
	dialect string
	logger  *zap.Logger
}

// NewMigrationManager selects the goose dialect for driver.
func NewMigrationManager(db *sql.DB, driver string, logger *zap.Logger) (*MigrationManager, error) {
	dialect := "sqlite3"
	if driver == DriverPostgres {
		dialect = "postgres"
	}

	logger = logger.Named("migrations")
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{logger.Sugar()})
	if err := goose.SetDialect(dialect); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}

	return &MigrationManager{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}, nil
}

// ApplyMigrations applies every pending migration.
func (m *MigrationManager) ApplyMigrations(ctx context.Context) error {
	m.logger.Info("applying database migrations", zap.String("dialect", m.dialect))

	if err := goose.UpContext(ctx, m.db, migrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := m.Version(ctx)
	if err != nil {
		return err
	}
	m.logger.Info("migrations applied", zap.Int64("version", version))
	return nil
}

// Version reports the current schema version.
func (m *MigrationManager) Version(ctx context.Context) (int64, error) {
	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// gooseLogger sends goose progress lines to zap.
type gooseLogger struct {
	sugar *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.sugar.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.sugar.Fatalf(strings.TrimSuffix(format, "\n"), v...)
}
