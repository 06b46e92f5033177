package database

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaValidator verifies that the migrated schema has what the stores query.
type SchemaValidator struct {
	db     *sql.DB
	driver string
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB, driver string) *SchemaValidator {
	return &SchemaValidator{db: db, driver: driver}
}

// RequiredTables maps each table to what it stores.
var RequiredTables = map[string]string{
	"accounts":          "Account directory",
	"children":          "Dependent profiles",
	"lesson_slides":     "Lesson slide catalog",
	"entitlements":      "Purchase/enrollment access records",
	"live_sessions":     "Session store",
	"live_participants": "Participant registry",
	"live_messages":     "Q&A message board",
}

// RequiredIndexes maps each index to the query it serves.
var RequiredIndexes = map[string]string{
	"idx_live_sessions_teacher":      "Teacher session listing",
	"idx_live_sessions_status":       "Active session warm-up",
	"idx_live_participants_session":  "Participant listing",
	"idx_live_messages_session_time": "Message board ordering",
	"idx_entitlements_child":         "Access resolution",
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist(ctx context.Context) error {
	for table, description := range RequiredTables {
		exists, err := v.tableExists(ctx, table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}
	return nil
}

// ValidateIndexes verifies that all performance indexes exist
func (v *SchemaValidator) ValidateIndexes(ctx context.Context) error {
	for index, purpose := range RequiredIndexes {
		exists, err := v.indexExists(ctx, index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}
	return nil
}

// Validate runs every check.
func (v *SchemaValidator) Validate(ctx context.Context) error {
	if err := v.ValidateTablesExist(ctx); err != nil {
		return err
	}
	return v.ValidateIndexes(ctx)
}

func (v *SchemaValidator) tableExists(ctx context.Context, tableName string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if v.driver == DriverPostgres {
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
	}
	return v.count(ctx, query, tableName)
}

func (v *SchemaValidator) indexExists(ctx context.Context, indexName string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?"
	if v.driver == DriverPostgres {
		query = "SELECT COUNT(*) FROM pg_indexes WHERE schemaname = current_schema() AND indexname = $1"
	}
	return v.count(ctx, query, indexName)
}

func (v *SchemaValidator) count(ctx context.Context, query, name string) (bool, error) {
	var count int
	if err := v.db.QueryRowContext(ctx, query, name).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
