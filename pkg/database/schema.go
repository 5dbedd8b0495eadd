package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables testing
// and deployment verification without coupling to migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
// FUNCTIONAL DISCOVERY: Explicit table validation prevents runtime errors
// from missing tables during ledger writes
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"session_ledger":    "Pairing history",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
// TECHNICAL DISCOVERY: Column validation ensures type compatibility between
// types.SessionRecord and the stored rows
func (v *SchemaValidator) ValidateTableStructure() error {
	ledgerColumns := map[string]string{
		"id":              "TEXT",
		"room_id":         "TEXT",
		"expert_conn":     "TEXT",
		"expert_identity": "TEXT",
		"user_conn":       "TEXT",
		"user_identity":   "TEXT",
		"started_at":      "DATETIME",
		"ended_at":        "DATETIME",
		"end_reason":      "TEXT",
	}

	if err := v.validateColumns("session_ledger", ledgerColumns); err != nil {
		return fmt.Errorf("session_ledger table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that all performance indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_ledger_room_started": "Per-room history listing",
		"idx_ledger_open":         "Startup sweep of unterminated rows",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies that database constraints are properly enforced
// ARCHITECTURAL DISCOVERY: Constraint validation ensures data integrity rules
// are enforced at the database level
func (v *SchemaValidator) ValidateConstraints() error {
	insert := `
		INSERT INTO session_ledger (id, room_id, expert_conn, expert_identity, user_conn, user_identity, started_at, end_reason)
		VALUES (?, 'check', 'e', 'Expert', 'u', 'User', CURRENT_TIMESTAMP, ?)
	`
	defer func() {
		_, _ = v.db.Exec("DELETE FROM session_ledger WHERE id IN ('constraint-check-a', 'constraint-check-b')")
	}()

	// Test check constraint for end reasons
	if _, err := v.db.Exec(insert, "constraint-check-a", "not-a-reason"); err == nil {
		return fmt.Errorf("check constraint not enforced: end_reason validation")
	}

	// Test primary key uniqueness
	if _, err := v.db.Exec(insert, "constraint-check-b", nil); err != nil {
		return fmt.Errorf("failed to insert check row: %w", err)
	}
	if _, err := v.db.Exec(insert, "constraint-check-b", nil); err == nil {
		return fmt.Errorf("primary key not enforced: session_ledger.id")
	}

	return nil
}

func (v *SchemaValidator) tableExists(name string) (bool, error) {
	return v.objectExists("table", name)
}

func (v *SchemaValidator) indexExists(name string) (bool, error) {
	return v.objectExists("index", name)
}

// objectExists looks a table or index up in sqlite_master
func (v *SchemaValidator) objectExists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}

		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(foundColumns) == 0 {
		return fmt.Errorf("table %s not found", tableName)
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return nil
}
