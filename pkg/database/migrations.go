package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"path"
	"regexp"
	"sort"
)

// migrationName matches files such as 001_session_ledger.sql
var migrationName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.sql$`)

// Migration is one versioned SQL file
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// MigrationManager applies the ledger's SQL files in version order and records
// each one in schema_migrations
// ARCHITECTURAL DISCOVERY: The source is an fs.FS so the binary ships the
// embedded migrations package while tests hand in an fstest.MapFS
type MigrationManager struct {
	db     *sql.DB
	source fs.FS
}

// NewMigrationManager creates a manager reading *.sql files from the root of fsys
func NewMigrationManager(db *sql.DB, fsys fs.FS) *MigrationManager {
	return &MigrationManager{db: db, source: fsys}
}

// ApplyMigrations runs every pending migration, each in its own transaction
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.ensureVersionTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	pending, err := m.Pending()
	if err != nil {
		return err
	}

	for _, mig := range pending {
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", mig.Version, err)
		}
		log.Printf("Applied migration %s (%s)", mig.Version, mig.Description)
	}
	return nil
}

// Pending lists migrations not yet recorded, oldest version first
func (m *MigrationManager) Pending() ([]Migration, error) {
	all, err := m.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	applied, err := m.appliedVersions()
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}

	pending := all[:0]
	for _, mig := range all {
		if !applied[mig.Version] {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// ValidateSchema checks that the ledger table, its columns and its indexes are
// all in place after migrating
func (m *MigrationManager) ValidateSchema() error {
	v := NewSchemaValidator(m.db)
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}

func (m *MigrationManager) ensureVersionTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// load reads and orders the migration files
// FUNCTIONAL DISCOVERY: A *.sql file with a malformed name or a reused version
// fails the whole load rather than being skipped or applied out of order
func (m *MigrationManager) load() ([]Migration, error) {
	entries, err := fs.ReadDir(m.source, ".")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]string)
	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, fmt.Errorf("migration file %q is not named <version>_<description>.sql", entry.Name())
		}
		version := match[1]
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %s used by both %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		body, err := fs.ReadFile(m.source, entry.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Version: version, Description: match[2], SQL: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// apply runs one migration and records it in the same transaction, so a
// failing file leaves no version row behind
func (m *MigrationManager) apply(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(mig.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		mig.Version, mig.Description,
	); err != nil {
		return err
	}
	return tx.Commit()
}
