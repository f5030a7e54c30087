package sqlite

import (
	"database/sql"
	"fmt"
)

// applyMigrations applies all database migrations in order.
//
// The tables deliberately carry no primary keys, uniqueness, or NOT NULL
// constraints: the store is a dumb durable backend, and all validation and
// consistency logic lives in the application layer. The integrity checker
// depends on being able to observe rows that violate the engine's
// invariants.
func applyMigrations(db *sql.DB) error {
	if err := createMigrationsTable(db); err != nil {
		return err
	}

	migrations := []struct {
		version int
		name    string
		sql     string
	}{
		{1, "create_rules_table", createRulesTable},
		{2, "create_usage_records_table", createUsageRecordsTable},
		{3, "create_indices", createIndices},
	}

	for _, m := range migrations {
		applied, err := isMigrationApplied(db, m.version)
		if err != nil {
			return fmt.Errorf("could not check migration %d: %w", m.version, err)
		}
		if applied {
			continue
		}

		if _, err := db.Exec(m.sql); err != nil {
			return fmt.Errorf("could not apply migration %d (%s): %w", m.version, m.name, err)
		}
		if err := recordMigration(db, m.version, m.name); err != nil {
			return fmt.Errorf("could not record migration %d: %w", m.version, err)
		}
	}

	return nil
}

// createMigrationsTable creates the migrations tracking table.
func createMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// isMigrationApplied checks whether a migration version has been applied.
func isMigrationApplied(db *sql.DB, version int) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// recordMigration records that a migration has been applied.
func recordMigration(db *sql.DB, version int, name string) error {
	_, err := db.Exec("INSERT INTO migrations (version, name) VALUES (?, ?)", version, name)
	return err
}

const createRulesTable = `
	CREATE TABLE IF NOT EXISTS rules (
		id TEXT,
		name TEXT,
		description TEXT,
		type TEXT,
		scope TEXT,
		chain_id TEXT,
		created_at TEXT,
		last_used_at TEXT,
		usage_count INTEGER,
		is_active INTEGER,
		is_archived INTEGER
	)
`

const createUsageRecordsTable = `
	CREATE TABLE IF NOT EXISTS usage_records (
		id TEXT,
		rule_id TEXT,
		chain_id TEXT,
		session_id TEXT,
		used_at TEXT,
		action_type TEXT,
		elapsed_time INTEGER,
		remaining_time INTEGER,
		rule_scope TEXT
	)
`

const createIndices = `
	CREATE INDEX IF NOT EXISTS idx_rules_id ON rules(id);
	CREATE INDEX IF NOT EXISTS idx_rules_chain_id ON rules(chain_id);
	CREATE INDEX IF NOT EXISTS idx_usage_records_rule_id ON usage_records(rule_id)
`
