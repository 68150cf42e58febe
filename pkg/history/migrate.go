package history

import (
	"database/sql"
	"fmt"
	"sort"
)

// migration is one schema change, grounded on the teacher's
// pkg/database.Migration — adapted to ship its SQL embedded in Go rather
// than read from a migrations/*.sql directory, since this package has no
// equivalent directory of its own to glob.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create_tasks",
		SQL: `
			CREATE TABLE IF NOT EXISTS tasks (
				task_id    TEXT PRIMARY KEY,
				status     TEXT NOT NULL,
				answer     TEXT NOT NULL,
				success    INTEGER NOT NULL,
				artifacts  TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);
		`,
	},
}

// migrationRunner applies migrations exactly once, tracked in
// schema_migrations — the same tracking-table shape as the teacher's
// pkg/database.MigrationRunner.
type migrationRunner struct {
	db *sql.DB
}

func newMigrationRunner(db *sql.DB) *migrationRunner {
	return &migrationRunner{db: db}
}

func (mr *migrationRunner) run() error {
	if err := mr.createMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := mr.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	appliedSet := make(map[int]bool, len(applied))
	for _, v := range applied {
		appliedSet[v] = true
	}

	pending := append([]migration(nil), migrations...)
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, m := range pending {
		if appliedSet[m.Version] {
			continue
		}
		if err := mr.apply(m); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func (mr *migrationRunner) createMigrationsTable() error {
	_, err := mr.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

func (mr *migrationRunner) appliedVersions() ([]int, error) {
	rows, err := mr.db.Query(`SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (mr *migrationRunner) apply(m migration) error {
	tx, err := mr.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(m.SQL); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
