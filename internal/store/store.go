// Package store persists the last-used generation settings and the
// history of batch runs. SQLite is the default backend; PostgreSQL is
// supported through the same dialect layer.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Store wraps the database connection and provides persistence
// operations for settings and run history.
type Store struct {
	db      *sql.DB
	dialect Dialect
	qb      *QueryBuilder
}

// Open opens the database described by cfg and runs migrations.
func Open(cfg Config) (*Store, error) {
	dialect := NewDialect(DialectType(cfg.Driver))

	var dsn string
	if _, ok := dialect.(*PostgresDialect); ok {
		dsn = buildPostgresDSN(cfg.Postgres)
	} else {
		// Ensure directory exists
		dir := filepath.Dir(cfg.SQLitePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = cfg.SQLitePath
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range dialect.InitStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	if _, ok := dialect.(*PostgresDialect); ok {
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
	}

	s := &Store{db: db, dialect: dialect, qb: NewQueryBuilder(dialect)}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the schema if it doesn't exist. Timestamps are
// stored as RFC 3339 text so both backends order them the same way.
func (s *Store) migrate() error {
	migrations := []string{
		// Last-used settings, a single upserted row
		`CREATE TABLE IF NOT EXISTS settings (
			id INTEGER PRIMARY KEY,
			shape TEXT NOT NULL,
			sizes TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			exit_config TEXT NOT NULL,
			kinds TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		// Run history
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			shape TEXT NOT NULL,
			sizes TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			exit_config TEXT NOT NULL,
			seed_count INTEGER NOT NULL,
			artifact_count INTEGER NOT NULL,
			error_count INTEGER NOT NULL,
			archive_name TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	return nil
}

// DB returns the underlying sql.DB for advanced operations.
func (s *Store) DB() *sql.DB {
	return s.db
}
