// migrate-to-postgres migrates data from SQLite to PostgreSQL.
//
// Usage:
//
//	go run ./cmd/migrate-to-postgres \
//	    -sqlite data/mazeforge.db \
//	    -pg-host localhost \
//	    -pg-port 5432 \
//	    -pg-user mazeforge \
//	    -pg-password mazeforge \
//	    -pg-database mazeforge
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	// Parse command-line flags
	sqlitePath := flag.String("sqlite", "data/mazeforge.db", "Path to SQLite database")
	pgHost := flag.String("pg-host", "localhost", "PostgreSQL host")
	pgPort := flag.Int("pg-port", 5432, "PostgreSQL port")
	pgUser := flag.String("pg-user", "mazeforge", "PostgreSQL user")
	pgPassword := flag.String("pg-password", "mazeforge", "PostgreSQL password")
	pgDatabase := flag.String("pg-database", "mazeforge", "PostgreSQL database name")
	pgSSLMode := flag.String("pg-sslmode", "disable", "PostgreSQL SSL mode")
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	flag.Parse()

	log.Println("SQLite to PostgreSQL Migration Tool")
	log.Println("====================================")

	// Open SQLite database
	log.Printf("Opening SQLite database: %s", *sqlitePath)
	sqliteDB, err := sql.Open("sqlite", *sqlitePath)
	if err != nil {
		log.Fatalf("Failed to open SQLite database: %v", err)
	}
	defer sqliteDB.Close()

	// Verify SQLite connection
	if err := sqliteDB.Ping(); err != nil {
		log.Fatalf("Failed to connect to SQLite database: %v", err)
	}

	// Build PostgreSQL connection string
	pgConnStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		*pgHost, *pgPort, *pgUser, *pgPassword, *pgDatabase, *pgSSLMode,
	)

	// Open PostgreSQL database
	log.Printf("Opening PostgreSQL database: %s@%s:%d/%s", *pgUser, *pgHost, *pgPort, *pgDatabase)
	pgDB, err := sql.Open("postgres", pgConnStr)
	if err != nil {
		log.Fatalf("Failed to open PostgreSQL database: %v", err)
	}
	defer pgDB.Close()

	// Verify PostgreSQL connection
	if err := pgDB.Ping(); err != nil {
		log.Fatalf("Failed to connect to PostgreSQL database: %v", err)
	}

	if *dryRun {
		log.Println("DRY RUN MODE - No changes will be made")
	}

	// Run migrations on PostgreSQL first
	log.Println("Ensuring PostgreSQL schema is ready...")
	if !*dryRun {
		if err := migratePostgres(pgDB); err != nil {
			log.Fatalf("Failed to migrate PostgreSQL schema: %v", err)
		}
	}

	// Migrate each table
	tables := []struct {
		name    string
		migrate func(*sql.DB, *sql.DB, bool) (int64, error)
	}{
		{"settings", migrateSettings},
		{"runs", migrateRuns},
	}

	var totalRows int64
	for _, t := range tables {
		log.Printf("Migrating table: %s", t.name)
		count, err := t.migrate(sqliteDB, pgDB, *dryRun)
		if err != nil {
			log.Fatalf("Failed to migrate %s: %v", t.name, err)
		}
		log.Printf("  Migrated %d rows", count)
		totalRows += count
	}

	log.Println("====================================")
	log.Printf("Migration complete! Total rows migrated: %d", totalRows)
	if *dryRun {
		log.Println("(DRY RUN - No actual changes were made)")
	}
}

// migratePostgres creates the schema. Timestamps stay RFC 3339 text,
// so the DDL matches the SQLite side statement for statement.
func migratePostgres(db *sql.DB) error {
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
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	return nil
}

func migrateSettings(sqlite, pg *sql.DB, dryRun bool) (int64, error) {
	var shape, sizes, algorithm, exitConfig, kinds, updatedAt string

	err := sqlite.QueryRow(`
		SELECT shape, sizes, algorithm, exit_config, kinds, updated_at
		FROM settings WHERE id = 1
	`).Scan(&shape, &sizes, &algorithm, &exitConfig, &kinds, &updatedAt)
	if err != nil {
		// No settings saved yet, or pre-settings database
		if err == sql.ErrNoRows || strings.Contains(err.Error(), "no such table") {
			return 0, nil
		}
		return 0, err
	}

	if dryRun {
		return 1, nil
	}

	// The settings row is a singleton, so an existing row on the
	// PostgreSQL side is simply overwritten.
	_, err = pg.Exec(`
		INSERT INTO settings (id, shape, sizes, algorithm, exit_config, kinds, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			shape = excluded.shape,
			sizes = excluded.sizes,
			algorithm = excluded.algorithm,
			exit_config = excluded.exit_config,
			kinds = excluded.kinds,
			updated_at = excluded.updated_at
	`, shape, sizes, algorithm, exitConfig, kinds, updatedAt)
	if err != nil {
		return 0, err
	}

	return 1, nil
}

func migrateRuns(sqlite, pg *sql.DB, dryRun bool) (int64, error) {
	rows, err := sqlite.Query(`
		SELECT id, created_at, shape, sizes, algorithm, exit_config,
		       seed_count, artifact_count, error_count, archive_name
		FROM runs
	`)
	if err != nil {
		// Table might not exist in older databases
		if strings.Contains(err.Error(), "no such table") {
			return 0, nil
		}
		return 0, err
	}
	defer rows.Close()

	var count int64
	for rows.Next() {
		var id, createdAt, shape, sizes, algorithm, exitConfig, archiveName string
		var seedCount, artifactCount, errorCount int

		if err := rows.Scan(&id, &createdAt, &shape, &sizes, &algorithm, &exitConfig,
			&seedCount, &artifactCount, &errorCount, &archiveName); err != nil {
			return count, err
		}

		if dryRun {
			count++
			continue
		}

		// Check if run already exists
		var existingID string
		err := pg.QueryRow(`SELECT id FROM runs WHERE id = $1`, id).Scan(&existingID)
		if err == nil {
			continue
		}

		_, err = pg.Exec(`
			INSERT INTO runs (id, created_at, shape, sizes, algorithm, exit_config,
			                  seed_count, artifact_count, error_count, archive_name)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, id, createdAt, shape, sizes, algorithm, exitConfig,
			seedCount, artifactCount, errorCount, archiveName)
		if err != nil {
			if !strings.Contains(err.Error(), "duplicate key") {
				return count, err
			}
		} else {
			count++
		}
	}

	return count, rows.Err()
}

func init() {
	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Migrates data from SQLite to PostgreSQL.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s -sqlite data/mazeforge.db -pg-host localhost -pg-user mazeforge -pg-password mazeforge -pg-database mazeforge\n", os.Args[0])
	}
}
