package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mazeforge/mazeforge/internal/engine"
)

// ErrRunNotFound is returned when a run lookup fails.
var ErrRunNotFound = errors.New("store: run not found")

// ErrRunExists is returned when saving a run whose id is already recorded.
var ErrRunExists = errors.New("store: run already recorded")

// Run is one recorded batch generation.
type Run struct {
	ID            string
	CreatedAt     time.Time
	Shape         string
	Sizes         []engine.SizeValue
	Algorithm     string
	ExitConfig    string
	SeedCount     int
	ArtifactCount int
	ErrorCount    int
	ArchiveName   string
}

// SaveRun records a finished batch. A missing id gets a fresh UUID and
// a zero CreatedAt gets the current time, both written back to run.
func (s *Store) SaveRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	sizes, err := json.Marshal(run.Sizes)
	if err != nil {
		return fmt.Errorf("failed to encode sizes: %w", err)
	}

	query := s.qb.Build(`INSERT INTO runs
		(id, created_at, shape, sizes, algorithm, exit_config, seed_count, artifact_count, error_count, archive_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.Exec(query,
		run.ID, run.CreatedAt.UTC().Format(time.RFC3339), run.Shape, string(sizes),
		run.Algorithm, run.ExitConfig, run.SeedCount, run.ArtifactCount, run.ErrorCount, run.ArchiveName)
	if err != nil {
		if s.dialect.IsDuplicateKeyError(err) {
			return ErrRunExists
		}
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// Run retrieves one recorded run by id.
func (s *Store) Run(id string) (*Run, error) {
	var run Run
	var created, sizes string

	query := s.qb.Build(`SELECT id, created_at, shape, sizes, algorithm, exit_config,
		seed_count, artifact_count, error_count, archive_name FROM runs WHERE id = ?`)
	err := s.db.QueryRow(query, id).Scan(&run.ID, &created, &run.Shape, &sizes,
		&run.Algorithm, &run.ExitConfig, &run.SeedCount, &run.ArtifactCount, &run.ErrorCount, &run.ArchiveName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if err := json.Unmarshal([]byte(sizes), &run.Sizes); err != nil {
		return nil, fmt.Errorf("failed to decode sizes: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339, created); err == nil {
		run.CreatedAt = ts
	}

	return &run, nil
}

// RecentRuns returns up to limit runs, newest first. A non-positive
// limit falls back to 20.
func (s *Store) RecentRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := s.qb.Build(`SELECT id, created_at, shape, sizes, algorithm, exit_config,
		seed_count, artifact_count, error_count, archive_name FROM runs
		ORDER BY created_at DESC, id LIMIT ?`)
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var created, sizes string

		if err := rows.Scan(&run.ID, &created, &run.Shape, &sizes,
			&run.Algorithm, &run.ExitConfig, &run.SeedCount, &run.ArtifactCount, &run.ErrorCount, &run.ArchiveName); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if err := json.Unmarshal([]byte(sizes), &run.Sizes); err != nil {
			return nil, fmt.Errorf("failed to decode sizes: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, created); err == nil {
			run.CreatedAt = ts
		}

		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// DeleteRun removes one recorded run.
func (s *Store) DeleteRun(id string) error {
	query := s.qb.Build("DELETE FROM runs WHERE id = ?")
	result, err := s.db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// TotalRuns returns the total number of recorded runs.
func (s *Store) TotalRuns() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}
