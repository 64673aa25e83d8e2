package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mazeforge/mazeforge/internal/artifact"
	"github.com/mazeforge/mazeforge/internal/engine"
)

// ErrNoSettings is returned when no settings row has been saved yet.
var ErrNoSettings = errors.New("store: no saved settings")

// Settings is the last-used generation configuration. A single row is
// kept and overwritten on every save.
type Settings struct {
	Shape      string
	Sizes      []engine.SizeValue
	Algorithm  string
	ExitConfig string
	Kinds      []artifact.Kind
	UpdatedAt  time.Time
}

// SaveSettings upserts the settings row. Sizes and kinds are stored as
// JSON blobs.
func (s *Store) SaveSettings(st Settings) error {
	sizes, err := json.Marshal(st.Sizes)
	if err != nil {
		return fmt.Errorf("failed to encode sizes: %w", err)
	}
	kinds, err := json.Marshal(st.Kinds)
	if err != nil {
		return fmt.Errorf("failed to encode kinds: %w", err)
	}

	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	query := s.qb.Build(`INSERT INTO settings (id, shape, sizes, algorithm, exit_config, kinds, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			shape = excluded.shape,
			sizes = excluded.sizes,
			algorithm = excluded.algorithm,
			exit_config = excluded.exit_config,
			kinds = excluded.kinds,
			updated_at = excluded.updated_at`)
	_, err = s.db.Exec(query, st.Shape, string(sizes), st.Algorithm, st.ExitConfig, string(kinds),
		updated.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// LastSettings loads the saved settings row.
func (s *Store) LastSettings() (*Settings, error) {
	var st Settings
	var sizes, kinds, updated string

	query := s.qb.Build("SELECT shape, sizes, algorithm, exit_config, kinds, updated_at FROM settings WHERE id = 1")
	err := s.db.QueryRow(query).Scan(&st.Shape, &sizes, &st.Algorithm, &st.ExitConfig, &kinds, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSettings
		}
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if err := json.Unmarshal([]byte(sizes), &st.Sizes); err != nil {
		return nil, fmt.Errorf("failed to decode sizes: %w", err)
	}
	if err := json.Unmarshal([]byte(kinds), &st.Kinds); err != nil {
		return nil, fmt.Errorf("failed to decode kinds: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339, updated); err == nil {
		st.UpdatedAt = ts
	}

	return &st, nil
}
