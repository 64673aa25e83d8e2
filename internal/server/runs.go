package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mazeforge/mazeforge/internal/archive"
	"github.com/mazeforge/mazeforge/internal/artifact"
	"github.com/mazeforge/mazeforge/internal/batch"
	"github.com/mazeforge/mazeforge/internal/catalog"
	"github.com/mazeforge/mazeforge/internal/logger"
	"github.com/mazeforge/mazeforge/internal/store"
)

// maxRunEntries bounds the in-memory run registry. Finished runs past
// the bound are evicted oldest-first; their history lives in the store.
const maxRunEntries = 20

// runEntry tracks one batch run from acceptance to download.
type runEntry struct {
	id        string
	startedAt time.Time
	config    batch.Config
	algorithm catalog.Algorithm
	seeds     []int64

	mu          sync.RWMutex
	progress    batch.Progress
	result      *batch.Result
	finishedAt  time.Time
	archiveName string
	downloads   []archive.Download
	done        chan struct{}
}

func newRunEntry(cfg batch.Config, algo catalog.Algorithm, seeds []int64) *runEntry {
	return &runEntry{
		id:        uuid.NewString(),
		startedAt: time.Now().UTC(),
		config:    cfg,
		algorithm: algo,
		seeds:     seeds,
		done:      make(chan struct{}),
	}
}

func (e *runEntry) setProgress(p batch.Progress) {
	e.mu.Lock()
	e.progress = p
	e.mu.Unlock()
}

func (e *runEntry) finished() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// artifactByName returns one generated artifact of a finished run.
func (e *runEntry) artifactByName(name string) (artifact.Artifact, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.result == nil {
		return artifact.Artifact{}, false
	}
	for _, a := range e.result.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return artifact.Artifact{}, false
}

// buildArchive packages the run's artifacts, caching the result so
// repeated downloads reuse the built archive. A failed attempt caches
// nothing, which is what makes the download retryable.
func (e *runEntry) buildArchive(p *archive.Packager) ([]archive.Download, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.downloads != nil {
		return e.downloads, nil
	}
	if e.result == nil {
		return nil, fmt.Errorf("%w: run has no result", archive.ErrPackaging)
	}

	downloads, err := p.Package(e.archiveName, e.result.Artifacts, e.manifestLocked())
	if err != nil {
		return nil, err
	}
	e.downloads = downloads
	return downloads, nil
}

// manifestLocked assembles the archive manifest. Callers hold e.mu.
func (e *runEntry) manifestLocked() *archive.Manifest {
	names := make([]string, len(e.result.Artifacts))
	for i, a := range e.result.Artifacts {
		names[i] = a.Name
	}
	var errs []string
	for _, re := range e.result.Errors {
		errs = append(errs, fmt.Sprintf("seed %d: %s", re.Seed, re.Message))
	}
	return &archive.Manifest{
		GeneratedAt: e.finishedAt.Format(time.RFC3339),
		Shape:       e.config.Shape,
		Sizes:       sizeInts(e.config),
		Algorithm:   e.config.Algorithm,
		ExitConfig:  e.config.ExitConfig,
		SeedCount:   len(e.seeds),
		Artifacts:   names,
		Errors:      errs,
	}
}

func sizeInts(cfg batch.Config) []int {
	vals := make([]int, len(cfg.Sizes))
	for i, s := range cfg.Sizes {
		vals[i] = s.Value
	}
	return vals
}

// registerRun adds an entry to the registry, evicting the oldest
// finished entries when the registry is full.
func (s *Server) registerRun(entry *runEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.runs) >= maxRunEntries {
		var oldest *runEntry
		for _, e := range s.runs {
			if !e.finished() {
				continue
			}
			if oldest == nil || e.startedAt.Before(oldest.startedAt) {
				oldest = e
			}
		}
		if oldest == nil {
			break
		}
		delete(s.runs, oldest.id)
	}
	s.runs[entry.id] = entry
}

func (s *Server) dropRun(id string) {
	s.mu.Lock()
	delete(s.runs, id)
	s.mu.Unlock()
}

func (s *Server) runByID(id string) (*runEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.runs[id]
	return entry, ok
}

// recentEntries returns finished registry entries newest-first. Used
// for run history when no store is configured.
func (s *Server) recentEntries(limit int) []*runEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*runEntry
	for _, e := range s.runs {
		if e.finished() {
			entries = append(entries, e)
		}
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].startedAt.After(entries[j-1].startedAt); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// launchRun executes the batch in a background goroutine. The returned
// started channel closes on the first progress event; errc delivers
// the runner's verdict when it refuses or finishes the run. Exactly one
// of the two fires first, which is what lets the start handler answer
// synchronously.
func (s *Server) launchRun(entry *runEntry) (<-chan struct{}, <-chan error) {
	started := make(chan struct{})
	errc := make(chan error, 1)
	var once sync.Once

	progressFn := func(p batch.Progress) {
		once.Do(func() { close(started) })
		entry.setProgress(p)
		s.hub.broadcast(progressEvent{
			Type:           "progress",
			RunID:          entry.id,
			Seed:           p.Seed,
			Kind:           string(p.Kind),
			CompletedSteps: p.CompletedSteps,
			TotalSteps:     p.TotalSteps,
			Fraction:       p.Fraction(),
		})
	}

	go func() {
		result, err := s.runner.Run(entry.config, entry.seeds, progressFn)
		if err != nil {
			errc <- err
			return
		}
		s.finishRun(entry, result)
		errc <- nil
	}()

	return started, errc
}

// finishRun records the result, announces it, and persists history.
func (s *Server) finishRun(entry *runEntry, result *batch.Result) {
	finishedAt := time.Now().UTC()
	name := archive.ArchiveName(entry.algorithm.Display, entry.config.Shape,
		sizeInts(entry.config), finishedAt, archive.ZipExt)

	entry.mu.Lock()
	entry.result = result
	entry.finishedAt = finishedAt
	entry.archiveName = name
	entry.mu.Unlock()

	// History must be durable before waiters see the run as finished.
	s.persistRun(entry, result)
	close(entry.done)

	s.hub.broadcast(summaryEvent{
		Type:          "summary",
		RunID:         entry.id,
		ArtifactCount: len(result.Artifacts),
		ErrorCount:    len(result.Errors),
		Summary:       result.Summary(),
		ArchiveName:   name,
	})
}

// persistRun saves the run record and last-used settings. Store
// failures are logged and never fail the run.
func (s *Server) persistRun(entry *runEntry, result *batch.Result) {
	if s.store == nil {
		return
	}

	err := s.store.SaveRun(&store.Run{
		ID:            entry.id,
		CreatedAt:     entry.startedAt,
		Shape:         entry.config.Shape,
		Sizes:         entry.config.Sizes,
		Algorithm:     entry.config.Algorithm,
		ExitConfig:    entry.config.ExitConfig,
		SeedCount:     len(entry.seeds),
		ArtifactCount: len(result.Artifacts),
		ErrorCount:    len(result.Errors),
		ArchiveName:   entry.archiveName,
	})
	if err != nil {
		logger.Warningf("Failed to record run %s: %v", entry.id, err)
	}

	err = s.store.SaveSettings(store.Settings{
		Shape:      entry.config.Shape,
		Sizes:      entry.config.Sizes,
		Algorithm:  entry.config.Algorithm,
		ExitConfig: entry.config.ExitConfig,
		Kinds:      entry.config.Kinds,
	})
	if err != nil {
		logger.Warningf("Failed to save settings: %v", err)
	}
}
