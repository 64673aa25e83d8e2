package batch

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/mazeforge/mazeforge/internal/artifact"
	"github.com/mazeforge/mazeforge/internal/engine"
	"github.com/mazeforge/mazeforge/internal/logger"
)

var (
	ErrRunInProgress    = errors.New("batch: generation already in progress")
	ErrNoArtifactKind   = errors.New("batch: no artifact kind selected")
	ErrSeedCount        = errors.New("batch: seed count out of bounds")
	ErrMissingEndpoints = errors.New("batch: maze has no start and end cells")
	ErrEngineFailure    = errors.New("batch: engine failure")
)

// State tracks where a runner is in its batch lifecycle.
type State int32

const (
	StateIdle State = iota
	StateValidating
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Config is the immutable per-run input. Sizes carries the shape's
// parameters in schema order; artifact names depend on that order.
type Config struct {
	Shape      string             `json:"shape"`
	Sizes      []engine.SizeValue `json:"sizes"`
	Algorithm  string             `json:"algorithm"`
	ExitConfig string             `json:"exitConfig"`
	Kinds      []artifact.Kind    `json:"kinds"`
}

// Error records one isolated per-seed failure.
type Error struct {
	Seed    int64  `json:"seed"`
	Message string `json:"message"`
}

// Result collects the artifacts and failures of one finished run.
type Result struct {
	Artifacts []artifact.Artifact `json:"artifacts"`
	Errors    []Error             `json:"errors"`
}

// Summary renders a human-readable run report: counts first, then one
// line per failed seed.
func (r *Result) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generated %d artifacts, %d errors", len(r.Artifacts), len(r.Errors))
	for _, e := range r.Errors {
		fmt.Fprintf(&sb, "\nseed %d: %s", e.Seed, e.Message)
	}
	return sb.String()
}

// Progress reports one completed step of a running batch.
type Progress struct {
	Seed           int64         `json:"seed"`
	SeedIndex      int           `json:"seedIndex"`
	SeedCount      int           `json:"seedCount"`
	Kind           artifact.Kind `json:"kind,omitempty"`
	CompletedSteps int           `json:"completedSteps"`
	TotalSteps     int           `json:"totalSteps"`
}

// Fraction is completed over total steps. It is non-decreasing across
// one run and reaches exactly 1 at the end, failures included.
func (p Progress) Fraction() float64 {
	if p.TotalSteps == 0 {
		return 0
	}
	return float64(p.CompletedSteps) / float64(p.TotalSteps)
}

// ProgressFunc receives progress events during Run. May be nil.
type ProgressFunc func(Progress)

// Runner drives one batch at a time against an engine factory.
type Runner struct {
	factory engine.Factory
	running atomic.Bool
	state   atomic.Int32
}

// NewRunner creates a runner backed by the given engine factory.
func NewRunner(factory engine.Factory) *Runner {
	return &Runner{factory: factory}
}

// State reports the runner's current lifecycle state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Run generates every requested artifact kind for every seed, in
// order. Seeds never run in parallel, and a failing seed is recorded
// and skipped rather than aborting the batch. A second Run while one
// is in flight returns ErrRunInProgress.
func (r *Runner) Run(config Config, seeds []int64, progress ProgressFunc) (*Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	r.state.Store(int32(StateValidating))
	kinds, err := orderedKinds(config.Kinds)
	if err != nil {
		r.state.Store(int32(StateIdle))
		return nil, err
	}
	if len(seeds) == 0 || len(seeds) > MaxSeeds {
		r.state.Store(int32(StateIdle))
		return nil, fmt.Errorf("%w: got %d seeds, want 1 to %d", ErrSeedCount, len(seeds), MaxSeeds)
	}

	r.state.Store(int32(StateRunning))
	logger.Infof("Starting batch: %d seeds, %d artifact kinds, shape=%s, algorithm=%s",
		len(seeds), len(kinds), config.Shape, config.Algorithm)

	totalSteps := len(seeds) * len(kinds)
	completed := 0
	result := &Result{}

	emit := func(seed int64, index int, kind artifact.Kind) {
		if progress == nil {
			return
		}
		progress(Progress{
			Seed:           seed,
			SeedIndex:      index,
			SeedCount:      len(seeds),
			Kind:           kind,
			CompletedSteps: completed,
			TotalSteps:     totalSteps,
		})
	}

	for i, seed := range seeds {
		produced, err := r.processSeed(config, kinds, seed, func(kind artifact.Kind, art artifact.Artifact) {
			result.Artifacts = append(result.Artifacts, art)
			completed++
			emit(seed, i, kind)
		})
		if err != nil {
			logger.Warningf("Seed %d failed: %v", seed, err)
			result.Errors = append(result.Errors, Error{Seed: seed, Message: err.Error()})
			// Settle the steps this seed will never produce so the
			// fraction still reaches 1.
			completed += len(kinds) - produced
			emit(seed, i, "")
		}
	}

	r.state.Store(int32(StateCompleted))
	logger.Infof("Batch complete: %d artifacts, %d errors", len(result.Artifacts), len(result.Errors))
	return result, nil
}

// processSeed derives every requested kind for one seed, reporting
// each artifact as it is produced. It returns how many artifacts were
// made so the caller can settle the step counter on failure.
func (r *Runner) processSeed(config Config, kinds []artifact.Kind, seed int64, onArtifact func(artifact.Kind, artifact.Artifact)) (int, error) {
	grid := engine.GridSpec{Shape: config.Shape, Sizes: config.Sizes}
	maze, err := r.factory.CreateMaze(grid, config.Algorithm, seed, config.ExitConfig)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEngineFailure, err)
	}
	if err := maze.RunToCompletion(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEngineFailure, err)
	}

	sizes := grid.SizeInts()
	for i, kind := range kinds {
		content, err := deriveArtifact(maze, kind)
		if err != nil {
			return i, err
		}
		onArtifact(kind, artifact.Artifact{
			Name:    artifact.Name(kind, config.Shape, sizes, seed),
			Content: content,
		})
	}
	return len(kinds), nil
}

// deriveArtifact renders one kind from the handle. Overlay state is
// handle-global, so solution and distance clear theirs on the way out
// even when the render fails.
func deriveArtifact(m engine.Maze, kind artifact.Kind) (string, error) {
	switch kind {
	case artifact.KindMaze:
		return renderToString(m)

	case artifact.KindSolution:
		start, end, err := findEndpoints(m)
		if err != nil {
			return "", err
		}
		defer m.ClearPathAndSolution()
		if err := m.FindPathBetween(start, end); err != nil {
			return "", fmt.Errorf("%w: %v", ErrEngineFailure, err)
		}
		return renderToString(m)

	case artifact.KindDistance:
		origin, ok := findStart(m)
		if !ok {
			origin = m.RandomCell()
		}
		defer m.ClearDistances()
		if err := m.FindDistancesFrom(origin); err != nil {
			return "", fmt.Errorf("%w: %v", ErrEngineFailure, err)
		}
		return renderToString(m)

	default:
		return "", fmt.Errorf("batch: unknown artifact kind %q", kind)
	}
}

func renderToString(m engine.Maze) (string, error) {
	var sb strings.Builder
	if err := m.Render(&sb); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineFailure, err)
	}
	return sb.String(), nil
}

// findEndpoints locates the start- and end-marked cells of a handle.
func findEndpoints(m engine.Maze) (start, end engine.Coord, err error) {
	var haveStart, haveEnd bool
	m.EachCell(func(c engine.Cell) {
		if c.Start && !haveStart {
			start, haveStart = c.Coord, true
		}
		if c.End && !haveEnd {
			end, haveEnd = c.Coord, true
		}
	})
	if !haveStart || !haveEnd {
		return engine.Coord{}, engine.Coord{}, ErrMissingEndpoints
	}
	return start, end, nil
}

func findStart(m engine.Maze) (engine.Coord, bool) {
	var start engine.Coord
	var ok bool
	m.EachCell(func(c engine.Cell) {
		if c.Start && !ok {
			start, ok = c.Coord, true
		}
	})
	return start, ok
}

// orderedKinds validates the requested set and returns it in the fixed
// maze, solution, distance order with duplicates dropped.
func orderedKinds(requested []artifact.Kind) ([]artifact.Kind, error) {
	want := make(map[artifact.Kind]bool, len(requested))
	for _, k := range requested {
		if !k.IsValid() {
			return nil, fmt.Errorf("batch: unknown artifact kind %q", k)
		}
		want[k] = true
	}

	var kinds []artifact.Kind
	for _, k := range artifact.Kinds {
		if want[k] {
			kinds = append(kinds, k)
		}
	}
	if len(kinds) == 0 {
		return nil, ErrNoArtifactKind
	}
	return kinds, nil
}
