package mazegen

import (
	"errors"
	"fmt"
	"io"
	"math/rand"

	"github.com/mazeforge/mazeforge/internal/engine"
)

var (
	ErrUnknownShape      = errors.New("mazegen: unknown shape")
	ErrUnknownAlgorithm  = errors.New("mazegen: unknown algorithm")
	ErrUnknownExitConfig = errors.New("mazegen: unknown exit configuration")
	ErrInvalidSize       = errors.New("mazegen: invalid size")
	ErrAlgorithmShape    = errors.New("mazegen: algorithm requires a full rectangular grid")
	ErrNotConnected      = errors.New("mazegen: shape mask is not connected")
	ErrNotGenerated      = errors.New("mazegen: maze not generated yet")
	ErrNoPath            = errors.New("mazegen: no path between cells")
	ErrOutsideMaze       = errors.New("mazegen: cell outside the maze")
)

// Engine implements the engine factory contract with the built-in grid
// generator.
type Engine struct{}

// New creates the built-in engine.
func New() *Engine {
	return &Engine{}
}

// CreateMaze builds an ungenerated maze handle for one seed. All random
// choices flow from the seed, so equal inputs produce equal mazes.
func (e *Engine) CreateMaze(grid engine.GridSpec, algorithm string, seed int64, exitConfig string) (engine.Maze, error) {
	builder, ok := shapes[grid.Shape]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownShape, grid.Shape)
	}
	width, height, mask, err := builder(grid.Sizes)
	if err != nil {
		return nil, err
	}

	algo, ok := algorithms[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}

	switch exitConfig {
	case "none", "corners", "farthest":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExitConfig, exitConfig)
	}

	g := NewGrid(width, height, mask)
	if g.EnabledCount() == 0 {
		return nil, fmt.Errorf("%w: shape has no cells", ErrInvalidSize)
	}
	if algo.needFullRect && !g.fullRectangle() {
		return nil, fmt.Errorf("%w: %s", ErrAlgorithmShape, algorithm)
	}

	return &Maze{
		grid:       g,
		algo:       algo,
		algorithm:  algorithm,
		exitConfig: exitConfig,
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

// Maze is one handle over a grid plus its overlay state. Overlays are
// handle-global: a stored path or distance field stays visible to Render
// until explicitly cleared.
type Maze struct {
	grid       *Grid
	algo       algorithmDef
	algorithm  string
	exitConfig string
	rng        *rand.Rand

	generated bool
	start     *engine.Coord
	end       *engine.Coord
	path      []engine.Coord
	distances map[engine.Coord]int
}

// RunToCompletion carves the maze and places the exit cells. Calling it
// again on a generated maze is a no-op.
func (m *Maze) RunToCompletion() error {
	if m.generated {
		return nil
	}

	if err := m.algo.carve(m.grid, m.rng); err != nil {
		return err
	}
	m.grid.resetVisited()

	switch m.exitConfig {
	case "corners":
		a, _ := m.grid.FirstEnabled()
		b, _ := m.grid.LastEnabled()
		m.start, m.end = &a, &b
	case "farthest":
		// Double BFS: the farthest cell from anywhere, then the cell
		// farthest from that one.
		first, _ := m.grid.FirstEnabled()
		a, _ := m.grid.farthestFrom(first)
		b, _ := m.grid.farthestFrom(a)
		m.start, m.end = &a, &b
	}

	m.generated = true
	return nil
}

// EachCell visits every enabled cell in row-major order.
func (m *Maze) EachCell(fn func(engine.Cell)) {
	for y := 0; y < m.grid.Height; y++ {
		for x := 0; x < m.grid.Width; x++ {
			c := m.grid.Cells[y][x]
			if !c.Enabled {
				continue
			}
			coord := engine.Coord{X: x, Y: y}
			fn(engine.Cell{
				Coord: coord,
				Start: m.start != nil && *m.start == coord,
				End:   m.end != nil && *m.end == coord,
			})
		}
	}
}

// FindPathBetween computes the shortest path between two cells and keeps
// it as the path overlay.
func (m *Maze) FindPathBetween(a, b engine.Coord) error {
	if !m.generated {
		return ErrNotGenerated
	}
	if err := m.checkCell(a); err != nil {
		return err
	}
	if err := m.checkCell(b); err != nil {
		return err
	}

	path, err := m.grid.pathBetween(a, b)
	if err != nil {
		return err
	}
	m.path = path
	return nil
}

// ClearPathAndSolution removes the path overlay.
func (m *Maze) ClearPathAndSolution() {
	m.path = nil
}

// FindDistancesFrom computes a BFS distance field from origin and keeps
// it as the distance overlay.
func (m *Maze) FindDistancesFrom(origin engine.Coord) error {
	if !m.generated {
		return ErrNotGenerated
	}
	if err := m.checkCell(origin); err != nil {
		return err
	}
	m.distances = m.grid.distancesFrom(origin)
	return nil
}

// RandomCell draws a uniformly random enabled cell from the maze's own
// seeded generator.
func (m *Maze) RandomCell() engine.Coord {
	return m.grid.randomEnabled(m.rng)
}

// ClearDistances removes the distance overlay.
func (m *Maze) ClearDistances() {
	m.distances = nil
}

// Render writes the maze and any active overlay as SVG markup.
func (m *Maze) Render(w io.Writer) error {
	return renderSVG(w, m)
}

func (m *Maze) checkCell(c engine.Coord) error {
	if !m.grid.EnabledAt(c.X, c.Y) {
		return fmt.Errorf("%w: (%d,%d)", ErrOutsideMaze, c.X, c.Y)
	}
	return nil
}
