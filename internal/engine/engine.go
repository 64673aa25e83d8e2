// Package engine defines the contract between the batch pipeline and a
// maze-generation engine. The orchestrator only ever sees these
// interfaces, so it can run against the built-in grid engine or a fake.
package engine

import "io"

// Coord addresses one cell on a maze grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Cell is the per-cell view exposed to callers iterating a maze.
// Start and End mark the entrance and exit cells when the maze was
// built with an exit configuration that places them.
type Cell struct {
	Coord Coord
	Start bool
	End   bool
}

// SizeValue is one named size parameter, e.g. {"width", 20}.
type SizeValue struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// GridSpec describes the grid a maze should be built on. Sizes carry the
// shape's parameters in schema declaration order; that order is load-bearing
// for artifact naming.
type GridSpec struct {
	Shape string
	Sizes []SizeValue
}

// SizeInts returns the bare size values in declaration order.
func (g GridSpec) SizeInts() []int {
	vals := make([]int, len(g.Sizes))
	for i, s := range g.Sizes {
		vals[i] = s.Value
	}
	return vals
}

// Factory constructs maze handles. One handle is created per seed and
// discarded after that seed's artifacts are derived.
type Factory interface {
	CreateMaze(grid GridSpec, algorithm string, seed int64, exitConfig string) (Maze, error)
}

// Maze is an opaque handle over one maze. Overlay state set by the path
// and distance queries is handle-global; callers must clear it before
// deriving another view from the same handle.
type Maze interface {
	// RunToCompletion runs the generation algorithm synchronously.
	// It must be called before any other query.
	RunToCompletion() error

	// EachCell visits every cell of the maze.
	EachCell(fn func(Cell))

	// FindPathBetween computes the shortest path between two cells and
	// stores it as the handle's path overlay.
	FindPathBetween(a, b Coord) error

	// ClearPathAndSolution removes the path overlay.
	ClearPathAndSolution()

	// FindDistancesFrom computes a distance field from the origin cell and
	// stores it as the handle's distance overlay.
	FindDistancesFrom(origin Coord) error

	// RandomCell returns a uniformly chosen enabled cell, drawn from the
	// handle's seeded generator so the choice is reproducible.
	RandomCell() Coord

	// ClearDistances removes the distance overlay.
	ClearDistances()

	// Render writes the maze, including any active overlay, as SVG markup.
	Render(w io.Writer) error
}
