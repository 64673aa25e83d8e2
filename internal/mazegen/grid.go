// Package mazegen is the built-in maze engine: orthogonal grids with
// shape masks, a set of carving algorithms, BFS path and distance
// queries, and an SVG renderer. It satisfies the engine contract and is
// fully deterministic for a given seed.
package mazegen

import (
	"math/rand"

	"github.com/mazeforge/mazeforge/internal/engine"
)

// Direction represents a cardinal direction
type Direction int

const (
	North Direction = iota
	South
	East
	West
)

func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	}
	return North
}

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case South:
		return "south"
	case East:
		return "east"
	case West:
		return "west"
	}
	return "unknown"
}

// AllDirections returns all four cardinal directions
func AllDirections() []Direction {
	return []Direction{North, South, East, West}
}

// Cell is a single grid cell. Disabled cells sit outside the shape mask
// and never take part in carving.
type Cell struct {
	X, Y    int
	Enabled bool
	Visited bool
	Walls   map[Direction]bool // true = wall exists
}

// Grid is a rectangular lattice of cells, some of which may be disabled
// by a shape mask.
type Grid struct {
	Width, Height int
	Cells         [][]*Cell
	enabledCount  int
}

// NewGrid creates a grid with every wall present. The mask decides which
// cells participate; a nil mask enables all of them.
func NewGrid(width, height int, mask func(x, y int) bool) *Grid {
	g := &Grid{
		Width:  width,
		Height: height,
		Cells:  make([][]*Cell, height),
	}

	for y := 0; y < height; y++ {
		g.Cells[y] = make([]*Cell, width)
		for x := 0; x < width; x++ {
			enabled := mask == nil || mask(x, y)
			g.Cells[y][x] = &Cell{
				X:       x,
				Y:       y,
				Enabled: enabled,
				Walls: map[Direction]bool{
					North: true,
					South: true,
					East:  true,
					West:  true,
				},
			}
			if enabled {
				g.enabledCount++
			}
		}
	}

	return g
}

// InBounds checks if coordinates are within the grid
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.Width && y >= 0 && y < g.Height
}

// CellAt returns the cell at (x, y), or nil when out of bounds.
func (g *Grid) CellAt(x, y int) *Cell {
	if !g.InBounds(x, y) {
		return nil
	}
	return g.Cells[y][x]
}

// EnabledAt reports whether (x, y) is an in-bounds enabled cell.
func (g *Grid) EnabledAt(x, y int) bool {
	c := g.CellAt(x, y)
	return c != nil && c.Enabled
}

// EnabledCount returns the number of cells inside the shape mask.
func (g *Grid) EnabledCount() int {
	return g.enabledCount
}

// Neighbor returns the coordinates of the neighbor in the given direction
func (g *Grid) Neighbor(x, y int, dir Direction) (int, int) {
	switch dir {
	case North:
		return x, y - 1
	case South:
		return x, y + 1
	case East:
		return x + 1, y
	case West:
		return x - 1, y
	}
	return x, y
}

// Carve removes the wall between (x, y) and its neighbor in dir.
// Both cells must be enabled.
func (g *Grid) Carve(x, y int, dir Direction) {
	nx, ny := g.Neighbor(x, y, dir)
	if !g.EnabledAt(x, y) || !g.EnabledAt(nx, ny) {
		return
	}
	g.Cells[y][x].Walls[dir] = false
	g.Cells[ny][nx].Walls[dir.Opposite()] = false
}

// Linked reports whether (x, y) has an open passage in dir.
func (g *Grid) Linked(x, y int, dir Direction) bool {
	c := g.CellAt(x, y)
	if c == nil || !c.Enabled {
		return false
	}
	nx, ny := g.Neighbor(x, y, dir)
	return !c.Walls[dir] && g.EnabledAt(nx, ny)
}

// LinkCount returns the number of open passages, counting each shared
// passage once. A perfect maze over n enabled cells has exactly n-1.
func (g *Grid) LinkCount() int {
	count := 0
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if g.Linked(x, y, South) {
				count++
			}
			if g.Linked(x, y, East) {
				count++
			}
		}
	}
	return count
}

// FirstEnabled returns the first enabled cell in row-major order.
func (g *Grid) FirstEnabled() (engine.Coord, bool) {
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if g.Cells[y][x].Enabled {
				return engine.Coord{X: x, Y: y}, true
			}
		}
	}
	return engine.Coord{}, false
}

// LastEnabled returns the last enabled cell in row-major order.
func (g *Grid) LastEnabled() (engine.Coord, bool) {
	for y := g.Height - 1; y >= 0; y-- {
		for x := g.Width - 1; x >= 0; x-- {
			if g.Cells[y][x].Enabled {
				return engine.Coord{X: x, Y: y}, true
			}
		}
	}
	return engine.Coord{}, false
}

// randomEnabled picks a uniformly random enabled cell.
func (g *Grid) randomEnabled(rng *rand.Rand) engine.Coord {
	n := rng.Intn(g.enabledCount)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if !g.Cells[y][x].Enabled {
				continue
			}
			if n == 0 {
				return engine.Coord{X: x, Y: y}
			}
			n--
		}
	}
	// enabledCount > 0 is checked at construction
	return engine.Coord{}
}

// resetVisited clears the per-algorithm scratch flag.
func (g *Grid) resetVisited() {
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			g.Cells[y][x].Visited = false
		}
	}
}

// fullRectangle reports whether every cell of the lattice is enabled.
func (g *Grid) fullRectangle() bool {
	return g.enabledCount == g.Width*g.Height
}
