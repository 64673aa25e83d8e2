package mazegen

import (
	"math/rand"

	"github.com/mazeforge/mazeforge/internal/engine"
)

type algorithmFunc func(g *Grid, rng *rand.Rand) error

type algorithmDef struct {
	carve algorithmFunc

	// needFullRect marks algorithms that assume every lattice cell is
	// enabled (row/column sweeps with no notion of a mask).
	needFullRect bool
}

var algorithms = map[string]algorithmDef{
	"backtracker": {carve: carveBacktracker},
	"huntandkill": {carve: carveHuntAndKill},
	"prim":        {carve: carvePrim},
	"sidewinder":  {carve: carveSidewinder, needFullRect: true},
	"binarytree":  {carve: carveBinaryTree, needFullRect: true},
}

// shuffledDirections returns directions in random order
func shuffledDirections(rng *rand.Rand) []Direction {
	dirs := AllDirections()
	rng.Shuffle(len(dirs), func(i, j int) {
		dirs[i], dirs[j] = dirs[j], dirs[i]
	})
	return dirs
}

// startCell picks the carve origin: the grid center when enabled,
// otherwise the first enabled cell.
func startCell(g *Grid) engine.Coord {
	cx, cy := g.Width/2, g.Height/2
	if g.EnabledAt(cx, cy) {
		return engine.Coord{X: cx, Y: cy}
	}
	c, _ := g.FirstEnabled()
	return c
}

// carveBacktracker runs the DFS recursive backtracker algorithm.
func carveBacktracker(g *Grid, rng *rand.Rand) error {
	start := startCell(g)
	carveFrom(g, rng, start.X, start.Y)

	if countVisited(g) != g.EnabledCount() {
		return ErrNotConnected
	}
	return nil
}

// carveFrom recursively carves passages using DFS
func carveFrom(g *Grid, rng *rand.Rand, x, y int) {
	cell := g.Cells[y][x]
	cell.Visited = true

	// Shuffle directions for randomness
	dirs := shuffledDirections(rng)

	for _, dir := range dirs {
		nx, ny := g.Neighbor(x, y, dir)
		if g.EnabledAt(nx, ny) && !g.Cells[ny][nx].Visited {
			g.Carve(x, y, dir)
			carveFrom(g, rng, nx, ny)
		}
	}
}

// carveHuntAndKill walks randomly into unvisited neighbors and, when
// cornered, scans for the first unvisited cell bordering the carved
// region to restart from.
func carveHuntAndKill(g *Grid, rng *rand.Rand) error {
	cur := startCell(g)
	g.Cells[cur.Y][cur.X].Visited = true
	remaining := g.EnabledCount() - 1

	for remaining > 0 {
		moved := false
		for _, dir := range shuffledDirections(rng) {
			nx, ny := g.Neighbor(cur.X, cur.Y, dir)
			if g.EnabledAt(nx, ny) && !g.Cells[ny][nx].Visited {
				g.Carve(cur.X, cur.Y, dir)
				g.Cells[ny][nx].Visited = true
				remaining--
				cur = engine.Coord{X: nx, Y: ny}
				moved = true
				break
			}
		}
		if moved {
			continue
		}

		// Hunt phase
		found := false
		for y := 0; y < g.Height && !found; y++ {
			for x := 0; x < g.Width && !found; x++ {
				cell := g.Cells[y][x]
				if !cell.Enabled || cell.Visited {
					continue
				}
				for _, dir := range AllDirections() {
					nx, ny := g.Neighbor(x, y, dir)
					if g.EnabledAt(nx, ny) && g.Cells[ny][nx].Visited {
						g.Carve(x, y, dir)
						cell.Visited = true
						remaining--
						cur = engine.Coord{X: x, Y: y}
						found = true
						break
					}
				}
			}
		}
		if !found {
			return ErrNotConnected
		}
	}
	return nil
}

// carvePrim grows a spanning tree from a random cell, carving a random
// frontier edge each step.
func carvePrim(g *Grid, rng *rand.Rand) error {
	type frontierEdge struct {
		x, y int
		dir  Direction
	}

	start := g.randomEnabled(rng)
	g.Cells[start.Y][start.X].Visited = true
	visited := 1

	var frontier []frontierEdge
	addEdges := func(x, y int) {
		for _, dir := range AllDirections() {
			nx, ny := g.Neighbor(x, y, dir)
			if g.EnabledAt(nx, ny) && !g.Cells[ny][nx].Visited {
				frontier = append(frontier, frontierEdge{x: x, y: y, dir: dir})
			}
		}
	}
	addEdges(start.X, start.Y)

	for len(frontier) > 0 {
		i := rng.Intn(len(frontier))
		edge := frontier[i]
		frontier[i] = frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		nx, ny := g.Neighbor(edge.x, edge.y, edge.dir)
		if g.Cells[ny][nx].Visited {
			continue
		}
		g.Carve(edge.x, edge.y, edge.dir)
		g.Cells[ny][nx].Visited = true
		visited++
		addEdges(nx, ny)
	}

	if visited != g.EnabledCount() {
		return ErrNotConnected
	}
	return nil
}

// carveSidewinder carves the top row into one corridor, then sweeps the
// remaining rows in runs that close with a northward link.
func carveSidewinder(g *Grid, rng *rand.Rand) error {
	for y := 0; y < g.Height; y++ {
		runStart := 0
		for x := 0; x < g.Width; x++ {
			if y == 0 {
				if x < g.Width-1 {
					g.Carve(x, y, East)
				}
				continue
			}
			atEastEdge := x == g.Width-1
			if atEastEdge || rng.Intn(2) == 0 {
				// Close the run with a northward link from a random member
				rx := runStart + rng.Intn(x-runStart+1)
				g.Carve(rx, y, North)
				runStart = x + 1
			} else {
				g.Carve(x, y, East)
			}
		}
	}
	return nil
}

// carveBinaryTree links every cell north or east, with the forced choice
// at the edges.
func carveBinaryTree(g *Grid, rng *rand.Rand) error {
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			canNorth := y > 0
			canEast := x < g.Width-1
			switch {
			case canNorth && canEast:
				if rng.Intn(2) == 0 {
					g.Carve(x, y, North)
				} else {
					g.Carve(x, y, East)
				}
			case canNorth:
				g.Carve(x, y, North)
			case canEast:
				g.Carve(x, y, East)
			}
		}
	}
	return nil
}

func countVisited(g *Grid) int {
	count := 0
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if g.Cells[y][x].Enabled && g.Cells[y][x].Visited {
				count++
			}
		}
	}
	return count
}
