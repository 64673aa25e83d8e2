package mazegen

import "github.com/mazeforge/mazeforge/internal/engine"

// distancesFrom computes BFS distances over carved passages.
func (g *Grid) distancesFrom(origin engine.Coord) map[engine.Coord]int {
	dist := map[engine.Coord]int{origin: 0}
	queue := []engine.Coord{origin}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, dir := range AllDirections() {
			if !g.Linked(cur.X, cur.Y, dir) {
				continue
			}
			nx, ny := g.Neighbor(cur.X, cur.Y, dir)
			next := engine.Coord{X: nx, Y: ny}
			if _, seen := dist[next]; seen {
				continue
			}
			dist[next] = dist[cur] + 1
			queue = append(queue, next)
		}
	}
	return dist
}

// pathBetween finds the shortest path from a to b by BFS, rebuilding the
// route from a came-from map.
func (g *Grid) pathBetween(a, b engine.Coord) ([]engine.Coord, error) {
	if a == b {
		return []engine.Coord{a}, nil
	}

	cameFrom := map[engine.Coord]engine.Coord{a: a}
	queue := []engine.Coord{a}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == b {
			break
		}

		for _, dir := range AllDirections() {
			if !g.Linked(cur.X, cur.Y, dir) {
				continue
			}
			nx, ny := g.Neighbor(cur.X, cur.Y, dir)
			next := engine.Coord{X: nx, Y: ny}
			if _, seen := cameFrom[next]; seen {
				continue
			}
			cameFrom[next] = cur
			queue = append(queue, next)
		}
	}

	if _, ok := cameFrom[b]; !ok {
		return nil, ErrNoPath
	}

	var path []engine.Coord
	for cur := b; ; cur = cameFrom[cur] {
		path = append(path, cur)
		if cur == a {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// farthestFrom returns the cell with the greatest BFS distance from
// origin. Ties break toward row-major order so the result is stable.
func (g *Grid) farthestFrom(origin engine.Coord) (engine.Coord, int) {
	dist := g.distancesFrom(origin)
	best := origin
	bestDist := 0

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := engine.Coord{X: x, Y: y}
			if d, ok := dist[c]; ok && d > bestDist {
				best = c
				bestDist = d
			}
		}
	}
	return best, bestDist
}
