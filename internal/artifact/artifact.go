// Package artifact defines the output unit of a generation batch and the
// naming convention batch consumers depend on.
package artifact

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies one renderable view of a generated maze.
type Kind string

const (
	// KindMaze is the bare maze structure.
	KindMaze Kind = "maze"

	// KindSolution is the maze with the shortest-path overlay.
	KindSolution Kind = "solution"

	// KindDistance is the maze with the distance-field overlay.
	KindDistance Kind = "distance"
)

// Kinds lists all artifact kinds in derivation order. Batches always
// produce requested kinds in this order.
var Kinds = []Kind{KindMaze, KindSolution, KindDistance}

// IsValid reports whether k is a known artifact kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindMaze, KindSolution, KindDistance:
		return true
	}
	return false
}

// Prefix returns the file-name prefix for the kind.
func (k Kind) Prefix() string {
	switch k {
	case KindSolution:
		return "Sol"
	case KindDistance:
		return "Dist"
	default:
		return "Map"
	}
}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("artifact: unknown kind %q", s)
	}
	return k, nil
}

// Artifact is one named, immutable piece of generated output. Content is
// always textual vector markup.
type Artifact struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Name derives the file name for one (kind, configuration, seed) triple:
//
//	<Prefix>_maze_<shape>_<size values joined by "_">_<seed>.svg
//
// Size values must arrive in the declaration order of the shape's parameter
// schema. The seed is always embedded, which makes names collision-free
// within a batch.
func Name(kind Kind, shape string, sizes []int, seed int64) string {
	parts := make([]string, 0, len(sizes))
	for _, v := range sizes {
		parts = append(parts, strconv.Itoa(v))
	}
	return fmt.Sprintf("%s_maze_%s_%s_%d.svg", kind.Prefix(), shape, strings.Join(parts, "_"), seed)
}
