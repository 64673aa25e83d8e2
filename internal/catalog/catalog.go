// Package catalog holds the generation vocabulary: shape parameter
// schemas, the algorithm registry, exit configurations, and named seed
// presets. The batch pipeline validates every configuration against it.
package catalog

import (
	"errors"
	"fmt"

	"github.com/mazeforge/mazeforge/internal/engine"
)

var (
	ErrUnknownShape      = errors.New("catalog: unknown shape")
	ErrUnknownAlgorithm  = errors.New("catalog: unknown algorithm")
	ErrUnknownExitConfig = errors.New("catalog: unknown exit configuration")
	ErrAlgorithmShape    = errors.New("catalog: algorithm does not support shape")
	ErrSizeOutOfRange    = errors.New("catalog: size value out of range")
)

// SizeParam is one size parameter of a shape schema. Declaration order of
// a shape's params fixes the order size values appear in artifact names.
type SizeParam struct {
	Name    string `yaml:"name" json:"name"`
	Min     int    `yaml:"min" json:"min"`
	Max     int    `yaml:"max" json:"max"`
	Initial int    `yaml:"initial" json:"initial"`
}

// Shape describes one grid shape offered for generation.
type Shape struct {
	ID               string      `yaml:"id" json:"id"`
	Display          string      `yaml:"display" json:"display"`
	DefaultAlgorithm string      `yaml:"default_algorithm" json:"defaultAlgorithm"`
	Params           []SizeParam `yaml:"params" json:"params"`
}

// Algorithm describes one maze algorithm and the shapes it can carve.
type Algorithm struct {
	ID          string   `yaml:"id" json:"id"`
	Display     string   `yaml:"display" json:"display"`
	Description string   `yaml:"description" json:"description"`
	Shapes      []string `yaml:"shapes" json:"shapes"`
}

// SupportsShape reports whether the algorithm can run on the given shape.
func (a Algorithm) SupportsShape(shapeID string) bool {
	for _, s := range a.Shapes {
		if s == shapeID {
			return true
		}
	}
	return false
}

// ExitConfig describes one entrance/exit placement strategy.
type ExitConfig struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`
}

// Catalog is an immutable registry of shapes, algorithms, exit
// configurations, and seed presets.
type Catalog struct {
	shapes     []Shape
	algorithms []Algorithm
	exits      []ExitConfig
	presets    map[string]string
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{
		shapes: []Shape{
			{
				ID:               "rectangle",
				Display:          "Rectangle",
				DefaultAlgorithm: "backtracker",
				Params: []SizeParam{
					{Name: "width", Min: 5, Max: 100, Initial: 20},
					{Name: "height", Min: 5, Max: 100, Initial: 15},
				},
			},
			{
				ID:               "square",
				Display:          "Square",
				DefaultAlgorithm: "backtracker",
				Params: []SizeParam{
					{Name: "size", Min: 5, Max: 80, Initial: 20},
				},
			},
			{
				ID:               "cross",
				Display:          "Cross",
				DefaultAlgorithm: "huntandkill",
				Params: []SizeParam{
					{Name: "size", Min: 9, Max: 75, Initial: 21},
				},
			},
			{
				ID:               "diamond",
				Display:          "Diamond",
				DefaultAlgorithm: "prim",
				Params: []SizeParam{
					{Name: "size", Min: 5, Max: 75, Initial: 15},
				},
			},
		},
		algorithms: []Algorithm{
			{
				ID:          "backtracker",
				Display:     "Recursive Backtracker",
				Description: "Depth-first carving with backtracking. Produces long winding corridors.",
				Shapes:      []string{"rectangle", "square", "cross", "diamond"},
			},
			{
				ID:          "huntandkill",
				Display:     "Hunt and Kill",
				Description: "Random walk with scanning restarts. Fewer dead ends than backtracking.",
				Shapes:      []string{"rectangle", "square", "cross", "diamond"},
			},
			{
				ID:          "prim",
				Display:     "Prim's Algorithm",
				Description: "Frontier expansion from a random cell. Short branching passages.",
				Shapes:      []string{"rectangle", "square", "cross", "diamond"},
			},
			{
				ID:          "sidewinder",
				Display:     "Sidewinder",
				Description: "Row-by-row carving with occasional upward links. Needs a full rectangular grid.",
				Shapes:      []string{"rectangle", "square"},
			},
			{
				ID:          "binarytree",
				Display:     "Binary Tree",
				Description: "Each cell links up or right. Strong diagonal bias. Needs a full rectangular grid.",
				Shapes:      []string{"rectangle", "square"},
			},
		},
		exits: []ExitConfig{
			{ID: "none", Description: "No entrance or exit cells."},
			{ID: "corners", Description: "Entrance at the first enabled corner, exit at the opposite one."},
			{ID: "farthest", Description: "Entrance and exit at the two cells farthest apart."},
		},
		presets: map[string]string{
			"sample": "1,2,3,5,8,13",
			"primes": "2,3,5,7,11,13,17,19",
		},
	}
}

// Shapes returns all shapes in declaration order.
func (c *Catalog) Shapes() []Shape {
	return c.shapes
}

// Algorithms returns all algorithms in declaration order.
func (c *Catalog) Algorithms() []Algorithm {
	return c.algorithms
}

// ExitConfigs returns all exit configurations in declaration order.
func (c *Catalog) ExitConfigs() []ExitConfig {
	return c.exits
}

// Presets returns a copy of the named seed presets.
func (c *Catalog) Presets() map[string]string {
	out := make(map[string]string, len(c.presets))
	for k, v := range c.presets {
		out[k] = v
	}
	return out
}

// Shape looks up a shape by id.
func (c *Catalog) Shape(id string) (Shape, bool) {
	for _, s := range c.shapes {
		if s.ID == id {
			return s, true
		}
	}
	return Shape{}, false
}

// Algorithm looks up an algorithm by id.
func (c *Catalog) Algorithm(id string) (Algorithm, bool) {
	for _, a := range c.algorithms {
		if a.ID == id {
			return a, true
		}
	}
	return Algorithm{}, false
}

// ExitConfig looks up an exit configuration by id.
func (c *Catalog) ExitConfig(id string) (ExitConfig, bool) {
	for _, e := range c.exits {
		if e.ID == id {
			return e, true
		}
	}
	return ExitConfig{}, false
}

// Preset looks up a named seed preset blob.
func (c *Catalog) Preset(name string) (string, bool) {
	blob, ok := c.presets[name]
	return blob, ok
}

// SizeValues resolves a name→value size mapping against a shape's schema.
// Values come back in schema declaration order; missing parameters take the
// schema initial, out-of-range values are rejected.
func (c *Catalog) SizeValues(shapeID string, sizes map[string]int) ([]engine.SizeValue, error) {
	shape, ok := c.Shape(shapeID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownShape, shapeID)
	}

	vals := make([]engine.SizeValue, 0, len(shape.Params))
	for _, p := range shape.Params {
		v, ok := sizes[p.Name]
		if !ok {
			v = p.Initial
		}
		if v < p.Min || v > p.Max {
			return nil, fmt.Errorf("%w: %s must be between %d and %d, got %d",
				ErrSizeOutOfRange, p.Name, p.Min, p.Max, v)
		}
		vals = append(vals, engine.SizeValue{Name: p.Name, Value: v})
	}
	return vals, nil
}

// ResolveAlgorithm validates an algorithm choice for a shape. An empty id
// selects the shape's default algorithm.
func (c *Catalog) ResolveAlgorithm(shapeID, algorithmID string) (Algorithm, error) {
	shape, ok := c.Shape(shapeID)
	if !ok {
		return Algorithm{}, fmt.Errorf("%w: %q", ErrUnknownShape, shapeID)
	}

	id := algorithmID
	if id == "" {
		id = shape.DefaultAlgorithm
	}
	algo, ok := c.Algorithm(id)
	if !ok {
		return Algorithm{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, id)
	}
	if !algo.SupportsShape(shapeID) {
		return Algorithm{}, fmt.Errorf("%w: %s cannot carve %s", ErrAlgorithmShape, algo.ID, shapeID)
	}
	return algo, nil
}

// validate checks catalog consistency after a file load.
func (c *Catalog) validate() error {
	if len(c.shapes) == 0 {
		return fmt.Errorf("catalog has no shapes")
	}
	if len(c.exits) == 0 {
		return fmt.Errorf("catalog has no exit configurations")
	}

	shapeIDs := make(map[string]bool)
	for _, s := range c.shapes {
		if s.ID == "" {
			return fmt.Errorf("shape with empty id")
		}
		if shapeIDs[s.ID] {
			return fmt.Errorf("duplicate shape id %q", s.ID)
		}
		shapeIDs[s.ID] = true
		if len(s.Params) == 0 {
			return fmt.Errorf("shape %q has no size parameters", s.ID)
		}
		for _, p := range s.Params {
			if p.Min > p.Max {
				return fmt.Errorf("shape %q param %q has min %d > max %d", s.ID, p.Name, p.Min, p.Max)
			}
			if p.Initial < p.Min || p.Initial > p.Max {
				return fmt.Errorf("shape %q param %q initial %d outside [%d,%d]", s.ID, p.Name, p.Initial, p.Min, p.Max)
			}
		}
	}

	algoIDs := make(map[string]bool)
	for _, a := range c.algorithms {
		if a.ID == "" {
			return fmt.Errorf("algorithm with empty id")
		}
		if algoIDs[a.ID] {
			return fmt.Errorf("duplicate algorithm id %q", a.ID)
		}
		algoIDs[a.ID] = true
		for _, sid := range a.Shapes {
			if !shapeIDs[sid] {
				return fmt.Errorf("algorithm %q references unknown shape %q", a.ID, sid)
			}
		}
	}

	for _, s := range c.shapes {
		if !algoIDs[s.DefaultAlgorithm] {
			return fmt.Errorf("shape %q default algorithm %q not in catalog", s.ID, s.DefaultAlgorithm)
		}
		algo, _ := c.Algorithm(s.DefaultAlgorithm)
		if !algo.SupportsShape(s.ID) {
			return fmt.Errorf("shape %q default algorithm %q does not support it", s.ID, s.DefaultAlgorithm)
		}
	}

	return nil
}
