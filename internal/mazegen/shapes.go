package mazegen

import (
	"fmt"

	"github.com/mazeforge/mazeforge/internal/engine"
)

// shapeBuilder turns ordered size values into grid dimensions and a mask.
type shapeBuilder func(sizes []engine.SizeValue) (width, height int, mask func(x, y int) bool, err error)

var shapes = map[string]shapeBuilder{
	"rectangle": buildRectangle,
	"square":    buildSquare,
	"cross":     buildCross,
	"diamond":   buildDiamond,
}

func sizeValue(sizes []engine.SizeValue, name string) (int, bool) {
	for _, s := range sizes {
		if s.Name == name {
			return s.Value, true
		}
	}
	return 0, false
}

func requireSize(sizes []engine.SizeValue, name string) (int, error) {
	v, ok := sizeValue(sizes, name)
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidSize, name)
	}
	if v < 2 {
		return 0, fmt.Errorf("%w: %s must be at least 2, got %d", ErrInvalidSize, name, v)
	}
	return v, nil
}

func buildRectangle(sizes []engine.SizeValue) (int, int, func(x, y int) bool, error) {
	width, err := requireSize(sizes, "width")
	if err != nil {
		return 0, 0, nil, err
	}
	height, err := requireSize(sizes, "height")
	if err != nil {
		return 0, 0, nil, err
	}
	return width, height, nil, nil
}

func buildSquare(sizes []engine.SizeValue) (int, int, func(x, y int) bool, error) {
	size, err := requireSize(sizes, "size")
	if err != nil {
		return 0, 0, nil, err
	}
	return size, size, nil, nil
}

// buildCross enables the middle third of rows and columns, forming a
// plus shape. The two bands overlap in the center, so the mask is
// always connected.
func buildCross(sizes []engine.SizeValue) (int, int, func(x, y int) bool, error) {
	size, err := requireSize(sizes, "size")
	if err != nil {
		return 0, 0, nil, err
	}
	if size < 3 {
		return 0, 0, nil, fmt.Errorf("%w: cross size must be at least 3, got %d", ErrInvalidSize, size)
	}
	lo := size / 3
	hi := size - size/3
	mask := func(x, y int) bool {
		return (x >= lo && x < hi) || (y >= lo && y < hi)
	}
	return size, size, mask, nil
}

// buildDiamond enables cells within Manhattan distance size/2 of the
// center. Convex, so always connected.
func buildDiamond(sizes []engine.SizeValue) (int, int, func(x, y int) bool, error) {
	size, err := requireSize(sizes, "size")
	if err != nil {
		return 0, 0, nil, err
	}
	c := size / 2
	mask := func(x, y int) bool {
		dx := x - c
		if dx < 0 {
			dx = -dx
		}
		dy := y - c
		if dy < 0 {
			dy = -dy
		}
		return dx+dy <= c
	}
	return size, size, mask, nil
}
