package mazegen

import (
	"fmt"
	"io"
	"strings"

	"github.com/mazeforge/mazeforge/internal/engine"
)

const (
	cellSize  = 20
	svgMargin = 10
)

// Rendering palette. Distance fills interpolate between heatLow and
// heatHigh; everything else is flat.
const (
	colorBackground = "#FFFFFF"
	colorCell       = "#FAFAFA"
	colorWall       = "#212121"
	colorPath       = "#2196F3"
	colorStart      = "#4CAF50"
	colorEnd        = "#F44336"
)

// renderSVG writes the grid, its walls, and any active overlays as a
// standalone SVG document. All geometry is integer so identical mazes
// render byte-identical markup.
func renderSVG(w io.Writer, m *Maze) error {
	var sb strings.Builder

	width := m.grid.Width*cellSize + 2*svgMargin
	height := m.grid.Height*cellSize + 2*svgMargin

	sb.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	fmt.Fprintf(&sb, "<svg xmlns=\"http://www.w3.org/2000/svg\" width=\"%d\" height=\"%d\" viewBox=\"0 0 %d %d\">\n",
		width, height, width, height)
	fmt.Fprintf(&sb, "  <rect width=\"%d\" height=\"%d\" fill=\"%s\"/>\n", width, height, colorBackground)

	maxDist := 0
	for _, d := range m.distances {
		if d > maxDist {
			maxDist = d
		}
	}

	for y := 0; y < m.grid.Height; y++ {
		for x := 0; x < m.grid.Width; x++ {
			if !m.grid.EnabledAt(x, y) {
				continue
			}
			fill := colorCell
			if m.distances != nil {
				if d, ok := m.distances[engine.Coord{X: x, Y: y}]; ok {
					fill = heatColor(d, maxDist)
				}
			}
			fmt.Fprintf(&sb, "  <rect x=\"%d\" y=\"%d\" width=\"%d\" height=\"%d\" fill=\"%s\"/>\n",
				svgMargin+x*cellSize, svgMargin+y*cellSize, cellSize, cellSize, fill)
		}
	}

	if len(m.path) > 0 {
		sb.WriteString("  <path d=\"")
		for i, c := range m.path {
			if i == 0 {
				fmt.Fprintf(&sb, "M%d %d", centerX(c.X), centerY(c.Y))
			} else {
				fmt.Fprintf(&sb, " L%d %d", centerX(c.X), centerY(c.Y))
			}
		}
		fmt.Fprintf(&sb, "\" fill=\"none\" stroke=\"%s\" stroke-width=\"4\" stroke-linecap=\"round\" stroke-linejoin=\"round\"/>\n",
			colorPath)
	}

	fmt.Fprintf(&sb, "  <g stroke=\"%s\" stroke-width=\"2\" stroke-linecap=\"square\">\n", colorWall)
	for y := 0; y < m.grid.Height; y++ {
		for x := 0; x < m.grid.Width; x++ {
			c := m.grid.Cells[y][x]
			if !c.Enabled {
				continue
			}
			x0 := svgMargin + x*cellSize
			y0 := svgMargin + y*cellSize
			x1 := x0 + cellSize
			y1 := y0 + cellSize

			// North and west walls are always this cell's to draw. The
			// shared south and east walls belong to the neighbor unless
			// there is no enabled neighbor there.
			if c.Walls[North] {
				wallLine(&sb, x0, y0, x1, y0)
			}
			if c.Walls[West] {
				wallLine(&sb, x0, y0, x0, y1)
			}
			if c.Walls[South] && !m.grid.EnabledAt(x, y+1) {
				wallLine(&sb, x0, y1, x1, y1)
			}
			if c.Walls[East] && !m.grid.EnabledAt(x+1, y) {
				wallLine(&sb, x1, y0, x1, y1)
			}
		}
	}
	sb.WriteString("  </g>\n")

	if m.start != nil {
		fmt.Fprintf(&sb, "  <circle cx=\"%d\" cy=\"%d\" r=\"%d\" fill=\"%s\"/>\n",
			centerX(m.start.X), centerY(m.start.Y), cellSize/3, colorStart)
	}
	if m.end != nil {
		cx, cy, r := centerX(m.end.X), centerY(m.end.Y), cellSize/3
		fmt.Fprintf(&sb, "  <polygon points=\"%d,%d %d,%d %d,%d %d,%d\" fill=\"%s\"/>\n",
			cx, cy-r, cx+r, cy, cx, cy+r, cx-r, cy, colorEnd)
	}

	sb.WriteString("</svg>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func wallLine(sb *strings.Builder, x1, y1, x2, y2 int) {
	fmt.Fprintf(sb, "    <line x1=\"%d\" y1=\"%d\" x2=\"%d\" y2=\"%d\"/>\n", x1, y1, x2, y2)
}

func centerX(x int) int {
	return svgMargin + x*cellSize + cellSize/2
}

func centerY(y int) int {
	return svgMargin + y*cellSize + cellSize/2
}

// heatColor maps a distance onto a light-to-dark blue ramp.
func heatColor(d, max int) string {
	if max <= 0 {
		return "#E3F2FD"
	}
	r := 227 + (13-227)*d/max
	g := 242 + (71-242)*d/max
	b := 253 + (161-253)*d/max
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}
