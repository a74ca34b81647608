// Package render draws the committed stroke history onto a raster surface
// under the current pan/zoom transform, and exports static images.
package render

import (
	"image"
	"io"
	"log/slog"
	"math"

	"github.com/gogpu/gg"

	"github.com/drawsync/drawsync/internal/document"
	"github.com/drawsync/drawsync/internal/geometry"
)

// Theme selects the background and the default-color inversion rule.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Background returns the opaque surface color for the theme.
func (t Theme) Background() gg.RGBA {
	if t == ThemeDark {
		return gg.RGB(0, 0, 0)
	}
	return gg.RGB(1, 1, 1)
}

// InvertColor flips the default black/white stroke colors so they stay
// visible against the theme background. All other colors pass through.
func InvertColor(hex string, t Theme) string {
	if hex == "" {
		if t == ThemeDark {
			return "#ffffff"
		}
		return "#000000"
	}
	if hex == "#000000" && t == ThemeDark {
		return "#ffffff"
	}
	if hex == "#ffffff" && t == ThemeLight {
		return "#000000"
	}
	return hex
}

// GridSize is the reference grid cell size in canvas units. The grid is
// drawn in canvas space, so it scales visually with zoom.
const GridSize = 50.0

// Frame is everything needed for one deterministic redraw.
type Frame struct {
	History []document.Stroke
	View    geometry.View
	Theme   Theme
	Grid    bool

	// In-progress shape preview, drawn last. Pen previews are already part
	// of History while drawing.
	Preview      *document.ShapeGeom
	PreviewTool  document.Tool
	PreviewColor string
	PreviewSize  float64
}

// Renderer owns a raster surface and redraws frames onto it.
type Renderer struct {
	dc     *gg.Context
	width  int
	height int
}

func NewRenderer(width, height int) *Renderer {
	return &Renderer{
		dc:     gg.NewContext(width, height),
		width:  width,
		height: height,
	}
}

// Image returns the current surface contents.
func (r *Renderer) Image() image.Image { return r.dc.Image() }

// EncodePNG writes the current surface as PNG.
func (r *Renderer) EncodePNG(w io.Writer) error { return r.dc.EncodePNG(w) }

// Redraw clears the surface and draws the grid, every committed stroke in
// history order (history order is the z-order) and the preview last.
func (r *Renderer) Redraw(f Frame) {
	dc := r.dc
	dc.ClearWithColor(f.Theme.Background())

	dc.Push()
	dc.Translate(f.View.OffsetX, f.View.OffsetY)
	dc.Scale(f.View.Zoom, f.View.Zoom)

	if f.Grid {
		r.drawGrid(f)
	}

	for i := range f.History {
		drawStroke(dc, f.History[i], f.Theme, true)
	}

	if f.Preview != nil && f.PreviewTool != document.ToolPen {
		g := *f.Preview
		preview := document.Stroke{
			Tool:  f.PreviewTool,
			Color: f.PreviewColor,
			Size:  f.PreviewSize,
			Shape: &g,
		}
		drawStroke(dc, preview, f.Theme, true)
	}

	dc.Pop()
}

func (r *Renderer) drawGrid(f Frame) {
	dc := r.dc

	if f.Theme == ThemeDark {
		dc.SetRGBA(1, 1, 1, 0.2)
	} else {
		dc.SetRGBA(0, 0, 0, 0.1)
	}
	dc.SetLineWidth(0.5)

	// Cover the visible viewport in canvas space, one cell of overdraw.
	startX := gridFloor(-f.View.OffsetX / f.View.Zoom)
	startY := gridFloor(-f.View.OffsetY / f.View.Zoom)
	endX := startX + float64(r.width)/f.View.Zoom + GridSize*2
	endY := startY + float64(r.height)/f.View.Zoom + GridSize*2

	for x := startX; x < endX; x += GridSize {
		dc.DrawLine(x, startY, x, endY)
		if err := dc.Stroke(); err != nil {
			slog.Warn("draw grid line", "error", err)
			return
		}
	}
	for y := startY; y < endY; y += GridSize {
		dc.DrawLine(startX, y, endX, y)
		if err := dc.Stroke(); err != nil {
			slog.Warn("draw grid line", "error", err)
			return
		}
	}
}

// gridFloor snaps v down to the nearest grid line. Truncation would round
// negative canvas-space origins toward zero and drop the first visible
// row/column of lines under a positive pan offset.
func gridFloor(v float64) float64 {
	return math.Floor(v/GridSize) * GridSize
}

// drawStroke renders one stroke outline-only with round caps and joins.
func drawStroke(dc *gg.Context, s document.Stroke, theme Theme, invert bool) {
	color := s.Color
	if invert {
		color = InvertColor(color, theme)
	}
	dc.SetHexColor(color)
	dc.SetLineWidth(s.Size)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)

	switch s.Tool {
	case document.ToolPen:
		start, segs := geometry.SmoothPath(s.Points)
		if segs == nil {
			return
		}
		dc.MoveTo(start.X, start.Y)
		for _, seg := range segs {
			if seg.Quad {
				dc.QuadraticTo(seg.Ctrl.X, seg.Ctrl.Y, seg.To.X, seg.To.Y)
			} else {
				dc.LineTo(seg.To.X, seg.To.Y)
			}
		}

	case document.ToolLine:
		if s.Shape == nil {
			return
		}
		dc.DrawLine(s.Shape.X1, s.Shape.Y1, s.Shape.X2, s.Shape.Y2)

	case document.ToolRect:
		if s.Shape == nil {
			return
		}
		x := min(s.Shape.X1, s.Shape.X2)
		y := min(s.Shape.Y1, s.Shape.Y2)
		dc.DrawRectangle(x, y, abs(s.Shape.X2-s.Shape.X1), abs(s.Shape.Y2-s.Shape.Y1))

	case document.ToolEllipse:
		if s.Shape == nil {
			return
		}
		w := s.Shape.X2 - s.Shape.X1
		h := s.Shape.Y2 - s.Shape.Y1
		dc.DrawEllipse(s.Shape.X1+w/2, s.Shape.Y1+h/2, abs(w/2), abs(h/2))

	case document.ToolEraser, document.ToolPan:
		return
	}

	if err := dc.Stroke(); err != nil {
		slog.Warn("draw stroke", "tool", s.Tool, "error", err)
		dc.ClearPath()
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
