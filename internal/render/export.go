package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/gogpu/gg"
	"github.com/jung-kurt/gofpdf"

	"github.com/drawsync/drawsync/internal/document"
	"github.com/drawsync/drawsync/internal/geometry"
)

// ExportPadding is the margin, in canvas units, added around the content
// bounding box when exporting.
const ExportPadding = 50.0

// ErrEmptyExport is returned when the computed export area has no positive
// extent. Recoverable: report it, don't crash.
var ErrEmptyExport = errors.New("export area is empty")

// ExportPNG rasterizes the history onto an offscreen surface sized to the
// content bounding box (padded), with an opaque background matching the
// theme, and writes it as PNG. With an empty history the current visible
// viewport is exported instead.
//
// Unlike the live surface, exports keep stroke colors as committed: no
// theme inversion.
func ExportPNG(w io.Writer, history []document.Stroke, view geometry.View, canvasW, canvasH float64, theme Theme) error {
	box, ok := geometry.HistoryBounds(history)
	if !ok {
		// No content: export what's on screen.
		box = geometry.Rect{
			MinX: -view.OffsetX / view.Zoom,
			MinY: -view.OffsetY / view.Zoom,
			MaxX: (canvasW - view.OffsetX) / view.Zoom,
			MaxY: (canvasH - view.OffsetY) / view.Zoom,
		}
	}
	box = box.Expand(ExportPadding)

	width := box.Width()
	height := box.Height()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %gx%g", ErrEmptyExport, width, height)
	}

	dc := gg.NewContext(int(math.Ceil(width)), int(math.Ceil(height)))
	dc.ClearWithColor(theme.Background())

	dc.Push()
	dc.Translate(-box.MinX, -box.MinY)
	for i := range history {
		drawStroke(dc, history[i], theme, false)
	}
	dc.Pop()

	return dc.EncodePNG(w)
}

// ExportFilename returns the artifact name for an export started at t,
// e.g. "drawsync-2026-08-31.png".
func ExportFilename(t time.Time) string {
	return fmt.Sprintf("drawsync-%s.png", t.Format("2006-01-02"))
}

// ExportPDF writes the history as a single-page PDF, scaled to fit an A4
// page. Shapes keep their committed colors.
func ExportPDF(path string, history []document.Stroke) error {
	box, ok := geometry.HistoryBounds(history)
	if !ok {
		return fmt.Errorf("%w: no strokes", ErrEmptyExport)
	}
	box = box.Expand(ExportPadding)

	const pageW, pageH = 210.0, 297.0 // A4 mm
	scale := math.Min(pageW/box.Width(), pageH/box.Height())

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	tx := func(x float64) float64 { return (x - box.MinX) * scale }
	ty := func(y float64) float64 { return (y - box.MinY) * scale }

	for _, s := range history {
		r, g, b := hexRGB(s.Color)
		pdf.SetDrawColor(r, g, b)
		pdf.SetLineWidth(math.Max(s.Size*scale, 0.2))
		pdf.SetLineCapStyle("round")

		switch s.Tool {
		case document.ToolPen:
			for i := 1; i < len(s.Points); i++ {
				pdf.Line(tx(s.Points[i-1].X), ty(s.Points[i-1].Y), tx(s.Points[i].X), ty(s.Points[i].Y))
			}
		case document.ToolLine:
			if s.Shape != nil {
				pdf.Line(tx(s.Shape.X1), ty(s.Shape.Y1), tx(s.Shape.X2), ty(s.Shape.Y2))
			}
		case document.ToolRect:
			if s.Shape != nil {
				x := tx(math.Min(s.Shape.X1, s.Shape.X2))
				y := ty(math.Min(s.Shape.Y1, s.Shape.Y2))
				pdf.Rect(x, y, math.Abs(s.Shape.X2-s.Shape.X1)*scale, math.Abs(s.Shape.Y2-s.Shape.Y1)*scale, "D")
			}
		case document.ToolEllipse:
			if s.Shape != nil {
				cx := tx((s.Shape.X1 + s.Shape.X2) / 2)
				cy := ty((s.Shape.Y1 + s.Shape.Y2) / 2)
				rx := math.Abs(s.Shape.X2-s.Shape.X1) / 2 * scale
				ry := math.Abs(s.Shape.Y2-s.Shape.Y1) / 2 * scale
				pdf.Ellipse(cx, cy, rx, ry, 0, "D")
			}
		case document.ToolEraser, document.ToolPan:
		}
	}

	return pdf.OutputFileAndClose(path)
}

// hexRGB parses "#rrggbb" into 0-255 components, defaulting to black.
func hexRGB(hex string) (int, int, int) {
	if len(hex) != 7 || hex[0] != '#' {
		return 0, 0, 0
	}
	var r, g, b int
	if _, err := fmt.Sscanf(hex[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return 0, 0, 0
	}
	return r, g, b
}
