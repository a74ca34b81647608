// Package geometry holds the pure math used by erasing, rendering and
// viewport navigation. Every function is deterministic and side-effect
// free: clients with identical histories must agree on every hit-test.
package geometry

import (
	"math"

	"github.com/drawsync/drawsync/internal/document"
)

// HitTolerance is the fixed slack, in canvas units, added to half the
// stroke width when hit-testing against a stroke outline.
const HitTolerance = 5.0

// DistanceToSegment returns the minimum distance from p to the segment ab.
// A degenerate segment (a == b) falls back to the point distance.
func DistanceToSegment(p, a, b document.Point) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y

	if dx == 0 && dy == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}

	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / (dx*dx + dy*dy)
	if t < 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	if t > 1 {
		return math.Hypot(p.X-b.X, p.Y-b.Y)
	}

	projX := a.X + t*dx
	projY := a.Y + t*dy
	return math.Hypot(p.X-projX, p.Y-projY)
}

// HitTest reports whether p lies within tolerance of the stroke's visible
// outline. All strokes are outline-only, so rect tests the four boundary
// edges (not the fill) and ellipse tests an annulus around the perimeter.
func HitTest(p document.Point, s document.Stroke) bool {
	tol := s.Size/2 + HitTolerance

	switch s.Tool {
	case document.ToolPen:
		for i := 0; i+1 < len(s.Points); i++ {
			if DistanceToSegment(p, s.Points[i], s.Points[i+1]) <= tol {
				return true
			}
		}
		return false

	case document.ToolLine:
		if s.Shape == nil {
			return false
		}
		a := document.Point{X: s.Shape.X1, Y: s.Shape.Y1}
		b := document.Point{X: s.Shape.X2, Y: s.Shape.Y2}
		return DistanceToSegment(p, a, b) <= tol

	case document.ToolRect:
		if s.Shape == nil {
			return false
		}
		tl := document.Point{X: s.Shape.X1, Y: s.Shape.Y1}
		tr := document.Point{X: s.Shape.X2, Y: s.Shape.Y1}
		br := document.Point{X: s.Shape.X2, Y: s.Shape.Y2}
		bl := document.Point{X: s.Shape.X1, Y: s.Shape.Y2}
		edges := [4][2]document.Point{{tl, tr}, {tr, br}, {br, bl}, {bl, tl}}
		for _, e := range edges {
			if DistanceToSegment(p, e[0], e[1]) <= tol {
				return true
			}
		}
		return false

	case document.ToolEllipse:
		if s.Shape == nil {
			return false
		}
		w := math.Abs(s.Shape.X2 - s.Shape.X1)
		h := math.Abs(s.Shape.Y2 - s.Shape.Y1)
		cx := math.Min(s.Shape.X1, s.Shape.X2) + w/2
		cy := math.Min(s.Shape.Y1, s.Shape.Y2) + h/2
		rx := w / 2
		ry := h / 2
		minR := math.Min(rx, ry)
		if minR == 0 {
			// Collapsed ellipse: treat its center as a point.
			return math.Hypot(p.X-cx, p.Y-cy) <= tol
		}

		dx := p.X - cx
		dy := p.Y - cy
		norm := math.Sqrt((dx/rx)*(dx/rx) + (dy/ry)*(dy/ry))

		inner := math.Max(0, 1-tol/minR)
		outer := 1 + tol/minR
		return norm >= inner && norm <= outer

	case document.ToolEraser, document.ToolPan:
		return false
	}
	return false
}

// View is the pan/zoom state mapping canvas space onto the screen.
type View struct {
	OffsetX float64
	OffsetY float64
	Zoom    float64
}

const (
	MinZoom = 0.1
	MaxZoom = 5.0
)

// DefaultView returns the identity viewport.
func DefaultView() View {
	return View{Zoom: 1}
}

// ScreenToCanvas maps a screen position into canvas space under the view.
func (v View) ScreenToCanvas(sx, sy float64) document.Point {
	return document.Point{
		X: (sx - v.OffsetX) / v.Zoom,
		Y: (sy - v.OffsetY) / v.Zoom,
	}
}

// CanvasToScreen maps a canvas position back onto the screen.
func (v View) CanvasToScreen(p document.Point) (float64, float64) {
	return p.X*v.Zoom + v.OffsetX, p.Y*v.Zoom + v.OffsetY
}

// Pan shifts the viewport by a screen-space delta.
func (v View) Pan(dx, dy float64) View {
	v.OffsetX += dx
	v.OffsetY += dy
	return v
}

// ZoomAt changes the zoom by delta, clamped to [MinZoom, MaxZoom], keeping
// the canvas point under the given screen position fixed.
func (v View) ZoomAt(sx, sy, delta float64) View {
	newZoom := math.Max(MinZoom, math.Min(MaxZoom, v.Zoom+delta))
	v.OffsetX = sx - (sx-v.OffsetX)*(newZoom/v.Zoom)
	v.OffsetY = sy - (sy-v.OffsetY)*(newZoom/v.Zoom)
	v.Zoom = newZoom
	return v
}

// PathSegment is one piece of a smoothed pen path: a quadratic Bézier when
// Quad is set, a straight segment otherwise.
type PathSegment struct {
	Quad bool
	Ctrl document.Point
	To   document.Point
}

// SmoothPath builds the render path for a pen stroke. Two points yield a
// straight segment; three or more yield quadratic Béziers through the
// midpoints of consecutive points, which avoids pinching at samples.
// Fewer than two points yield no path.
func SmoothPath(points []document.Point) (start document.Point, segs []PathSegment) {
	if len(points) < 2 {
		return document.Point{}, nil
	}

	start = points[0]
	if len(points) == 2 {
		return start, []PathSegment{{To: points[1]}}
	}

	for i := 1; i < len(points)-2; i++ {
		mid := document.Point{
			X: (points[i].X + points[i+1].X) / 2,
			Y: (points[i].Y + points[i+1].Y) / 2,
		}
		segs = append(segs, PathSegment{Quad: true, Ctrl: points[i], To: mid})
	}

	// The last two points get their own curve so the path ends exactly at
	// the final sample.
	segs = append(segs, PathSegment{
		Quad: true,
		Ctrl: points[len(points)-2],
		To:   points[len(points)-1],
	})
	return start, segs
}

// Rect is an axis-aligned bounding box in canvas space.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Width returns the box width.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns the box height.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Expand grows the box by pad on every side.
func (r Rect) Expand(pad float64) Rect {
	return Rect{MinX: r.MinX - pad, MinY: r.MinY - pad, MaxX: r.MaxX + pad, MaxY: r.MaxY + pad}
}

func (r Rect) add(x, y float64) Rect {
	return Rect{
		MinX: math.Min(r.MinX, x),
		MinY: math.Min(r.MinY, y),
		MaxX: math.Max(r.MaxX, x),
		MaxY: math.Max(r.MaxY, y),
	}
}

func emptyRect() Rect {
	return Rect{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

// Bounds returns the bounding box of a single stroke and whether the stroke
// contributed any geometry.
func Bounds(s document.Stroke) (Rect, bool) {
	r := emptyRect()
	switch s.Tool {
	case document.ToolPen:
		for _, p := range s.Points {
			r = r.add(p.X, p.Y)
		}
		return r, len(s.Points) > 0
	case document.ToolLine, document.ToolRect, document.ToolEllipse:
		if s.Shape == nil {
			return r, false
		}
		r = r.add(s.Shape.X1, s.Shape.Y1)
		r = r.add(s.Shape.X2, s.Shape.Y2)
		return r, true
	case document.ToolEraser, document.ToolPan:
		return r, false
	}
	return r, false
}

// HistoryBounds returns the union bounding box over all strokes.
func HistoryBounds(strokes []document.Stroke) (Rect, bool) {
	r := emptyRect()
	any := false
	for _, s := range strokes {
		if sb, ok := Bounds(s); ok {
			r = r.add(sb.MinX, sb.MinY)
			r = r.add(sb.MaxX, sb.MaxY)
			any = true
		}
	}
	return r, any
}
