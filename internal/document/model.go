package document

import (
	"encoding/json"
	"fmt"
)

// Tool identifies the drawing primitive a stroke was made with, or the
// interaction mode for tools that never commit strokes (eraser, pan).
type Tool string

const (
	ToolPen     Tool = "pen"
	ToolLine    Tool = "line"
	ToolRect    Tool = "rect"
	ToolEllipse Tool = "ellipse"

	// Interaction-only tools. They never appear on a committed Stroke.
	ToolEraser Tool = "eraser"
	ToolPan    Tool = "pan"
)

// Draws reports whether the tool commits strokes to the history.
func (t Tool) Draws() bool {
	switch t {
	case ToolPen, ToolLine, ToolRect, ToolEllipse:
		return true
	case ToolEraser, ToolPan:
		return false
	}
	return false
}

// Valid reports whether t is a known tool.
func (t Tool) Valid() bool {
	switch t {
	case ToolPen, ToolLine, ToolRect, ToolEllipse, ToolEraser, ToolPan:
		return true
	}
	return false
}

// Point is a position in canvas space (after the pan/zoom inverse transform).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ShapeGeom holds the two defining corners/endpoints of a line, rect or
// ellipse stroke. For rect/ellipse the points are opposite corners of the
// bounding box; for line they are the endpoints.
type ShapeGeom struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Stroke is one committed drawing primitive. Pen strokes carry an ordered
// point sequence (insertion order = temporal order); shape strokes carry
// exactly one geometry record.
type Stroke struct {
	Tool   Tool       `json:"tool"`
	Color  string     `json:"color"`
	Size   float64    `json:"size"`
	Points []Point    `json:"-"`
	Shape  *ShapeGeom `json:"-"`
}

// BroadcastReady reports whether the stroke may be sent to peers.
// A pen stroke needs at least two points; a shape stroke needs its geometry.
func (s *Stroke) BroadcastReady() bool {
	switch s.Tool {
	case ToolPen:
		return len(s.Points) >= 2
	case ToolLine, ToolRect, ToolEllipse:
		return s.Shape != nil
	case ToolEraser, ToolPan:
		return false
	}
	return false
}

// wireStroke is the JSON shape shared with peers: pen strokes serialize their
// point list, shape strokes serialize a single {x1,y1,x2,y2} record under the
// same "points" key.
type wireStroke struct {
	Tool   Tool            `json:"tool"`
	Color  string          `json:"color"`
	Size   float64         `json:"size"`
	Points json.RawMessage `json:"points"`
}

func (s Stroke) MarshalJSON() ([]byte, error) {
	w := wireStroke{Tool: s.Tool, Color: s.Color, Size: s.Size}

	switch s.Tool {
	case ToolPen:
		pts, err := json.Marshal(s.Points)
		if err != nil {
			return nil, err
		}
		w.Points = pts
	case ToolLine, ToolRect, ToolEllipse:
		if s.Shape == nil {
			return nil, fmt.Errorf("shape stroke %q has no geometry", s.Tool)
		}
		geom, err := json.Marshal([]ShapeGeom{*s.Shape})
		if err != nil {
			return nil, err
		}
		w.Points = geom
	default:
		return nil, fmt.Errorf("tool %q cannot be serialized as a stroke", s.Tool)
	}

	return json.Marshal(w)
}

func (s *Stroke) UnmarshalJSON(data []byte) error {
	var w wireStroke
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	s.Tool = w.Tool
	s.Color = w.Color
	s.Size = w.Size
	s.Points = nil
	s.Shape = nil

	switch w.Tool {
	case ToolPen:
		return json.Unmarshal(w.Points, &s.Points)
	case ToolLine, ToolRect, ToolEllipse:
		var geoms []ShapeGeom
		if err := json.Unmarshal(w.Points, &geoms); err != nil {
			return err
		}
		if len(geoms) != 1 {
			return fmt.Errorf("shape stroke %q carries %d geometry records, want 1", w.Tool, len(geoms))
		}
		g := geoms[0]
		s.Shape = &g
		return nil
	default:
		return fmt.Errorf("unknown stroke tool %q", w.Tool)
	}
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// alias the history's backing slices.
func (s Stroke) Clone() Stroke {
	out := s
	if s.Points != nil {
		out.Points = make([]Point, len(s.Points))
		copy(out.Points, s.Points)
	}
	if s.Shape != nil {
		g := *s.Shape
		out.Shape = &g
	}
	return out
}
