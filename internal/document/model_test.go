package document

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestStrokeWireFormat(t *testing.T) {
	pen := Stroke{
		Tool:   ToolPen,
		Color:  "#000000",
		Size:   3,
		Points: []Point{{X: 1, Y: 2}, {X: 3, Y: 4}},
	}
	data, err := json.Marshal(pen)
	if err != nil {
		t.Fatalf("marshal pen: %v", err)
	}
	if !strings.Contains(string(data), `"points":[{"x":1,"y":2},{"x":3,"y":4}]`) {
		t.Errorf("pen wire form = %s", data)
	}

	rect := Stroke{
		Tool:  ToolRect,
		Color: "#ff0000",
		Size:  2,
		Shape: &ShapeGeom{X1: 0, Y1: 0, X2: 10, Y2: 20},
	}
	data, err = json.Marshal(rect)
	if err != nil {
		t.Fatalf("marshal rect: %v", err)
	}
	// Shape strokes ride under the same "points" key as a single record.
	if !strings.Contains(string(data), `"points":[{"x1":0,"y1":0,"x2":10,"y2":20}]`) {
		t.Errorf("rect wire form = %s", data)
	}

	var back Stroke
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal rect: %v", err)
	}
	if back.Shape == nil || *back.Shape != *rect.Shape {
		t.Errorf("round-tripped shape = %+v", back.Shape)
	}
	if back.Points != nil {
		t.Errorf("shape stroke grew points: %+v", back.Points)
	}
}

func TestStrokeWireFormatRejectsInvalid(t *testing.T) {
	if _, err := json.Marshal(Stroke{Tool: ToolEraser}); err == nil {
		t.Error("eraser stroke was serialized")
	}
	if _, err := json.Marshal(Stroke{Tool: ToolLine}); err == nil {
		t.Error("shape stroke without geometry was serialized")
	}

	var s Stroke
	if err := json.Unmarshal([]byte(`{"tool":"spray","points":[]}`), &s); err == nil {
		t.Error("unknown tool was deserialized")
	}
	if err := json.Unmarshal([]byte(`{"tool":"rect","points":[{"x1":0,"y1":0,"x2":1,"y2":1},{"x1":2,"y1":2,"x2":3,"y2":3}]}`), &s); err == nil {
		t.Error("shape stroke with two geometry records was deserialized")
	}
}

func TestBroadcastReady(t *testing.T) {
	tests := []struct {
		name   string
		stroke Stroke
		want   bool
	}{
		{"pen with two points", Stroke{Tool: ToolPen, Points: []Point{{}, {X: 1}}}, true},
		{"pen with one point", Stroke{Tool: ToolPen, Points: []Point{{}}}, false},
		{"shape with geometry", Stroke{Tool: ToolEllipse, Shape: &ShapeGeom{}}, true},
		{"shape without geometry", Stroke{Tool: ToolLine}, false},
		{"eraser", Stroke{Tool: ToolEraser, Points: []Point{{}, {X: 1}}}, false},
	}
	for _, tt := range tests {
		if got := tt.stroke.BroadcastReady(); got != tt.want {
			t.Errorf("%s: BroadcastReady = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestToolPredicates(t *testing.T) {
	for _, tool := range []Tool{ToolPen, ToolLine, ToolRect, ToolEllipse} {
		if !tool.Draws() || !tool.Valid() {
			t.Errorf("%s: Draws=%v Valid=%v", tool, tool.Draws(), tool.Valid())
		}
	}
	for _, tool := range []Tool{ToolEraser, ToolPan} {
		if tool.Draws() || !tool.Valid() {
			t.Errorf("%s: Draws=%v Valid=%v", tool, tool.Draws(), tool.Valid())
		}
	}
	if Tool("spray").Valid() {
		t.Error("unknown tool reported valid")
	}
}
