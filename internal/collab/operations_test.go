package collab

import (
	"encoding/json"
	"testing"

	"github.com/drawsync/drawsync/internal/document"
)

func drawMsg(t *testing.T, msgType string, payload any) *Message {
	t.Helper()
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		t.Fatalf("build %s message: %v", msgType, err)
	}
	return msg
}

func testStroke() document.Stroke {
	return document.Stroke{
		Tool:   document.ToolPen,
		Color:  "#000000",
		Size:   3,
		Points: []document.Point{{X: 0, Y: 0}, {X: 10, Y: 10}},
	}
}

func TestApplyDrawEventAddStroke(t *testing.T) {
	store := document.NewStore()
	msg := drawMsg(t, TypeAddStroke, AddStrokePayload{Stroke: testStroke()})

	if err := ApplyDrawEvent(store, msg); err != nil {
		t.Fatalf("addStroke: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("history length = %d, want 1", store.Len())
	}
}

func TestApplyDrawEventAddKeepsRedo(t *testing.T) {
	store := document.NewStore()
	store.Append(testStroke())
	store.Undo()

	msg := drawMsg(t, TypeAddStroke, AddStrokePayload{Stroke: testStroke()})
	if err := ApplyDrawEvent(store, msg); err != nil {
		t.Fatalf("addStroke: %v", err)
	}
	if store.RedoLen() != 1 {
		t.Errorf("remote add invalidated redo, length = %d, want 1", store.RedoLen())
	}
}

func TestApplyDrawEventRejectsUnfinishedStroke(t *testing.T) {
	store := document.NewStore()
	single := document.Stroke{
		Tool:   document.ToolPen,
		Color:  "#000000",
		Size:   3,
		Points: []document.Point{{X: 0, Y: 0}},
	}
	msg := drawMsg(t, TypeAddStroke, AddStrokePayload{Stroke: single})

	if err := ApplyDrawEvent(store, msg); err == nil {
		t.Error("single-point pen stroke was accepted")
	}
	if store.Len() != 0 {
		t.Errorf("rejected stroke still appended, length = %d", store.Len())
	}
}

func TestApplyDrawEventErase(t *testing.T) {
	store := document.NewStore()
	store.Append(testStroke())
	store.Append(testStroke())

	msg := drawMsg(t, TypeEraseStroke, EraseStrokePayload{StrokeIndex: 0})
	if err := ApplyDrawEvent(store, msg); err != nil {
		t.Fatalf("eraseStroke: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("history length = %d, want 1", store.Len())
	}

	// Out of range degrades to a reported no-op.
	msg = drawMsg(t, TypeEraseStroke, EraseStrokePayload{StrokeIndex: 9})
	if err := ApplyDrawEvent(store, msg); err == nil {
		t.Error("out-of-range erase reported success")
	}
	if store.Len() != 1 {
		t.Errorf("out-of-range erase mutated history, length = %d", store.Len())
	}
}

func TestApplyDrawEventUndoRedoClear(t *testing.T) {
	store := document.NewStore()
	store.Append(testStroke())

	if err := ApplyDrawEvent(store, &Message{Type: TypeUndo}); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if store.Len() != 0 || store.RedoLen() != 1 {
		t.Errorf("after undo: history=%d redo=%d", store.Len(), store.RedoLen())
	}

	if err := ApplyDrawEvent(store, &Message{Type: TypeRedo}); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if store.Len() != 1 || store.RedoLen() != 0 {
		t.Errorf("after redo: history=%d redo=%d", store.Len(), store.RedoLen())
	}

	// Undo/redo against empty state are silent no-ops.
	empty := document.NewStore()
	if err := ApplyDrawEvent(empty, &Message{Type: TypeUndo}); err != nil {
		t.Errorf("undo on empty history: %v", err)
	}
	if err := ApplyDrawEvent(empty, &Message{Type: TypeRedo}); err != nil {
		t.Errorf("redo on empty buffer: %v", err)
	}

	if err := ApplyDrawEvent(store, &Message{Type: TypeClearCanvas}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if store.Len() != 0 || store.RedoLen() != 0 {
		t.Errorf("after clear: history=%d redo=%d", store.Len(), store.RedoLen())
	}
}

func TestApplyDrawEventUnknownType(t *testing.T) {
	store := document.NewStore()
	if err := ApplyDrawEvent(store, &Message{Type: "draw.sparkle"}); err == nil {
		t.Error("unknown draw event type was accepted")
	}
}

func TestApplyDrawEventMalformedPayload(t *testing.T) {
	store := document.NewStore()
	msg := &Message{Type: TypeAddStroke, Payload: json.RawMessage(`{"stroke":`)}
	if err := ApplyDrawEvent(store, msg); err == nil {
		t.Error("malformed payload was accepted")
	}
}

func TestRoomStateSequencing(t *testing.T) {
	rs := NewRoomState()

	add := drawMsg(t, TypeAddStroke, AddStrokePayload{Stroke: testStroke()})
	seq, err := rs.Apply(add)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if seq != 1 {
		t.Errorf("first seq = %d, want 1", seq)
	}

	// A degraded event still advances the sequence and lands in the op log.
	bad := drawMsg(t, TypeEraseStroke, EraseStrokePayload{StrokeIndex: 42})
	seq, err = rs.Apply(bad)
	if err == nil {
		t.Error("out-of-range erase reported success")
	}
	if seq != 2 {
		t.Errorf("second seq = %d, want 2", seq)
	}
	if rs.OpCount() != 2 {
		t.Errorf("op log length = %d, want 2", rs.OpCount())
	}

	history, redo := rs.Snapshot()
	if len(history) != 1 || len(redo) != 0 {
		t.Errorf("snapshot: history=%d redo=%d", len(history), len(redo))
	}
}

func TestRoomStateSeed(t *testing.T) {
	rs := NewRoomState()
	rs.Seed([]document.Stroke{testStroke(), testStroke()}, []document.Stroke{testStroke()})

	history, redo := rs.Snapshot()
	if len(history) != 2 || len(redo) != 1 {
		t.Errorf("after seed: history=%d redo=%d", len(history), len(redo))
	}
}
