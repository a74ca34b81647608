package collab

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/drawsync/drawsync/internal/document"
)

// ApplyDrawEvent applies a received draw event to a stroke store. The same
// reducer runs on every participant and on the hub's room state, so clients
// that see the same message sequence converge.
//
// Undo and redo mirror the sender's intent structurally: they move the
// receiver's own history top, whatever it is, rather than a stroke named by
// content.
func ApplyDrawEvent(store *document.Store, msg *Message) error {
	switch msg.Type {
	case TypeAddStroke:
		var p AddStrokePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("invalid addStroke payload: %w", err)
		}
		if !p.Stroke.BroadcastReady() {
			return fmt.Errorf("stroke not broadcastable (tool=%s, points=%d)", p.Stroke.Tool, len(p.Stroke.Points))
		}
		store.AppendRemote(p.Stroke)
		return nil

	case TypeEraseStroke:
		var p EraseStrokePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("invalid eraseStroke payload: %w", err)
		}
		if !store.RemoveAt(p.StrokeIndex) {
			// Possible divergence between sender and receiver histories.
			// Degrades to a no-op by design.
			return fmt.Errorf("erase index %d out of range (len=%d)", p.StrokeIndex, store.Len())
		}
		return nil

	case TypeClearCanvas:
		store.Clear()
		return nil

	case TypeUndo:
		store.Undo()
		return nil

	case TypeRedo:
		store.Redo()
		return nil

	default:
		return fmt.Errorf("unknown draw event type: %s", msg.Type)
	}
}

// RoomState is the hub-side mirror of a room's shared drawing state. It
// applies every draw event through the shared reducer so late joiners can be
// seeded with the current history, and keeps an operation log alongside a
// monotonically increasing server sequence.
type RoomState struct {
	mu        sync.Mutex
	store     *document.Store
	serverSeq int64
	opLog     []Message
}

// NewRoomState creates an empty room state.
func NewRoomState() *RoomState {
	return &RoomState{store: document.NewStore()}
}

// Seed replaces the state with a previously saved history and redo buffer.
func (rs *RoomState) Seed(history, redo []document.Stroke) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.store.Replace(history, redo)
}

// Apply runs a draw event through the reducer and returns the new server
// sequence. The event is logged even when it degrades to a no-op so the op
// log reflects everything that was fanned out.
func (rs *RoomState) Apply(msg *Message) (int64, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	err := ApplyDrawEvent(rs.store, msg)

	rs.serverSeq++
	logged := *msg
	logged.Seq = rs.serverSeq
	rs.opLog = append(rs.opLog, logged)

	return rs.serverSeq, err
}

// Snapshot returns copies of the current history and redo buffer.
func (rs *RoomState) Snapshot() (history, redo []document.Stroke) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.store.History(), rs.store.RedoStack()
}

// OpCount returns the number of draw events applied so far.
func (rs *RoomState) OpCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.opLog)
}
