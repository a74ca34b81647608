package collab

import (
	"encoding/json"

	"github.com/drawsync/drawsync/internal/document"
)

// Message is the envelope for everything sent over a room connection.
// ConnID identifies the originating connection; receivers use it for the
// self-origin filter. Seq is the room's server sequence, stamped by the hub
// on draw events before fan-out.
type Message struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	ConnID  string          `json:"connId,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	// Draw events replicate stroke-store mutations between participants.
	TypeAddStroke   = "draw.addStroke"
	TypeEraseStroke = "draw.eraseStroke"
	TypeClearCanvas = "draw.clearCanvas"
	TypeUndo        = "draw.undo"
	TypeRedo        = "draw.redo"

	// Presence
	TypePresenceUpdate = "presence.update"
	TypePresenceState  = "presence.state"
	TypePresenceJoin   = "presence.join"
	TypePresenceLeave  = "presence.leave"

	// Connection
	TypeWelcome = "welcome"
	TypeError   = "error"
)

// IsDrawEvent reports whether the message type mutates the stroke store.
func IsDrawEvent(t string) bool {
	switch t {
	case TypeAddStroke, TypeEraseStroke, TypeClearCanvas, TypeUndo, TypeRedo:
		return true
	}
	return false
}

// AddStrokePayload carries a completed stroke.
type AddStrokePayload struct {
	Stroke document.Stroke `json:"stroke"`
}

// EraseStrokePayload addresses the erased stroke by its position in the
// sender's history. Receivers apply it against their own history, which can
// diverge under concurrent edits; out-of-range indices degrade to no-ops.
type EraseStrokePayload struct {
	StrokeIndex int `json:"strokeIndex"`
}

// CursorPos is a cursor position in screen coordinates.
type CursorPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PresencePayload is one participant's ephemeral state. Last write wins per
// participant; never persisted.
type PresencePayload struct {
	Cursor *CursorPos `json:"cursor,omitempty"`
	Name   string     `json:"name,omitempty"`
	Color  string     `json:"color,omitempty"`
}

type PresenceStatePayload struct {
	Presences map[string]*PresencePayload `json:"presences"`
}

type PresenceJoinPayload struct {
	ConnID string `json:"connId"`
	Name   string `json:"name"`
}

type PresenceLeavePayload struct {
	ConnID string `json:"connId"`
}

// WelcomePayload seeds a newly joined client: its assigned connection id,
// the room's current stroke history and redo buffer, and who else is here.
type WelcomePayload struct {
	ConnID    string                      `json:"connId"`
	History   []document.Stroke           `json:"drawHistory"`
	RedoStack []document.Stroke           `json:"redoStack"`
	Presences map[string]*PresencePayload `json:"presences"`
}

// NewMessage marshals payload into a message envelope of the given type.
func NewMessage(msgType string, payload any) (*Message, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Message{Type: msgType, Payload: raw}, nil
}
