package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// EventHandler receives one replicated message per call. Handlers run on the
// connection's read goroutine; self-originated messages are filtered before
// they reach the handler.
type EventHandler func(msg *Message)

// Participant is a snapshot of one remote participant.
type Participant struct {
	ConnID   string
	Presence PresencePayload
}

// RoomConn is the client side of the collaboration boundary: it joins a room
// on the hub, broadcasts draw events fire-and-forget, merges presence
// updates and delivers remote events to a registered handler.
type RoomConn struct {
	conn    *websocket.Conn
	roomID  string
	connID  string
	welcome WelcomePayload

	send chan []byte

	mu      sync.RWMutex
	others  map[string]*PresencePayload
	self    PresencePayload
	handler EventHandler
}

// DialRoom joins roomID on the hub at baseURL (e.g. "ws://localhost:8080")
// and blocks until the welcome message arrives. initial seeds this client's
// presence; zero-value fields stay unset ({cursor:null,name:null,color:null}).
func DialRoom(ctx context.Context, baseURL, roomID string, initial PresencePayload) (*RoomConn, error) {
	url := fmt.Sprintf("%s/ws/room/%s", baseURL, roomID)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial room %s: %w", roomID, err)
	}
	conn.SetReadLimit(maxMsgSize)

	// The hub speaks first: the welcome carries our connection identity and
	// the room's current state.
	_, data, err := conn.Read(ctx)
	if err != nil {
		conn.Close(websocket.StatusProtocolError, "no welcome")
		return nil, fmt.Errorf("read welcome: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != TypeWelcome {
		conn.Close(websocket.StatusProtocolError, "bad welcome")
		return nil, fmt.Errorf("expected welcome, got %q", msg.Type)
	}
	var welcome WelcomePayload
	if err := json.Unmarshal(msg.Payload, &welcome); err != nil {
		conn.Close(websocket.StatusProtocolError, "bad welcome payload")
		return nil, fmt.Errorf("unmarshal welcome: %w", err)
	}

	rc := &RoomConn{
		conn:    conn,
		roomID:  roomID,
		connID:  welcome.ConnID,
		welcome: welcome,
		send:    make(chan []byte, 256),
		others:  make(map[string]*PresencePayload),
		self:    initial,
	}
	for id, p := range welcome.Presences {
		if id != rc.connID {
			rc.others[id] = p
		}
	}

	go rc.writePump(ctx)
	rc.UpdatePresence(initial)

	slog.Info("joined room", "room", roomID, "conn", rc.connID)
	return rc, nil
}

// ConnID returns the identity the hub assigned to this connection.
func (rc *RoomConn) ConnID() string { return rc.connID }

// Welcome returns the state the room was seeded with at join time.
func (rc *RoomConn) Welcome() WelcomePayload { return rc.welcome }

// OnEvent registers the handler for remote draw events. Must be called
// before Listen.
func (rc *RoomConn) OnEvent(handler EventHandler) {
	rc.mu.Lock()
	rc.handler = handler
	rc.mu.Unlock()
}

// Broadcast sends a draw event to every other room participant. Sends are
// fire-and-forget: the local mutation has already been applied by the
// caller, and delivery failures are the transport's problem.
func (rc *RoomConn) Broadcast(msgType string, payload any) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		slog.Error("marshal broadcast", "type", msgType, "error", err)
		return
	}
	rc.enqueue(msg)
}

// UpdatePresence merges fields into this client's presence and broadcasts
// the result. Unset fields in partial keep their previous values.
func (rc *RoomConn) UpdatePresence(partial PresencePayload) {
	rc.mu.Lock()
	if partial.Cursor != nil {
		rc.self.Cursor = partial.Cursor
	}
	if partial.Name != "" {
		rc.self.Name = partial.Name
	}
	if partial.Color != "" {
		rc.self.Color = partial.Color
	}
	out := rc.self
	rc.mu.Unlock()

	msg, err := NewMessage(TypePresenceUpdate, out)
	if err != nil {
		slog.Error("marshal presence", "error", err)
		return
	}
	rc.enqueue(msg)
}

// Others returns a snapshot of the remote participants.
func (rc *RoomConn) Others() []Participant {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]Participant, 0, len(rc.others))
	for id, p := range rc.others {
		out = append(out, Participant{ConnID: id, Presence: *p})
	}
	return out
}

// Listen runs the read loop until the context is cancelled or the
// connection drops. Remote draw events go to the registered handler;
// presence messages update the participant snapshot.
func (rc *RoomConn) Listen(ctx context.Context) error {
	for {
		_, data, err := rc.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return nil
			}
			return fmt.Errorf("room read: %w", err)
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid room message", "error", err)
			continue
		}

		// Self-origin filter: our own events were applied locally before
		// they were broadcast.
		if msg.ConnID == rc.connID {
			continue
		}

		switch msg.Type {
		case TypePresenceJoin:
			var p PresenceJoinPayload
			if err := json.Unmarshal(msg.Payload, &p); err == nil {
				rc.mu.Lock()
				rc.others[p.ConnID] = &PresencePayload{Name: p.Name}
				rc.mu.Unlock()
			}
		case TypePresenceLeave:
			var p PresenceLeavePayload
			if err := json.Unmarshal(msg.Payload, &p); err == nil {
				rc.mu.Lock()
				delete(rc.others, p.ConnID)
				rc.mu.Unlock()
			}
		case TypePresenceUpdate:
			var p PresencePayload
			if err := json.Unmarshal(msg.Payload, &p); err == nil {
				rc.mu.Lock()
				rc.others[msg.ConnID] = &p
				rc.mu.Unlock()
			}
		case TypePresenceState:
			var p PresenceStatePayload
			if err := json.Unmarshal(msg.Payload, &p); err == nil {
				rc.mu.Lock()
				for id, presence := range p.Presences {
					if id != rc.connID {
						rc.others[id] = presence
					}
				}
				rc.mu.Unlock()
			}
		default:
			rc.mu.RLock()
			handler := rc.handler
			rc.mu.RUnlock()
			if handler != nil {
				handler(&msg)
			} else {
				slog.Debug("no handler for message", "type", msg.Type)
			}
		}
	}
}

// Close leaves the room.
func (rc *RoomConn) Close() error {
	return rc.conn.Close(websocket.StatusNormalClosure, "leaving")
}

func (rc *RoomConn) enqueue(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal message", "error", err)
		return
	}
	select {
	case rc.send <- data:
	default:
		slog.Warn("room send buffer full, dropping message", "type", msg.Type)
	}
}

func (rc *RoomConn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-rc.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := rc.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("room write error", "error", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := rc.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
