package collab

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// SnapshotStore persists a room's drawing state across room lifetimes.
// Optional: a nil store makes rooms purely ephemeral.
type SnapshotStore interface {
	Load(ctx context.Context, roomID string) (*Snapshot, error)
	Save(ctx context.Context, roomID string, snap *Snapshot) error
}

// Room groups the clients, presence and shared drawing state of one session.
// The room lock serializes membership changes and draw-event fan-out, so
// every member observes draw events in the same order relative to its
// welcome snapshot.
type Room struct {
	roomID string

	mu       sync.Mutex
	clients  map[string]*Client // connID -> client
	presence *PresenceManager
	state    *RoomState
}

func NewRoom(roomID string) *Room {
	return &Room{
		roomID:   roomID,
		clients:  make(map[string]*Client),
		presence: NewPresenceManager(),
		state:    NewRoomState(),
	}
}

// broadcast fans msg out to every member except excludeConnID. Send never
// blocks, so holding the room lock across the loop is cheap.
func (r *Room) broadcast(msg *Message, excludeConnID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		if c.ConnID != excludeConnID {
			c.Send(msg)
		}
	}
}

// Hub routes messages between the clients of each room. Draw events are
// applied to the room's authoritative state before fan-out so late joiners
// can be seeded from it.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]*Room // roomID -> room
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopped    sync.WaitGroup
	snapshots  SnapshotStore
}

// NewHub creates a hub. snapshots may be nil for ephemeral-only rooms.
func NewHub(snapshots SnapshotStore) *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		snapshots:  snapshots,
	}
}

func (h *Hub) Run() {
	h.stopped.Add(1)
	defer h.stopped.Done()
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-h.done:
			return
		}
	}
}

// Stop shuts the hub down and saves every remaining room.
func (h *Hub) Stop() {
	close(h.done)
	h.stopped.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, room := range h.rooms {
		h.saveRoom(roomID, room)
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) room(roomID string) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID]
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.RoomID]
	if !ok {
		room = NewRoom(client.RoomID)
		h.loadRoom(client.RoomID, room)
		h.rooms[client.RoomID] = room
	}
	// Take the room lock before releasing the map lock so the room cannot be
	// torn down underneath the join.
	room.mu.Lock()
	h.mu.Unlock()

	// Insertion, state snapshot and welcome delivery form one atomic step:
	// no concurrent draw event can reach the new client ahead of its
	// welcome, and none can land both in the welcome history and in the
	// client's queue.
	room.clients[client.ConnID] = client
	history, redo := room.state.Snapshot()
	welcome, err := NewMessage(TypeWelcome, WelcomePayload{
		ConnID:    client.ConnID,
		History:   history,
		RedoStack: redo,
		Presences: room.presence.GetAll(),
	})
	if err != nil {
		slog.Error("marshal welcome", "error", err)
	} else {
		client.Send(welcome)
	}
	room.mu.Unlock()

	joinPayload, _ := json.Marshal(PresenceJoinPayload{
		ConnID: client.ConnID,
		Name:   client.Name,
	})
	joinMsg := &Message{
		Type:    TypePresenceJoin,
		ConnID:  client.ConnID,
		Payload: joinPayload,
	}
	room.broadcast(joinMsg, client.ConnID)

	slog.Info("client joined", "conn", client.ConnID, "room", client.RoomID)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.RoomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	room.mu.Lock()
	if _, present := room.clients[client.ConnID]; !present {
		room.mu.Unlock()
		h.mu.Unlock()
		return
	}

	delete(room.clients, client.ConnID)
	room.presence.Remove(client.ConnID)

	empty := len(room.clients) == 0
	if empty {
		h.saveRoom(client.RoomID, room)
		delete(h.rooms, client.RoomID)
	}
	room.mu.Unlock()
	h.mu.Unlock()

	// The client is out of the room, so no fan-out can reach it anymore;
	// closing its queue now cannot race a Send.
	client.closeSend()

	if !empty {
		leavePayload, _ := json.Marshal(PresenceLeavePayload{ConnID: client.ConnID})
		leaveMsg := &Message{
			Type:    TypePresenceLeave,
			ConnID:  client.ConnID,
			Payload: leavePayload,
		}
		room.broadcast(leaveMsg, "")
	}

	slog.Info("client left", "conn", client.ConnID, "room", client.RoomID, "roomClosed", empty)
}

func (h *Hub) handleMessage(sender *Client, msg *Message) {
	switch {
	case msg.Type == TypePresenceUpdate:
		h.handlePresenceUpdate(sender, msg)
	case IsDrawEvent(msg.Type):
		h.handleDrawEvent(sender, msg)
	default:
		slog.Warn("unknown message type", "type", msg.Type, "conn", sender.ConnID)
	}
}

func (h *Hub) handlePresenceUpdate(sender *Client, msg *Message) {
	var presence PresencePayload
	if err := json.Unmarshal(msg.Payload, &presence); err != nil {
		slog.Warn("invalid presence payload", "error", err, "conn", sender.ConnID)
		return
	}

	if presence.Name == "" {
		presence.Name = sender.Name
	}

	room := h.room(sender.RoomID)
	if room == nil {
		return
	}

	room.presence.Update(sender.ConnID, &presence)

	outPayload, _ := json.Marshal(presence)
	outMsg := &Message{
		Type:    TypePresenceUpdate,
		ConnID:  sender.ConnID,
		Payload: outPayload,
	}
	room.broadcast(outMsg, sender.ConnID)
}

func (h *Hub) handleDrawEvent(sender *Client, msg *Message) {
	room := h.room(sender.RoomID)
	if room == nil {
		return
	}

	// Apply and fan-out are one atomic step under the room lock; a join in
	// between would otherwise see the event in its welcome history and then
	// again on the wire.
	room.mu.Lock()
	seq, err := room.state.Apply(msg)
	if err != nil {
		// The event still fans out: receivers run the same reducer and
		// degrade the same way. Logged because it signals divergence.
		slog.Warn("draw event degraded to no-op", "type", msg.Type, "conn", sender.ConnID, "error", err)
	}
	msg.Seq = seq

	for _, c := range room.clients {
		if c.ConnID != sender.ConnID {
			c.Send(msg)
		}
	}
	room.mu.Unlock()
}

// loadRoom seeds a fresh room from the snapshot store. Caller holds h.mu.
func (h *Hub) loadRoom(roomID string, room *Room) {
	if h.snapshots == nil {
		return
	}
	snap, err := h.snapshots.Load(context.Background(), roomID)
	if err != nil {
		slog.Warn("load room snapshot", "room", roomID, "error", err)
		return
	}
	if snap == nil {
		return
	}
	room.state.Seed(snap.History, snap.RedoStack)
	slog.Info("room restored from snapshot", "room", roomID, "strokes", len(snap.History))
}

// saveRoom persists a room's state. Caller holds h.mu.
func (h *Hub) saveRoom(roomID string, room *Room) {
	if h.snapshots == nil {
		return
	}
	history, redo := room.state.Snapshot()
	snap := &Snapshot{History: history, RedoStack: redo}
	if err := h.snapshots.Save(context.Background(), roomID, snap); err != nil {
		slog.Error("save room snapshot", "room", roomID, "error", err)
		return
	}
	slog.Info("room snapshot saved", "room", roomID, "strokes", len(history))
}
