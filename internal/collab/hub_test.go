package collab

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func newTestHub(t *testing.T, snapshots SnapshotStore) *Hub {
	t.Helper()
	hub := NewHub(snapshots)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func join(t *testing.T, hub *Hub, roomID, connID, name string) *Client {
	t.Helper()
	client := NewClient(hub, nil, roomID, connID, name)
	hub.Register(client)

	// The welcome is sent during registration, so receiving it guarantees
	// the client is in the room.
	msg := recv(t, client)
	if msg.Type != TypeWelcome {
		t.Fatalf("first message to %s = %s, want %s", connID, msg.Type, TypeWelcome)
	}
	return client
}

func recv(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if !ok {
			t.Fatalf("send channel for %s closed", c.ConnID)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal message to %s: %v", c.ConnID, err)
		}
		return &msg
	case <-time.After(2 * time.Second):
		t.Fatalf("no message delivered to %s", c.ConnID)
		return nil
	}
}

func assertQuiet(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message to %s: %s", c.ConnID, data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	hub := newTestHub(t, nil)

	a := join(t, hub, "room-1", "conn-a", "alice")
	b := join(t, hub, "room-1", "conn-b", "bob")
	recv(t, a) // bob's join notification

	add := drawMsg(t, TypeAddStroke, AddStrokePayload{Stroke: testStroke()})
	add.ConnID = a.ConnID
	add.RoomID = a.RoomID
	hub.handleMessage(a, add)

	got := recv(t, b)
	if got.Type != TypeAddStroke {
		t.Errorf("b received %s, want %s", got.Type, TypeAddStroke)
	}
	if got.ConnID != "conn-a" {
		t.Errorf("origin = %s, want conn-a", got.ConnID)
	}
	if got.Seq != 1 {
		t.Errorf("seq = %d, want 1", got.Seq)
	}

	assertQuiet(t, a)
}

func TestHubRoomsAreIsolated(t *testing.T) {
	hub := newTestHub(t, nil)

	a := join(t, hub, "room-1", "conn-a", "alice")
	c := join(t, hub, "room-2", "conn-c", "carol")

	add := drawMsg(t, TypeAddStroke, AddStrokePayload{Stroke: testStroke()})
	add.ConnID = a.ConnID
	add.RoomID = a.RoomID
	hub.handleMessage(a, add)

	assertQuiet(t, c)
}

func TestHubWelcomeSeedsLateJoiner(t *testing.T) {
	hub := newTestHub(t, nil)

	a := join(t, hub, "room-1", "conn-a", "alice")
	add := drawMsg(t, TypeAddStroke, AddStrokePayload{Stroke: testStroke()})
	add.ConnID = a.ConnID
	add.RoomID = a.RoomID
	hub.handleMessage(a, add)

	b := NewClient(hub, nil, "room-1", "conn-b", "bob")
	hub.Register(b)

	welcome := recv(t, b)
	if welcome.Type != TypeWelcome {
		t.Fatalf("first message = %s, want %s", welcome.Type, TypeWelcome)
	}
	var payload WelcomePayload
	if err := json.Unmarshal(welcome.Payload, &payload); err != nil {
		t.Fatalf("unmarshal welcome: %v", err)
	}
	if payload.ConnID != "conn-b" {
		t.Errorf("welcome connId = %s, want conn-b", payload.ConnID)
	}
	if len(payload.History) != 1 {
		t.Errorf("welcome history length = %d, want 1", len(payload.History))
	}
}

func TestHubPresenceUpdateFanOut(t *testing.T) {
	hub := newTestHub(t, nil)

	a := join(t, hub, "room-1", "conn-a", "alice")
	b := join(t, hub, "room-1", "conn-b", "bob")
	recv(t, a) // bob's join notification

	update := drawMsg(t, TypePresenceUpdate, PresencePayload{
		Cursor: &CursorPos{X: 10, Y: 20},
		Color:  "#ff0000",
	})
	update.ConnID = a.ConnID
	update.RoomID = a.RoomID
	hub.handleMessage(a, update)

	got := recv(t, b)
	if got.Type != TypePresenceUpdate {
		t.Fatalf("b received %s, want %s", got.Type, TypePresenceUpdate)
	}
	var presence PresencePayload
	if err := json.Unmarshal(got.Payload, &presence); err != nil {
		t.Fatalf("unmarshal presence: %v", err)
	}
	// The hub backfills the sender's name on anonymous updates.
	if presence.Name != "alice" {
		t.Errorf("presence name = %q, want alice", presence.Name)
	}
	if presence.Cursor == nil || presence.Cursor.X != 10 {
		t.Errorf("presence cursor = %+v", presence.Cursor)
	}
}

func TestHubLeaveNotifiesRoom(t *testing.T) {
	hub := newTestHub(t, nil)

	a := join(t, hub, "room-1", "conn-a", "alice")
	b := join(t, hub, "room-1", "conn-b", "bob")
	recv(t, a) // bob's join notification

	hub.unregister <- b

	got := recv(t, a)
	if got.Type != TypePresenceLeave {
		t.Errorf("a received %s, want %s", got.Type, TypePresenceLeave)
	}
	var leave PresenceLeavePayload
	if err := json.Unmarshal(got.Payload, &leave); err != nil {
		t.Fatalf("unmarshal leave: %v", err)
	}
	if leave.ConnID != "conn-b" {
		t.Errorf("leave connId = %s, want conn-b", leave.ConnID)
	}
}

// A client joining while draw traffic is in flight must still get its
// welcome first, and must see every stroke exactly once: either inside the
// welcome history or as a fanned-out event, never both.
func TestLateJoinDuringDrawTraffic(t *testing.T) {
	hub := newTestHub(t, nil)
	a := join(t, hub, "room-1", "conn-a", "alice")

	const senders = 4
	const perSender = 40

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < perSender; j++ {
				payload, _ := json.Marshal(AddStrokePayload{Stroke: testStroke()})
				msg := &Message{
					Type:    TypeAddStroke,
					RoomID:  a.RoomID,
					ConnID:  a.ConnID,
					Payload: payload,
				}
				hub.handleMessage(a, msg)
			}
		}()
	}
	close(start)

	b := NewClient(hub, nil, "room-1", "conn-b", "bob")
	hub.Register(b)

	first := recv(t, b)
	if first.Type != TypeWelcome {
		t.Fatalf("first message to late joiner = %s, want %s", first.Type, TypeWelcome)
	}
	var welcome WelcomePayload
	if err := json.Unmarshal(first.Payload, &welcome); err != nil {
		t.Fatalf("unmarshal welcome: %v", err)
	}

	wg.Wait()

	delivered := 0
drain:
	for {
		select {
		case data := <-b.send:
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("unmarshal fan-out: %v", err)
			}
			if msg.Type == TypeAddStroke {
				delivered++
			}
		default:
			break drain
		}
	}

	want := senders * perSender
	if total := len(welcome.History) + delivered; total != want {
		t.Errorf("late joiner saw %d strokes (welcome %d + delivered %d), want %d",
			total, len(welcome.History), delivered, want)
	}
}

// memSnapshotStore is an in-memory SnapshotStore for exercising the hub's
// load-on-open and save-on-close paths.
type memSnapshotStore struct {
	mu    sync.Mutex
	snaps map[string]*Snapshot
	saved chan string
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{
		snaps: make(map[string]*Snapshot),
		saved: make(chan string, 8),
	}
}

func (m *memSnapshotStore) Load(_ context.Context, roomID string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snaps[roomID], nil
}

func (m *memSnapshotStore) Save(_ context.Context, roomID string, snap *Snapshot) error {
	m.mu.Lock()
	m.snaps[roomID] = snap
	m.mu.Unlock()
	m.saved <- roomID
	return nil
}

func TestHubSnapshotRoundTrip(t *testing.T) {
	store := newMemSnapshotStore()
	hub := newTestHub(t, store)

	a := join(t, hub, "room-1", "conn-a", "alice")
	add := drawMsg(t, TypeAddStroke, AddStrokePayload{Stroke: testStroke()})
	add.ConnID = a.ConnID
	add.RoomID = a.RoomID
	hub.handleMessage(a, add)

	// Last client leaving closes the room and saves it.
	hub.unregister <- a
	select {
	case roomID := <-store.saved:
		if roomID != "room-1" {
			t.Fatalf("saved room %s, want room-1", roomID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("room was not saved on close")
	}

	// Reopening the room restores the history into the welcome.
	b := NewClient(hub, nil, "room-1", "conn-b", "bob")
	hub.Register(b)
	welcome := recv(t, b)

	var payload WelcomePayload
	if err := json.Unmarshal(welcome.Payload, &payload); err != nil {
		t.Fatalf("unmarshal welcome: %v", err)
	}
	if len(payload.History) != 1 {
		t.Errorf("restored history length = %d, want 1", len(payload.History))
	}
}
