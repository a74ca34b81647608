package collab

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// PresenceManager tracks the last-write-wins presence of every connection in
// a room. Presence is ephemeral: removed on leave, never persisted.
type PresenceManager struct {
	mu        sync.RWMutex
	presences map[string]*PresencePayload // connID -> presence
}

func NewPresenceManager() *PresenceManager {
	return &PresenceManager{
		presences: make(map[string]*PresencePayload),
	}
}

// Update merges a presence update for connID. Nil fields in the incoming
// payload keep their previous values, mirroring a partial presence update.
func (pm *PresenceManager) Update(connID string, p *PresencePayload) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	cur, ok := pm.presences[connID]
	if !ok {
		pm.presences[connID] = p
		return
	}
	if p.Cursor != nil {
		cur.Cursor = p.Cursor
	}
	if p.Name != "" {
		cur.Name = p.Name
	}
	if p.Color != "" {
		cur.Color = p.Color
	}
}

func (pm *PresenceManager) Remove(connID string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.presences, connID)
}

func (pm *PresenceManager) GetAll() map[string]*PresencePayload {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := make(map[string]*PresencePayload, len(pm.presences))
	for k, v := range pm.presences {
		c := *v
		result[k] = &c
	}
	return result
}

// StateMessage builds a presence.state message with every known presence.
func (pm *PresenceManager) StateMessage() *Message {
	all := pm.GetAll()
	payload, err := json.Marshal(PresenceStatePayload{Presences: all})
	if err != nil {
		slog.Error("marshal presence state", "error", err)
		return nil
	}
	return &Message{
		Type:    TypePresenceState,
		Payload: payload,
	}
}
