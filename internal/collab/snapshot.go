package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drawsync/drawsync/internal/document"
	"github.com/drawsync/drawsync/internal/typeid"
)

// Snapshot is a room's drawing state at a point in time.
type Snapshot struct {
	History   []document.Stroke `json:"drawHistory"`
	RedoStack []document.Stroke `json:"redoStack"`
}

// PGSnapshotStore persists room snapshots in Postgres. Each save writes a
// new version; loads return the latest.
//
// Schema:
//
//	CREATE TABLE room_snapshots (
//	    id       TEXT PRIMARY KEY,
//	    room_id  TEXT NOT NULL,
//	    version  INT NOT NULL,
//	    state    JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    UNIQUE (room_id, version)
//	);
type PGSnapshotStore struct {
	pool *pgxpool.Pool
}

func NewPGSnapshotStore(pool *pgxpool.Pool) *PGSnapshotStore {
	return &PGSnapshotStore{pool: pool}
}

// Load returns the latest snapshot for roomID, or nil if the room has never
// been saved.
func (s *PGSnapshotStore) Load(ctx context.Context, roomID string) (*Snapshot, error) {
	var state []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM room_snapshots WHERE room_id = $1 ORDER BY version DESC LIMIT 1`,
		roomID,
	).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(state, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Save writes snap as the next version for roomID.
func (s *PGSnapshotStore) Save(ctx context.Context, roomID string, snap *Snapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	var current int
	err = s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM room_snapshots WHERE room_id = $1`,
		roomID,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("query snapshot version: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO room_snapshots (id, room_id, version, state) VALUES ($1, $2, $3, $4)`,
		typeid.NewSnapshotID(), roomID, current+1, state,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}
