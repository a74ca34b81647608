package session

import (
	"github.com/zoobzio/hookz"

	"github.com/drawsync/drawsync/internal/document"
)

// Key aliases hookz.Key for local event constants.
type Key = hookz.Key

// Change-notification events emitted after store or view mutations. The
// render pipeline subscribes to these to invalidate its surface; the
// activity log subscribes for the user-facing feed.
const (
	EventStrokeAdded       Key = "stroke.added"
	EventStrokeErased      Key = "stroke.erased"
	EventCanvasCleared     Key = "canvas.cleared"
	EventHistoryUndone     Key = "history.undone"
	EventHistoryRedone     Key = "history.redone"
	EventViewChanged       Key = "view.changed"
	EventCanvasInvalidated Key = "canvas.invalidated"
)

// Change describes one store or view mutation.
type Change struct {
	Stroke *document.Stroke // stroke involved, if any
	Index  int              // history index for erase events, -1 otherwise
	Remote bool             // true when caused by a peer's event
}
