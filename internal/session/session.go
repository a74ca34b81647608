// Package session turns raw pointer input into stroke-store mutations and
// protocol broadcasts. Each client runs exactly one session per joined room;
// all mutations are applied locally first, then broadcast.
package session

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/zoobzio/hookz"

	"github.com/drawsync/drawsync/internal/collab"
	"github.com/drawsync/drawsync/internal/document"
	"github.com/drawsync/drawsync/internal/geometry"
)

// State is the transient interaction mode of the local client.
type State int

const (
	StateIdle State = iota
	StateDrawing
	StatePanning
	StateErasing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDrawing:
		return "drawing"
	case StatePanning:
		return "panning"
	case StateErasing:
		return "erasing"
	}
	return "unknown"
}

// Eraser samples are only re-tested after the pointer has moved this far in
// canvas units, bounding erase-operation frequency.
const eraserMinMove = 2.0

const zoomStep = 0.1

// Broadcaster is the slice of the collaboration boundary the session needs.
type Broadcaster interface {
	Broadcast(msgType string, payload any)
	UpdatePresence(partial collab.PresencePayload)
}

// Pointer is one raw pointer sample in screen coordinates.
type Pointer struct {
	ScreenX float64
	ScreenY float64
	Middle  bool // middle button held
	Shift   bool // shift modifier held
}

// Session is the per-client interaction state machine. It owns the local
// stroke store and viewport and drives them from pointer input; committed
// mutations are broadcast through the room connection.
type Session struct {
	store *document.Store
	room  Broadcaster
	hooks *hookz.Hooks[Change]

	mu        sync.Mutex
	state     State
	tool      document.Tool
	color     string
	size      float64
	view      geometry.View
	width     float64 // canvas size in screen units, for centered zoom
	height    float64
	startPos  *document.Point
	preview   *document.ShapeGeom
	panStartX float64
	panStartY float64
	lastErase *document.Point
}

// New creates a session bound to a store and room connection. room may be a
// fake in tests.
func New(store *document.Store, room Broadcaster) *Session {
	return &Session{
		store: store,
		room:  room,
		hooks: hookz.New[Change](hookz.WithWorkers(4), hookz.WithTimeout(2*time.Second)),
		tool:  document.ToolPen,
		color: "#000000",
		size:  3,
		view:  geometry.DefaultView(),
	}
}

// Events exposes the change-notification hooks.
func (s *Session) Events() *hookz.Hooks[Change] { return s.hooks }

// Store returns the session's stroke store.
func (s *Session) Store() *document.Store { return s.store }

// Close releases the hook workers.
func (s *Session) Close() error { return s.hooks.Close() }

// SeedFromWelcome replaces local state with the room's state at join time.
func (s *Session) SeedFromWelcome(w collab.WelcomePayload) {
	s.store.Replace(w.History, w.RedoStack)
	s.emit(EventCanvasInvalidated, Change{Index: -1, Remote: true})
}

// SetTool selects the active tool. Switching away from the eraser forgets
// the last erase sample.
func (s *Session) SetTool(tool document.Tool) {
	if !tool.Valid() {
		slog.Warn("ignoring unknown tool", "tool", tool)
		return
	}
	s.mu.Lock()
	s.tool = tool
	if tool != document.ToolEraser {
		s.lastErase = nil
	}
	s.mu.Unlock()
}

// SetBrush sets the color and stroke width used for new strokes.
func (s *Session) SetBrush(color string, size float64) {
	s.mu.Lock()
	s.color = color
	s.size = size
	s.mu.Unlock()
}

// Resize records the canvas size in screen units.
func (s *Session) Resize(width, height float64) {
	s.mu.Lock()
	s.width = width
	s.height = height
	s.mu.Unlock()
}

// State returns the current interaction state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tool returns the active tool.
func (s *Session) Tool() document.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tool
}

// View returns the current pan/zoom state.
func (s *Session) View() geometry.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Preview returns the in-progress shape preview, if any.
func (s *Session) Preview() *document.ShapeGeom {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preview == nil {
		return nil
	}
	g := *s.preview
	return &g
}

// PointerDown starts a gesture. The pan override (middle button, shift, or
// the pan tool) wins over the active tool.
func (s *Session) PointerDown(p Pointer) {
	s.updateCursor(p)

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}

	if p.Middle || p.Shift || s.tool == document.ToolPan {
		s.state = StatePanning
		s.panStartX = p.ScreenX
		s.panStartY = p.ScreenY
		s.mu.Unlock()
		return
	}

	pt := s.view.ScreenToCanvas(p.ScreenX, p.ScreenY)
	s.startPos = &pt

	switch s.tool {
	case document.ToolEraser:
		s.state = StateErasing
		s.lastErase = &pt
		s.mu.Unlock()
		s.erase(pt)
		return

	case document.ToolPen:
		s.state = StateDrawing
		s.preview = nil
		color, size := s.color, s.size
		s.mu.Unlock()
		// The in-progress pen stroke lives in the history from the first
		// point on; it is broadcast only on release. The store tracks it as
		// the working stroke, so remote splices cannot misdirect the gesture.
		s.store.BeginStroke(document.Stroke{
			Tool:   document.ToolPen,
			Color:  color,
			Size:   size,
			Points: []document.Point{pt},
		})
		s.emit(EventCanvasInvalidated, Change{Index: -1})
		return

	case document.ToolLine, document.ToolRect, document.ToolEllipse:
		s.state = StateDrawing
		s.preview = nil
		s.mu.Unlock()
		return

	case document.ToolPan:
		// handled above
	}
	s.mu.Unlock()
}

// PointerMove advances the active gesture. The presence cursor is updated on
// every move regardless of state.
func (s *Session) PointerMove(p Pointer) {
	s.updateCursor(p)

	s.mu.Lock()
	switch s.state {
	case StatePanning:
		s.view = s.view.Pan(p.ScreenX-s.panStartX, p.ScreenY-s.panStartY)
		s.panStartX = p.ScreenX
		s.panStartY = p.ScreenY
		s.mu.Unlock()
		s.emit(EventViewChanged, Change{Index: -1})

	case StateDrawing:
		pt := s.view.ScreenToCanvas(p.ScreenX, p.ScreenY)
		if s.tool == document.ToolPen {
			s.mu.Unlock()
			s.store.ExtendStroke(pt)
			s.emit(EventCanvasInvalidated, Change{Index: -1})
			return
		}
		if s.startPos == nil {
			s.mu.Unlock()
			return
		}
		s.preview = &document.ShapeGeom{X1: s.startPos.X, Y1: s.startPos.Y, X2: pt.X, Y2: pt.Y}
		s.mu.Unlock()
		s.emit(EventCanvasInvalidated, Change{Index: -1})

	case StateErasing:
		pt := s.view.ScreenToCanvas(p.ScreenX, p.ScreenY)
		if s.lastErase != nil &&
			math.Hypot(pt.X-s.lastErase.X, pt.Y-s.lastErase.Y) < eraserMinMove {
			s.mu.Unlock()
			return
		}
		s.lastErase = &pt
		s.mu.Unlock()
		s.erase(pt)

	case StateIdle:
		s.mu.Unlock()
	default:
		s.mu.Unlock()
	}
}

// PointerUp finishes the gesture: shapes commit their preview, pen strokes
// are broadcast when they carry at least two points. An up without a prior
// down is a no-op.
func (s *Session) PointerUp() {
	s.mu.Lock()
	state := s.state
	s.state = StateIdle
	s.lastErase = nil

	switch state {
	case StateIdle, StatePanning, StateErasing:
		s.startPos = nil
		s.preview = nil
		s.mu.Unlock()
		return

	case StateDrawing:
	}

	if s.tool == document.ToolPen {
		s.startPos = nil
		s.mu.Unlock()

		stroke, ok := s.store.FinishStroke()
		if ok && stroke.BroadcastReady() {
			s.room.Broadcast(collab.TypeAddStroke, collab.AddStrokePayload{Stroke: stroke})
			s.emit(EventStrokeAdded, Change{Stroke: &stroke, Index: -1})
		}
		return
	}

	preview := s.preview
	tool := s.tool
	color := s.color
	size := s.size
	s.preview = nil
	s.startPos = nil
	s.mu.Unlock()

	if preview == nil {
		return
	}

	stroke := document.Stroke{Tool: tool, Color: color, Size: size, Shape: preview}
	s.store.Append(stroke)
	s.room.Broadcast(collab.TypeAddStroke, collab.AddStrokePayload{Stroke: stroke})
	s.emit(EventStrokeAdded, Change{Stroke: &stroke, Index: -1})
}

// Cancel aborts the gesture, discarding uncommitted points and previews
// without broadcasting anything.
func (s *Session) Cancel() {
	s.mu.Lock()
	state := s.state
	tool := s.tool
	s.state = StateIdle
	s.startPos = nil
	s.preview = nil
	s.lastErase = nil
	s.mu.Unlock()

	if state == StateDrawing && tool == document.ToolPen {
		// The in-progress pen stroke was never broadcast; drop it.
		s.store.AbortStroke()
	}
	s.emit(EventCanvasInvalidated, Change{Index: -1})
}

// Undo moves the newest history entry to the redo buffer and notifies peers.
func (s *Session) Undo() {
	if _, ok := s.store.Undo(); !ok {
		return
	}
	s.room.Broadcast(collab.TypeUndo, nil)
	s.emit(EventHistoryUndone, Change{Index: -1})
}

// Redo restores the newest redo entry and notifies peers.
func (s *Session) Redo() {
	if _, ok := s.store.Redo(); !ok {
		return
	}
	s.room.Broadcast(collab.TypeRedo, nil)
	s.emit(EventHistoryRedone, Change{Index: -1})
}

// ClearCanvas empties the shared history and notifies peers.
func (s *Session) ClearCanvas() {
	s.store.Clear()
	s.room.Broadcast(collab.TypeClearCanvas, nil)
	s.emit(EventCanvasCleared, Change{Index: -1})
}

// Wheel zooms anchored at the pointer position.
func (s *Session) Wheel(screenX, screenY, deltaY float64) {
	delta := zoomStep
	if deltaY > 0 {
		delta = -zoomStep
	}
	s.mu.Lock()
	s.view = s.view.ZoomAt(screenX, screenY, delta)
	s.mu.Unlock()
	s.emit(EventViewChanged, Change{Index: -1})
}

// ZoomIn zooms one step anchored at the canvas center.
func (s *Session) ZoomIn() { s.zoomCentered(zoomStep) }

// ZoomOut zooms one step out anchored at the canvas center.
func (s *Session) ZoomOut() { s.zoomCentered(-zoomStep) }

func (s *Session) zoomCentered(delta float64) {
	s.mu.Lock()
	s.view = s.view.ZoomAt(s.width/2, s.height/2, delta)
	s.mu.Unlock()
	s.emit(EventViewChanged, Change{Index: -1})
}

// ResetView restores the identity viewport.
func (s *Session) ResetView() {
	s.mu.Lock()
	s.view = geometry.DefaultView()
	s.mu.Unlock()
	s.emit(EventViewChanged, Change{Index: -1})
}

// ApplyRemote runs a peer's draw event through the shared reducer.
func (s *Session) ApplyRemote(msg *collab.Message) {
	if err := collab.ApplyDrawEvent(s.store, msg); err != nil {
		slog.Warn("remote event degraded to no-op", "type", msg.Type, "error", err)
		return
	}
	switch msg.Type {
	case collab.TypeAddStroke:
		s.emit(EventStrokeAdded, Change{Index: -1, Remote: true})
	case collab.TypeEraseStroke:
		s.emit(EventStrokeErased, Change{Index: -1, Remote: true})
	case collab.TypeClearCanvas:
		s.emit(EventCanvasCleared, Change{Index: -1, Remote: true})
	case collab.TypeUndo:
		s.emit(EventHistoryUndone, Change{Index: -1, Remote: true})
	case collab.TypeRedo:
		s.emit(EventHistoryRedone, Change{Index: -1, Remote: true})
	}
}

// erase hit-tests pt against the history and removes the first match,
// broadcasting the erased index. A miss is a silent no-op.
func (s *Session) erase(pt document.Point) {
	history := s.store.History()
	for i, stroke := range history {
		if geometry.HitTest(pt, stroke) {
			if s.store.RemoveAt(i) {
				s.room.Broadcast(collab.TypeEraseStroke, collab.EraseStrokePayload{StrokeIndex: i})
				s.emit(EventStrokeErased, Change{Stroke: &history[i], Index: i})
			}
			return
		}
	}
}

func (s *Session) updateCursor(p Pointer) {
	s.room.UpdatePresence(collab.PresencePayload{
		Cursor: &collab.CursorPos{X: p.ScreenX, Y: p.ScreenY},
	})
}

func (s *Session) emit(key Key, change Change) {
	if err := s.hooks.Emit(context.Background(), key, change); err != nil {
		slog.Debug("emit change event", "key", key, "error", err)
	}
}
