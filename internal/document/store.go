package document

import "sync"

// Store holds the ordered stroke history and the redo buffer for one room.
// It has no network awareness: callers that mutate locally are responsible
// for broadcasting the matching protocol event.
//
// All mutations are serialized through the mutex so the store can be shared
// between the interaction goroutine and the event-receive goroutine.
type Store struct {
	mu      sync.Mutex
	history []Stroke
	redo    []Stroke
	working int // history index of the in-progress stroke, -1 when none
}

func NewStore() *Store {
	return &Store{working: -1}
}

// Append pushes a locally committed stroke and clears the redo buffer
// (standard linear undo discipline: new edits invalidate redo).
func (s *Store) Append(stroke Stroke) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, stroke.Clone())
	s.redo = s.redo[:0]
}

// AppendRemote pushes a stroke received from a peer. The local redo buffer
// is left untouched: a peer's edit does not invalidate this client's
// undone work.
func (s *Store) AppendRemote(stroke Stroke) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, stroke.Clone())
}

// RemoveAt splices the stroke at index out of the history. Out-of-range
// indices are a no-op reported as a failed match. Erased strokes do not
// enter the redo buffer; erasure is not undoable.
func (s *Store) RemoveAt(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.history) {
		return false
	}
	if index == s.working {
		s.working = -1
	} else if index < s.working {
		s.working--
	}
	s.history = append(s.history[:index], s.history[index+1:]...)
	return true
}

// Undo moves the newest history entry onto the redo buffer.
func (s *Store) Undo() (Stroke, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return Stroke{}, false
	}
	if s.working == len(s.history)-1 {
		s.working = -1
	}
	last := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	s.redo = append(s.redo, last)
	return last.Clone(), true
}

// Redo moves the newest redo entry back onto the history.
func (s *Store) Redo() (Stroke, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.redo) == 0 {
		return Stroke{}, false
	}
	last := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.history = append(s.history, last)
	return last.Clone(), true
}

// Clear empties both the history and the redo buffer.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = s.history[:0]
	s.redo = s.redo[:0]
	s.working = -1
}

// BeginStroke appends a locally started pen stroke and marks it as the
// working stroke. The in-progress stroke lives in the history from the first
// pointer-down, but is addressed through the working mark rather than a raw
// index: remote splices that shift or remove it retarget the mark, so
// ExtendStroke and FinishStroke keep following the right stroke. Clears the
// redo buffer like Append.
func (s *Store) BeginStroke(stroke Stroke) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, stroke.Clone())
	s.redo = s.redo[:0]
	s.working = len(s.history) - 1
}

// ExtendStroke adds a point to the working pen stroke. Reports false when
// there is no working stroke, either because none was begun or because a
// remote event removed it mid-gesture.
func (s *Store) ExtendStroke(p Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.working < 0 || s.history[s.working].Tool != ToolPen {
		return false
	}
	s.history[s.working].Points = append(s.history[s.working].Points, p)
	return true
}

// FinishStroke clears the working mark and returns a copy of the finished
// stroke. Reports false when the stroke no longer exists.
func (s *Store) FinishStroke() (Stroke, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.working
	s.working = -1
	if idx < 0 {
		return Stroke{}, false
	}
	return s.history[idx].Clone(), true
}

// AbortStroke removes the working stroke from the history, if it still
// exists. Used when a gesture is cancelled before release.
func (s *Store) AbortStroke() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.working
	s.working = -1
	if idx < 0 {
		return false
	}
	s.history = append(s.history[:idx], s.history[idx+1:]...)
	return true
}

// At returns a copy of the stroke at index.
func (s *Store) At(index int) (Stroke, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.history) {
		return Stroke{}, false
	}
	return s.history[index].Clone(), true
}

// Len returns the current history length.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// RedoLen returns the current redo buffer length.
func (s *Store) RedoLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redo)
}

// History returns a deep copy of the committed strokes in commit order.
func (s *Store) History() []Stroke {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneStrokes(s.history)
}

// RedoStack returns a deep copy of the redo buffer, oldest first.
func (s *Store) RedoStack() []Stroke {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneStrokes(s.redo)
}

// Replace swaps in a full history and redo buffer. Used when seeding local
// state from the room's welcome message.
func (s *Store) Replace(history, redo []Stroke) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = cloneStrokes(history)
	s.redo = cloneStrokes(redo)
	s.working = -1
}

func cloneStrokes(in []Stroke) []Stroke {
	out := make([]Stroke, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
