package service

import (
	"context"
	"sync"

	"blockdoc/internal/engine"
	"blockdoc/internal/history"
)

// Session is one open document. The engine is single-threaded, so every
// access goes through the session lock.
type Session struct {
	mu      sync.Mutex
	id      string
	engine  *engine.Engine
	history *history.Snapshots
	queue   *history.TaskQueue

	changes uint64 // bumped by every engine event
	saved   uint64 // value of changes at the last save
}

// ID returns the document id.
func (s *Session) ID() string { return s.id }

// Do runs fn with exclusive access to the engine, then runs the tasks
// deferred during fn as if the editor went idle.
func (s *Session) Do(ctx context.Context, fn func(ctx context.Context, e *engine.Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.queue.RunIdle()
	return fn(ctx, s.engine)
}

// Undo reverts the latest history group and returns the position marked
// before it.
func (s *Session) Undo(ctx context.Context) (history.Position, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Undo(ctx)
}

// Redo re-applies the next history group.
func (s *Session) Redo(ctx context.Context) (history.Position, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Redo(ctx)
}

// HistoryLabels returns the labels of the undoable and redoable groups.
func (s *Session) HistoryLabels() (undo, redo []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.history.Entries()
	cursor := s.history.Cursor()
	for i, e := range entries {
		if i < cursor {
			undo = append(undo, e.Label)
		} else {
			redo = append(redo, e.Label)
		}
	}
	return undo, redo
}

// Dirty reports whether the document changed since it was opened or last
// saved.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changes != s.saved
}

// tap counts engine events and forwards them, tagged with the document id.
// It runs inside engine calls, so the session lock is already held.
type tap struct {
	s    *Session
	next EventEmitter
}

func (t tap) Emit(ctx context.Context, event string, data any) {
	t.s.changes++
	t.next.Emit(ctx, event, Change{DocID: t.s.id, Data: data})
}
