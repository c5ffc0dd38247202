package service

import (
	"context"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from the render layer
// ─────────────────────────────────────────────────────────────

// EventEmitter receives document change notifications for whatever renders
// the blocks (an editor frontend, an MCP client, a log).
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// Service-level events. Engine events (block:inserted, ...) are forwarded
// under their own names wrapped in a Change.
const (
	EventDocumentOpened   = "document:opened"
	EventDocumentSaved    = "document:saved"
	EventDocumentClosed   = "document:closed"
	EventDocumentReloaded = "document:reloaded"
)

// Change wraps an engine event with the document it happened in.
type Change struct {
	DocID string `json:"docId"`
	Data  any    `json:"data,omitempty"`
}

// NoopEmitter drops every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(context.Context, string, any) {}

// MockEmitter is a test-friendly EventEmitter that records all calls. It is
// safe for use from the autosave and watch goroutines.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Count returns how many times event was emitted.
func (m *MockEmitter) Count(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Events {
		if e.Event == event {
			n++
		}
	}
	return n
}
