package service

import (
	"context"
	"errors"
	"sync"
)

// ErrSaveInProgress is returned when a document is saved while an earlier
// save of it has not finished, for instance an autosave tick racing an
// explicit save.
var ErrSaveInProgress = errors.New("save already in progress")

// SaveGuard serializes saves per document. Each in-flight save owns a
// channel that is closed when it ends.
type SaveGuard struct {
	mu       sync.Mutex
	inFlight map[string]chan struct{}
}

// Acquire claims docID. The returned release must be called once the save
// ends; ok is false when docID is already being saved.
func (g *SaveGuard) Acquire(docID string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight == nil {
		g.inFlight = make(map[string]chan struct{})
	}
	if _, busy := g.inFlight[docID]; busy {
		return nil, false
	}
	done := make(chan struct{})
	g.inFlight[docID] = done

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, docID)
			g.mu.Unlock()
			close(done)
		})
	}, true
}

// Busy reports whether docID is being saved.
func (g *SaveGuard) Busy(docID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inFlight[docID]
	return ok
}

// WaitAll blocks until no save is in flight or ctx is done.
func (g *SaveGuard) WaitAll(ctx context.Context) error {
	for {
		g.mu.Lock()
		var next chan struct{}
		for _, ch := range g.inFlight {
			next = ch
			break
		}
		g.mu.Unlock()
		if next == nil {
			return nil
		}
		select {
		case <-next:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
