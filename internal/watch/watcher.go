// Package watch reloads open documents when their JSON mirror is edited on
// disk by another program.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"blockdoc/internal/domain"
	"blockdoc/internal/storage"
)

// DefaultDebounce coalesces the bursts of events a single save produces.
const DefaultDebounce = 300 * time.Millisecond

// ChangeHandler is called with the decoded mirror after it settles.
type ChangeHandler func(ctx context.Context, docID string, doc *domain.Document)

// Watcher watches a mirror directory.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	onChange ChangeHandler
	debounce time.Duration
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New starts watching dir. The handler runs on a timer goroutine.
func New(dir string, debounce time.Duration, onChange ChangeHandler, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("create watch directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(absDir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", absDir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		watcher:  fw,
		dir:      absDir,
		onChange: onChange,
		debounce: debounce,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}
	go w.watchLoop()

	log.Info("watching document mirrors", zap.String("dir", absDir))
	return w, nil
}

// Close stops the watcher and any pending reloads.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done

	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = map[string]*time.Timer{}
	w.mu.Unlock()
	return err
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			if filepath.Dir(absPath) != w.dir {
				continue
			}
			if id := storage.MirrorID(absPath); id != "" {
				w.schedule(id, absPath)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// schedule (re)starts the debounce timer of a mirror.
func (w *Watcher) schedule(id, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[id]; ok {
		t.Stop()
	}
	w.timers[id] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, id)
		w.mu.Unlock()
		if w.ctx.Err() != nil {
			return
		}

		doc, err := storage.ReadMirror(path)
		if err != nil {
			w.log.Warn("mirror unreadable, skipping reload", zap.String("doc", id), zap.Error(err))
			return
		}
		w.log.Debug("mirror changed", zap.String("doc", id))
		w.onChange(w.ctx, id, doc)
	})
}
