package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blockdoc/internal/domain"
	"blockdoc/internal/engine"
	"blockdoc/internal/history"
	"blockdoc/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Document Service: open documents, persistence, import/export
// ─────────────────────────────────────────────────────────────

// Options tunes the sessions a DocumentService opens.
type Options struct {
	HistoryLimit    int
	DebugInvariants bool
	ReadOnly        bool
	DataDir         string // JSON mirrors; empty disables them
	Mirror          bool
}

// DocumentService keeps the open sessions and moves documents between them
// and the store.
type DocumentService struct {
	store   domain.DocumentStore
	journal history.Journal
	tools   domain.ToolRegistry
	emitter EventEmitter
	opts    Options
	log     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	saving   SaveGuard
}

// NewDocumentService creates a DocumentService. journal may be nil.
func NewDocumentService(store domain.DocumentStore, journal history.Journal, tools domain.ToolRegistry, emitter EventEmitter, opts Options, log *zap.Logger) *DocumentService {
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DocumentService{
		store:    store,
		journal:  journal,
		tools:    tools,
		emitter:  emitter,
		opts:     opts,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// DataDir returns the mirror directory.
func (s *DocumentService) DataDir() string { return s.opts.DataDir }

// newSession builds a session around doc. The initial load is the root of
// the undo tree and cannot itself be undone.
func (s *DocumentService) newSession(ctx context.Context, id string, doc domain.Document) (*Session, error) {
	sess := &Session{id: id, queue: history.NewTaskQueue()}

	var hopts []history.Option
	hopts = append(hopts, history.WithLogger(s.log))
	if s.journal != nil {
		hopts = append(hopts, history.WithJournal(id, s.journal))
	}
	sess.history = history.NewSnapshots(s.opts.HistoryLimit, hopts...)

	sess.engine = engine.New(s.tools,
		engine.WithHistory(sess.history, sess.queue),
		engine.WithEmitter(tap{s: sess, next: s.emitter}),
		engine.WithLogger(s.log.With(zap.String("doc", id))),
		engine.WithDebugInvariants(s.opts.DebugInvariants),
		engine.WithReadOnly(s.opts.ReadOnly),
	)
	sess.history.Attach(sess.engine)

	if err := sess.engine.Load(ctx, doc); err != nil {
		return nil, err
	}
	sess.history.Reset()
	sess.saved = sess.changes
	return sess, nil
}

// Create opens a new, unsaved document holding one default block.
func (s *DocumentService) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	sess, err := s.newSession(ctx, id, domain.Document{})
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	sess.saved = sess.changes - 1 // never saved

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.log.Info("document created", zap.String("doc", id))
	s.emitter.Emit(ctx, EventDocumentOpened, Change{DocID: id})
	return sess, nil
}

// Open returns the session of id, loading the document from the store when
// it is not open yet.
func (s *DocumentService) Open(ctx context.Context, id string) (*Session, error) {
	if sess, ok := s.Get(id); ok {
		return sess, nil
	}

	doc, err := s.store.LoadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	sess, err := s.newSession(ctx, id, *doc)
	if err != nil {
		return nil, fmt.Errorf("open document %s: %w", id, err)
	}

	s.mu.Lock()
	if existing, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.sessions[id] = sess
	s.mu.Unlock()

	s.log.Info("document opened", zap.String("doc", id), zap.Int("blocks", len(doc.Blocks)))
	s.emitter.Emit(ctx, EventDocumentOpened, Change{DocID: id})
	return sess, nil
}

// Get returns an already open session.
func (s *DocumentService) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// OpenIDs returns the ids of the open documents, sorted.
func (s *DocumentService) OpenIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns the stored documents.
func (s *DocumentService) List(ctx context.Context) ([]domain.DocumentInfo, error) {
	return s.store.ListDocuments(ctx)
}

// Save writes the open document id to the store, and to its JSON mirror
// when mirroring is on.
func (s *DocumentService) Save(ctx context.Context, id string) error {
	sess, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("save %s: %w", id, domain.ErrNotFound)
	}
	release, ok := s.saving.Acquire(id)
	if !ok {
		return fmt.Errorf("save %s: %w", id, ErrSaveInProgress)
	}
	defer release()

	var doc domain.Document
	var at uint64
	err := sess.Do(ctx, func(ctx context.Context, e *engine.Engine) error {
		var err error
		doc, err = e.Save(ctx)
		at = sess.changes
		return err
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}

	if err := s.store.SaveDocument(ctx, id, titleOf(doc), &doc); err != nil {
		return err
	}
	if s.opts.Mirror && s.opts.DataDir != "" {
		if err := storage.WriteMirror(s.opts.DataDir, id, &doc); err != nil {
			s.log.Warn("mirror write failed", zap.String("doc", id), zap.Error(err))
		}
	}

	sess.mu.Lock()
	sess.saved = at
	sess.mu.Unlock()

	s.log.Debug("document saved", zap.String("doc", id), zap.Int("blocks", len(doc.Blocks)))
	s.emitter.Emit(ctx, EventDocumentSaved, Change{DocID: id})
	return nil
}

// SaveAll saves every dirty session and returns how many were written.
func (s *DocumentService) SaveAll(ctx context.Context) (int, error) {
	var errs []error
	n := 0
	for _, id := range s.OpenIDs() {
		sess, ok := s.Get(id)
		if !ok || !sess.Dirty() {
			continue
		}
		if err := s.Save(ctx, id); err != nil {
			if errors.Is(err, ErrSaveInProgress) {
				// The running save covers it.
				continue
			}
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Close drops the session of id, saving it first when save is set and it
// has unsaved changes.
func (s *DocumentService) Close(ctx context.Context, id string, save bool) error {
	sess, ok := s.Get(id)
	if !ok {
		return nil
	}
	if save && sess.Dirty() {
		if err := s.Save(ctx, id); err != nil {
			return err
		}
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.emitter.Emit(ctx, EventDocumentClosed, Change{DocID: id})
	return nil
}

// Delete closes id without saving and removes it from the store.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	if err := s.Close(ctx, id, false); err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if s.opts.DataDir != "" {
		if err := os.Remove(storage.MirrorPath(s.opts.DataDir, id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("mirror remove failed", zap.String("doc", id), zap.Error(err))
		}
	}
	return nil
}

// ImportJSON loads a serialized document into id. An open session renders
// it as one undoable "load"; otherwise a new unsaved session is opened.
// An empty id imports under a fresh one.
func (s *DocumentService) ImportJSON(ctx context.Context, id string, data []byte) (*Session, error) {
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	if sess, ok := s.Get(id); ok {
		err := sess.Do(ctx, func(ctx context.Context, e *engine.Engine) error {
			return e.Load(ctx, doc)
		})
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", id, err)
		}
		return sess, nil
	}

	sess, err := s.newSession(ctx, id, doc)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", id, err)
	}
	sess.saved = sess.changes - 1

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	s.emitter.Emit(ctx, EventDocumentOpened, Change{DocID: id})
	return sess, nil
}

// ExportJSON serializes the open document id.
func (s *DocumentService) ExportJSON(ctx context.Context, id string) ([]byte, error) {
	sess, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("export %s: %w", id, domain.ErrNotFound)
	}
	var doc domain.Document
	err := sess.Do(ctx, func(ctx context.Context, e *engine.Engine) error {
		var err error
		doc, err = e.Save(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", id, err)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Reload replaces the open document id with doc when their blocks differ.
// It reports whether anything changed. The reload is undoable.
func (s *DocumentService) Reload(ctx context.Context, id string, doc *domain.Document) (bool, error) {
	sess, ok := s.Get(id)
	if !ok {
		return false, nil
	}
	changed := false
	err := sess.Do(ctx, func(ctx context.Context, e *engine.Engine) error {
		current, err := e.Save(ctx)
		if err != nil {
			return err
		}
		if sameBlocks(current, *doc) {
			return nil
		}
		changed = true
		return e.Load(ctx, *doc)
	})
	if err != nil {
		return false, fmt.Errorf("reload %s: %w", id, err)
	}
	if changed {
		s.log.Info("document reloaded from disk", zap.String("doc", id))
		s.emitter.Emit(ctx, EventDocumentReloaded, Change{DocID: id})
	}
	return changed, nil
}

// Shutdown saves every dirty session and waits for in-flight saves.
func (s *DocumentService) Shutdown(ctx context.Context) error {
	_, err := s.SaveAll(ctx)
	if werr := s.saving.WaitAll(ctx); werr != nil {
		s.log.Warn("shutdown before saves finished", zap.Error(werr))
	}
	return err
}

// titleOf names a document after the text of its first block.
func titleOf(doc domain.Document) string {
	const max = 60
	for _, b := range doc.Blocks {
		for _, key := range []string{"text", "code"} {
			t, ok := b.Data.String(key)
			if !ok {
				continue
			}
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if utf8.RuneCountInString(t) > max {
				t = string([]rune(t)[:max]) + "…"
			}
			return t
		}
	}
	return "Untitled"
}

func sameBlocks(a, b domain.Document) bool {
	ra, errA := json.Marshal(a.Blocks)
	rb, errB := json.Marshal(b.Blocks)
	return errA == nil && errB == nil && string(ra) == string(rb)
}
