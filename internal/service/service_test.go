package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockdoc/internal/domain"
	"blockdoc/internal/engine"
	"blockdoc/internal/service"
	"blockdoc/internal/storage"
	"blockdoc/internal/tools"
)

// ─────────────────────────────────────────────────────────────
// SaveGuard tests
// ─────────────────────────────────────────────────────────────

func TestSaveGuard_OneSavePerDocument(t *testing.T) {
	var g service.SaveGuard

	release1, ok := g.Acquire("doc-1")
	require.True(t, ok)
	_, ok = g.Acquire("doc-1")
	assert.False(t, ok, "second save of the same document")
	release2, ok := g.Acquire("doc-2")
	require.True(t, ok)
	assert.True(t, g.Busy("doc-1"))

	release1()
	release1()
	release2()
	assert.False(t, g.Busy("doc-1"))

	release, ok := g.Acquire("doc-1")
	require.True(t, ok)
	release()
}

func TestSaveGuard_WaitAllReturnsWhenSavesEnd(t *testing.T) {
	var g service.SaveGuard
	release, ok := g.Acquire("doc-a")
	require.True(t, ok)

	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.WaitAll(ctx))
	assert.False(t, g.Busy("doc-a"))
}

func TestSaveGuard_WaitAllHonoursContext(t *testing.T) {
	var g service.SaveGuard
	_, ok := g.Acquire("stuck")
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, g.WaitAll(ctx), context.DeadlineExceeded)
}

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "test:event", map[string]string{"foo": "bar"})
	m.Emit(ctx, "test:event", nil)
	m.Emit(ctx, "test:other", nil)

	if len(m.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(m.Events))
	}
	if m.Count("test:event") != 2 {
		t.Errorf("expected 2 test:event, got %d", m.Count("test:event"))
	}
}

// ─────────────────────────────────────────────────────────────
// DocumentService
// ─────────────────────────────────────────────────────────────

type fixture struct {
	svc     *service.DocumentService
	undo    *storage.UndoStore
	emitter *service.MockEmitter
	dataDir string
}

func newFixture(t *testing.T, mirror bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "test.db"), filepath.Join(dir, "docs"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := tools.NewRegistry()
	tools.RegisterBuiltins(reg)
	undo := storage.NewUndoStore(db, 0, nil)
	em := &service.MockEmitter{}
	svc := service.NewDocumentService(storage.NewDocumentStore(db), undo, reg, em, service.Options{
		HistoryLimit:    50,
		DebugInvariants: true,
		DataDir:         db.DataDir(),
		Mirror:          mirror,
	}, nil)
	return &fixture{svc: svc, undo: undo, emitter: em, dataDir: db.DataDir()}
}

func appendText(t *testing.T, sess *service.Session, text string) string {
	t.Helper()
	var id string
	err := sess.Do(context.Background(), func(ctx context.Context, e *engine.Engine) error {
		at := e.Len()
		h, err := e.Insert(ctx, engine.InsertInput{Tool: "paragraph", Data: domain.Data{"text": text}, Index: &at})
		if err != nil {
			return err
		}
		id = h.ID()
		return nil
	})
	require.NoError(t, err)
	return id
}

func texts(t *testing.T, sess *service.Session) []string {
	t.Helper()
	var out []string
	require.NoError(t, sess.Do(context.Background(), func(ctx context.Context, e *engine.Engine) error {
		for _, h := range e.Blocks() {
			s, _ := h.Data().String("text")
			out = append(out, s)
		}
		return nil
	}))
	return out
}

func TestDocumentService_CreateSaveReopen(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	sess, err := f.svc.Create(ctx)
	require.NoError(t, err)
	assert.True(t, sess.Dirty(), "a new document is unsaved")

	require.NoError(t, sess.Do(ctx, func(ctx context.Context, e *engine.Engine) error {
		h, _ := e.GetByIndex(0)
		_, err := e.Update(ctx, h.ID(), domain.Data{"text": "Shopping list"}, nil)
		return err
	}))
	appendText(t, sess, "milk")

	require.NoError(t, f.svc.Save(ctx, sess.ID()))
	assert.False(t, sess.Dirty())

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Shopping list", list[0].Title)
	assert.Equal(t, 2, list[0].BlockCount)

	require.NoError(t, f.svc.Close(ctx, sess.ID(), false))
	_, open := f.svc.Get(sess.ID())
	assert.False(t, open)

	again, err := f.svc.Open(ctx, sess.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{"Shopping list", "milk"}, texts(t, again))
	assert.False(t, again.Dirty(), "a freshly opened document is clean")
	assert.Equal(t, 1, f.emitter.Count(service.EventDocumentSaved))
}

func TestDocumentService_OpenMissing(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.Open(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentService_UndoAfterOpenStopsAtLoad(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	sess, err := f.svc.Create(ctx)
	require.NoError(t, err)
	appendText(t, sess, "one")
	appendText(t, sess, "two")

	undo, redo := sess.HistoryLabels()
	assert.Equal(t, []string{"insert", "insert"}, undo)
	assert.Empty(t, redo)

	_, ok, err := sess.Undo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"", "one"}, texts(t, sess))

	_, ok, _ = sess.Undo(ctx)
	require.True(t, ok)
	_, ok, _ = sess.Undo(ctx)
	assert.False(t, ok, "the initial load is not undoable")
	assert.Equal(t, []string{""}, texts(t, sess))

	_, ok, _ = sess.Redo(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"", "one"}, texts(t, sess))
}

func TestDocumentService_HistoryIsJournaled(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	sess, err := f.svc.Create(ctx)
	require.NoError(t, err)
	appendText(t, sess, "x")
	appendText(t, sess, "y")

	tree, err := f.undo.LoadTree(sess.ID())
	require.NoError(t, err)
	require.NotNil(t, tree)
	require.Len(t, tree.Nodes, 3)
	assert.Equal(t, "load", tree.Nodes[0].Label)
	assert.Nil(t, tree.Nodes[0].ParentID)
	assert.Equal(t, "insert", tree.Nodes[1].Label)
	require.NotNil(t, tree.Nodes[1].ParentID, "edits hang from the load node")
	assert.Equal(t, tree.Nodes[0].ID, *tree.Nodes[1].ParentID)
	require.NotNil(t, tree.Nodes[2].ParentID)
	assert.Equal(t, tree.Nodes[1].ID, *tree.Nodes[2].ParentID)
	assert.Equal(t, tree.Nodes[2].ID, tree.CurrentID)

	for range 2 {
		_, ok, err := sess.Undo(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}
	tree, err = f.undo.LoadTree(sess.ID())
	require.NoError(t, err)
	assert.Equal(t, tree.RootID, tree.CurrentID)
	assert.Equal(t, tree.Nodes[0].ID, tree.RootID)
}

func TestDocumentService_ImportExport(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	src := `{"blocks":[
		{"id":"a","type":"header","data":{"text":"Title","level":1}},
		{"id":"b","type":"table","data":{"rows":[["x"]]}},
		{"id":"c","type":"paragraph","data":{"text":"body"}}
	]}`
	sess, err := f.svc.ImportJSON(ctx, "imported", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "imported", sess.ID())
	assert.True(t, sess.Dirty())

	out, err := f.svc.ExportJSON(ctx, "imported")
	require.NoError(t, err)

	var doc domain.Document
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Len(t, doc.Blocks, 3)
	assert.Equal(t, "table", doc.Blocks[1].Type, "unknown tools round-trip through the stub")
	assert.Equal(t, "b", doc.Blocks[1].ID)
	assert.Equal(t, engine.Version, doc.Version)
}

func TestDocumentService_ImportIntoOpenSessionIsUndoable(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	sess, err := f.svc.Create(ctx)
	require.NoError(t, err)
	appendText(t, sess, "before")

	_, err = f.svc.ImportJSON(ctx, sess.ID(), []byte(`{"blocks":[{"id":"z","type":"paragraph","data":{"text":"after"}}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"after"}, texts(t, sess))

	_, ok, err := sess.Undo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"", "before"}, texts(t, sess))
}

func TestDocumentService_ImportRejectsGarbage(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.ImportJSON(context.Background(), "", []byte("{"))
	require.Error(t, err)
}

func TestDocumentService_ReloadSkipsIdenticalContent(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	sess, err := f.svc.ImportJSON(ctx, "d", []byte(`{"blocks":[{"id":"a","type":"paragraph","data":{"text":"x"}}]}`))
	require.NoError(t, err)

	same := &domain.Document{Blocks: []domain.SerializedBlock{{ID: "a", Type: "paragraph", Data: domain.Data{"text": "x"}}}}
	changed, err := f.svc.Reload(ctx, "d", same)
	require.NoError(t, err)
	assert.False(t, changed)

	other := &domain.Document{Blocks: []domain.SerializedBlock{{ID: "a", Type: "paragraph", Data: domain.Data{"text": "edited"}}}}
	changed, err = f.svc.Reload(ctx, "d", other)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"edited"}, texts(t, sess))
	assert.Equal(t, 1, f.emitter.Count(service.EventDocumentReloaded))

	changed, err = f.svc.Reload(ctx, "not-open", other)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestDocumentService_MirrorAndDelete(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	sess, err := f.svc.Create(ctx)
	require.NoError(t, err)
	appendText(t, sess, "mirrored")
	require.NoError(t, f.svc.Save(ctx, sess.ID()))

	path := storage.MirrorPath(f.dataDir, sess.ID())
	doc, err := storage.ReadMirror(path)
	require.NoError(t, err)
	assert.Len(t, doc.Blocks, 2)

	require.NoError(t, f.svc.Delete(ctx, sess.ID()))
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDocumentService_SaveAllOnlyDirty(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	a, err := f.svc.Create(ctx)
	require.NoError(t, err)
	b, err := f.svc.Create(ctx)
	require.NoError(t, err)

	n, err := f.svc.SaveAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	appendText(t, b, "changed")
	n, err = f.svc.SaveAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, a.Dirty())
	assert.False(t, b.Dirty())
}

func TestDocumentService_CloseSavesWhenAsked(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	sess, err := f.svc.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, f.svc.Close(ctx, sess.ID(), true))

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// ─────────────────────────────────────────────────────────────
// Autosaver
// ─────────────────────────────────────────────────────────────

func TestAutosaver_TickSavesDirty(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	sess, err := f.svc.Create(ctx)
	require.NoError(t, err)

	a := service.NewAutosaver(f.svc, "@every 1h", nil)
	assert.Equal(t, 1, a.Tick(ctx))
	assert.False(t, sess.Dirty())
	assert.Equal(t, 0, a.Tick(ctx))
}

func TestAutosaver_Schedule(t *testing.T) {
	f := newFixture(t, false)

	bad := service.NewAutosaver(f.svc, "not a schedule", nil)
	require.Error(t, bad.Start(context.Background()))

	good := service.NewAutosaver(f.svc, "@every 1h", nil)
	require.NoError(t, good.Start(context.Background()))
	good.Stop()
	good.Stop()
}
