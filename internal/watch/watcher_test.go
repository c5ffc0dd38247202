package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"blockdoc/internal/domain"
	"blockdoc/internal/storage"
	"blockdoc/internal/watch"
)

type change struct {
	id  string
	doc *domain.Document
}

func TestWatcher_ReportsMirrorChanges(t *testing.T) {
	dir := t.TempDir()
	got := make(chan change, 4)
	w, err := watch.New(dir, 20*time.Millisecond, func(_ context.Context, id string, doc *domain.Document) {
		got <- change{id, doc}
	}, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}
	doc := &domain.Document{Blocks: []domain.SerializedBlock{{ID: "a", Type: "paragraph", Data: domain.Data{"text": "hi"}}}}
	if err := storage.WriteMirror(dir, "doc-1", doc); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if c.id != "doc-1" {
			t.Fatalf("expected doc-1, got %q", c.id)
		}
		if len(c.doc.Blocks) != 1 || c.doc.Blocks[0].Data["text"] != "hi" {
			t.Errorf("unexpected document: %+v", c.doc)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestWatcher_SkipsUnreadableMirror(t *testing.T) {
	dir := t.TempDir()
	got := make(chan string, 4)
	w, err := watch.New(dir, 20*time.Millisecond, func(_ context.Context, id string, _ *domain.Document) {
		got <- id
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case id := <-got:
		t.Fatalf("unexpected reload of %q", id)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_CloseIsClean(t *testing.T) {
	w, err := watch.New(t.TempDir(), 0, func(context.Context, string, *domain.Document) {}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
