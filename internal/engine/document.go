package engine

import (
	"context"
	"fmt"
	"time"

	"blockdoc/internal/domain"
)

// Version is stamped on saved documents.
const Version = "blockdoc/1"

// Load replaces the document with doc. Every block is composed before the
// current content is dropped, so a cancelled load leaves the document as it
// was. An empty document renders as one default block.
func (e *Engine) Load(ctx context.Context, doc domain.Document) error {
	defer e.group("load")()
	return e.render(ctx, doc)
}

func (e *Engine) render(ctx context.Context, doc domain.Document) error {
	built, err := e.composeAll(ctx, doc.Blocks, false)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if len(built) == 0 {
		c, err := e.composeDefault(ctx)
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}
		built = append(built, c)
	}

	e.blocks.Clear()
	e.instances = make(map[string]domain.Instance, len(built))
	e.placeAll(ctx, built, 0)
	e.current = ""
	e.settle()
	e.emit(ctx, EventDocumentRendered, DocumentEvent{Blocks: e.blocks.Len()})
	return nil
}

// Save serializes the document through the tool instances.
func (e *Engine) Save(ctx context.Context) (domain.Document, error) {
	doc := domain.Document{
		Time:    time.Now().UnixMilli(),
		Version: Version,
		Blocks:  make([]domain.SerializedBlock, 0, e.blocks.Len()),
	}
	for _, b := range e.blocks.Blocks() {
		s, err := e.serialize(ctx, b)
		if err != nil {
			return domain.Document{}, fmt.Errorf("save %q: %w", b.ID, err)
		}
		doc.Blocks = append(doc.Blocks, s)
	}
	return doc, nil
}

// Snapshot captures the records as they are, without asking the tools.
// Stubs stay stubs so a restore does not need the missing tool.
func (e *Engine) Snapshot() domain.Document {
	doc := domain.Document{Blocks: make([]domain.SerializedBlock, 0, e.blocks.Len())}
	for _, b := range e.blocks.Blocks() {
		doc.Blocks = append(doc.Blocks, domain.SerializedBlock{
			ID:      b.ID,
			Type:    b.Tool,
			Data:    b.Data.Clone(),
			Tunes:   domain.CloneTunes(b.Tunes),
			Parent:  b.ParentID,
			Content: append([]string(nil), b.ChildIDs...),
		})
	}
	return doc
}

// Restore renders a snapshot without opening a history group. It is the
// replay path of the history bridge.
func (e *Engine) Restore(ctx context.Context, doc domain.Document) error {
	current := e.current
	if err := e.render(ctx, doc); err != nil {
		return err
	}
	if e.blocks.IndexOf(current) >= 0 {
		e.current = current
	}
	return nil
}
