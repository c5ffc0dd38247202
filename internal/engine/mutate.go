package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"blockdoc/internal/domain"
)

// Delete removes the block with id and returns the index where the caret
// should land. Removing the last block leaves one empty default block.
func (e *Engine) Delete(ctx context.Context, id string) (int, error) {
	i := e.blocks.IndexOf(id)
	if i < 0 {
		return 0, fmt.Errorf("delete %q: %w", id, domain.ErrNotFound)
	}
	return e.DeleteAt(ctx, i)
}

// DeleteAt removes the block at index i. See Delete.
func (e *Engine) DeleteAt(ctx context.Context, i int) (int, error) {
	n := e.blocks.Len()
	if i < 0 || i >= n {
		return 0, &domain.IndexError{Op: "delete", Index: i, Len: n}
	}

	var refill *composed
	if n == 1 {
		c, err := e.composeDefault(ctx)
		if err != nil {
			return 0, fmt.Errorf("delete: %w", err)
		}
		refill = c
	}

	defer e.group("delete")()
	removed, err := e.blocks.Remove(i)
	if err != nil {
		return 0, err
	}
	delete(e.instances, removed.ID)
	e.emit(ctx, EventBlockRemoved, BlockEvent{ID: removed.ID, Tool: removed.Tool, Index: i})

	if refill != nil {
		if _, err := e.place(refill, 0, false); err != nil {
			return 0, err
		}
		e.emit(ctx, EventBlockInserted, BlockEvent{ID: refill.block.ID, Tool: refill.block.Tool, Index: 0})
	}

	hint := i - 1
	if hint < 0 {
		hint = 0
	}
	if removed.ID == e.current || e.blocks.IndexOf(e.current) < 0 {
		e.current = e.IDAt(hint)
	}
	e.settle()
	return hint, nil
}

// Move relocates the block at from to index to. Both indices must be in
// range; Move(k, k) does nothing.
func (e *Engine) Move(ctx context.Context, to, from int) error {
	n := e.blocks.Len()
	if from < 0 || from >= n {
		return &domain.IndexError{Op: "move", Index: from, Len: n - 1}
	}
	if to < 0 || to >= n {
		return &domain.IndexError{Op: "move", Index: to, Len: n - 1}
	}
	if from == to {
		return nil
	}

	defer e.group("move")()
	b, _ := e.blocks.At(from)
	if err := e.blocks.Move(from, to); err != nil {
		return err
	}
	e.settle()
	e.emit(ctx, EventBlockMoved, BlockEvent{ID: b.ID, Tool: b.Tool, Index: to, From: from})
	return nil
}

// Reparent nests id under parentID, or lifts it to the top level when
// parentID is empty.
func (e *Engine) Reparent(ctx context.Context, id, parentID string) error {
	b, i, err := e.mustGet("reparent", id)
	if err != nil {
		return err
	}
	if b.ParentID == parentID {
		return nil
	}

	defer e.group("reparent")()
	if err := e.blocks.SetParent(id, parentID); err != nil {
		return fmt.Errorf("reparent: %w", err)
	}
	e.settle()
	e.emit(ctx, EventBlockChanged, BlockEvent{ID: id, Tool: b.Tool, Index: i})
	return nil
}

// Clear removes every block and leaves one empty default block.
func (e *Engine) Clear(ctx context.Context) error {
	c, err := e.composeDefault(ctx)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}

	defer e.group("clear")()
	e.blocks.Clear()
	e.instances = make(map[string]domain.Instance)
	if _, err := e.place(c, 0, false); err != nil {
		return err
	}
	e.current = c.block.ID
	e.settle()
	e.emit(ctx, EventDocumentCleared, DocumentEvent{Blocks: 1})
	return nil
}

// Convert turns the block into targetTool through the source export and
// target import transforms. overrides are laid over the imported data. The
// converted block takes the same position under a new id.
func (e *Engine) Convert(ctx context.Context, id, targetTool string, overrides domain.Data) (*Handle, error) {
	b, i, err := e.mustGet("convert", id)
	if err != nil {
		return nil, err
	}
	dst, ok := e.tools.Get(targetTool)
	if !ok {
		return nil, fmt.Errorf("convert %q to %q: %w", id, targetTool, domain.ErrUnknownTool)
	}
	data, err := e.currentData(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("convert %q: %w", id, err)
	}
	imported, err := e.transfer(b.Tool, dst, data)
	if err != nil {
		return nil, err
	}
	for k, v := range overrides.Clone() {
		imported[k] = v
	}

	c, err := e.compose(ctx, recipe{
		Tool:     dst.Name(),
		Data:     imported,
		Tunes:    b.Tunes,
		ParentID: b.ParentID,
	})
	if err != nil {
		return nil, fmt.Errorf("convert %q: %w", id, err)
	}

	defer e.group("convert")()
	if _, err := e.place(c, i, true); err != nil {
		return nil, fmt.Errorf("convert %q: %w", id, err)
	}
	if !dst.SupportsNesting() {
		for _, child := range e.blocks.ChildrenOf(c.block.ID) {
			if err := e.blocks.SetParent(child.ID, c.block.ParentID); err != nil {
				e.log.Error("lift child of converted block", zap.String("id", child.ID), zap.String("parent", c.block.ParentID), zap.Error(err))
				return nil, fmt.Errorf("convert %q: lift child %q: %w", id, child.ID, err)
			}
		}
	}
	e.current = c.block.ID
	e.settle()
	e.emit(ctx, EventBlockChanged, BlockEvent{ID: c.block.ID, Tool: c.block.Tool, Index: i})
	return e.handle(c.block.ID), nil
}

// transfer exports data from the source tool and imports it into dst.
func (e *Engine) transfer(srcName string, dst domain.Tool, data domain.Data) (domain.Data, error) {
	var src domain.ConversionConfig
	if t, ok := e.tools.Get(srcName); ok && srcName != domain.StubTool {
		src = t.Conversion()
	}
	dc := dst.Conversion()
	if !src.CanExport() || !dc.CanImport() {
		return nil, &domain.ConversionError{
			Source:        srcName,
			Target:        dst.Name(),
			MissingExport: !src.CanExport(),
			MissingImport: !dc.CanImport(),
		}
	}
	text, err := src.ExportText(data)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", srcName, err)
	}
	out, err := dc.ImportText(text)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", dst.Name(), err)
	}
	if out == nil {
		out = domain.Data{}
	}
	return out, nil
}

// SplitInput describes a split at the caret.
type SplitInput struct {
	ID        string      // block being split
	Truncated domain.Data // what stays in the block
	NewTool   string      // "" selects the default tool
	NewData   domain.Data // what moves to the new block
	Index     *int        // nil places the new block right after
}

// Split updates the block with the part before the caret and inserts a new
// block with the rest, as one history group. The group stays open until the
// next idle tick so follow-up edits in reaction to the split join it. If the
// insert half fails the update is rolled back.
func (e *Engine) Split(ctx context.Context, in SplitInput) (*Handle, error) {
	b, i, err := e.mustGet("split", in.ID)
	if err != nil {
		return nil, err
	}
	at := i + 1
	if in.Index != nil {
		at = *in.Index
	}
	if err := e.checkInsertIndex("split", at); err != nil {
		return nil, err
	}

	head, err := e.compose(ctx, recipe{ID: b.ID, Tool: b.Tool, Data: in.Truncated, Tunes: b.Tunes, ParentID: b.ParentID})
	if err != nil {
		return nil, fmt.Errorf("split %q: %w", in.ID, err)
	}

	defer e.groupDeferred("split")()
	oldInst := e.instances[b.ID]
	if _, err := e.place(head, i, true); err != nil {
		return nil, fmt.Errorf("split %q: %w", in.ID, err)
	}
	rollback := func() {
		_, _, _ = e.blocks.Insert(b, i, true)
		if oldInst != nil {
			e.instances[b.ID] = oldInst
		}
		e.settle()
	}

	tail, err := e.compose(ctx, recipe{Tool: in.NewTool, Data: in.NewData, ParentID: b.ParentID})
	if err != nil {
		rollback()
		return nil, fmt.Errorf("split %q: %w", in.ID, err)
	}
	if _, err := e.place(tail, at, false); err != nil {
		rollback()
		return nil, fmt.Errorf("split %q: %w", in.ID, err)
	}

	e.current = tail.block.ID
	e.settle()
	e.emit(ctx, EventBlockChanged, BlockEvent{ID: b.ID, Tool: head.block.Tool, Index: i})
	e.emit(ctx, EventBlockInserted, BlockEvent{ID: tail.block.ID, Tool: tail.block.Tool, Index: at})
	return e.handle(tail.block.ID), nil
}

// Merge appends the content of sourceID to targetID and removes the source.
// Blocks of different tools are merged after converting the source into
// the target's shape.
func (e *Engine) Merge(ctx context.Context, targetID, sourceID string) error {
	if targetID == sourceID {
		return fmt.Errorf("merge %q into itself: %w", targetID, domain.ErrMergeUnsupported)
	}
	t, ti, err := e.mustGet("merge", targetID)
	if err != nil {
		return err
	}
	s, _, err := e.mustGet("merge", sourceID)
	if err != nil {
		return err
	}
	tt, ok := e.tools.Get(t.Tool)
	if !ok || t.Tool == domain.StubTool {
		return fmt.Errorf("merge into %q: %w", t.Tool, domain.ErrMergeUnsupported)
	}
	merger, ok := tt.(domain.Merger)
	if !ok {
		return fmt.Errorf("merge into %q: %w", t.Tool, domain.ErrMergeUnsupported)
	}

	incoming, err := e.currentData(ctx, s)
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	if s.Tool != t.Tool {
		if incoming, err = e.transfer(s.Tool, tt, incoming); err != nil {
			return fmt.Errorf("merge: %w", err)
		}
	}
	current, err := e.currentData(ctx, t)
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	merged, err := merger.Merge(ctx, current, incoming)
	if err != nil {
		return fmt.Errorf("merge %s: %w", t.Tool, err)
	}
	c, err := e.compose(ctx, recipe{ID: t.ID, Tool: t.Tool, Data: merged, Tunes: t.Tunes, ParentID: t.ParentID})
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}

	defer e.group("merge")()
	if _, err := e.place(c, ti, true); err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	si := e.blocks.IndexOf(sourceID)
	removed, err := e.blocks.Remove(si)
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	delete(e.instances, removed.ID)

	e.current = targetID
	e.settle()
	e.emit(ctx, EventBlockChanged, BlockEvent{ID: targetID, Tool: t.Tool, Index: e.blocks.IndexOf(targetID)})
	e.emit(ctx, EventBlockRemoved, BlockEvent{ID: sourceID, Tool: removed.Tool, Index: si})
	return nil
}
