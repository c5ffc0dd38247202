package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"blockdoc/internal/domain"
)

// InsertInput describes one block to insert.
type InsertInput struct {
	Tool     string // "" selects the default tool
	Data     domain.Data
	Tunes    map[string]domain.Data
	Index    *int // nil inserts after the current block
	Replace  bool
	ID       string // "" generates one
	ParentID string
}

// Insert composes a block and places it into the document.
func (e *Engine) Insert(ctx context.Context, in InsertInput) (*Handle, error) {
	at := e.defaultIndex()
	if in.Index != nil {
		at = *in.Index
	}
	if err := e.checkInsertIndex("insert", at); err != nil {
		return nil, err
	}
	if in.ID != "" {
		if j := e.blocks.IndexOf(in.ID); j >= 0 && !(in.Replace && j == at) {
			return nil, fmt.Errorf("insert: block id %q already in use", in.ID)
		}
	}
	parent := e.scrubParent(in.ID, in.ParentID)

	c, err := e.compose(ctx, recipe{
		ID:       in.ID,
		Tool:     in.Tool,
		Data:     in.Data,
		Tunes:    in.Tunes,
		ParentID: parent,
	})
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	defer e.group("insert")()
	replaced, err := e.place(c, at, in.Replace)
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	e.current = c.block.ID
	e.settle()

	if replaced != nil {
		e.emit(ctx, EventBlockChanged, BlockEvent{ID: c.block.ID, Tool: c.block.Tool, Index: at})
	} else {
		e.emit(ctx, EventBlockInserted, BlockEvent{ID: c.block.ID, Tool: c.block.Tool, Index: at})
	}
	return e.handle(c.block.ID), nil
}

// InsertMany inserts blocks at index keeping their relative order. Every
// block is composed before the document changes. Parent links are resolved
// once all blocks are in, so children may precede their parent in the input.
func (e *Engine) InsertMany(ctx context.Context, recs []domain.SerializedBlock, index int) ([]*Handle, error) {
	if err := e.checkInsertIndex("insert many", index); err != nil {
		return nil, err
	}
	built, err := e.composeAll(ctx, recs, true)
	if err != nil {
		return nil, fmt.Errorf("insert many: %w", err)
	}
	if len(built) == 0 {
		return nil, nil
	}

	defer e.group("insert many")()
	handles := e.placeAll(ctx, built, index)
	e.current = built[len(built)-1].block.ID
	e.settle()
	return handles, nil
}

// composeAll builds records for recs, renaming ids that collide with each
// other or, when keep is set, with the blocks already in the document.
func (e *Engine) composeAll(ctx context.Context, recs []domain.SerializedBlock, keep bool) ([]*composed, error) {
	seen := make(map[string]bool, len(recs))
	renamed := make(map[string]string)
	out := make([]*composed, 0, len(recs))
	for _, r := range recs {
		id := r.ID
		if id != "" && (seen[id] || (keep && e.blocks.IndexOf(id) >= 0)) {
			fresh := e.newID()
			e.log.Warn("duplicate block id, renaming", zap.String("id", id), zap.String("new", fresh))
			renamed[id] = fresh
			id = fresh
		}
		c, err := e.compose(ctx, recipe{
			ID:       id,
			Tool:     r.Type,
			Data:     r.Data,
			Tunes:    r.Tunes,
			ParentID: r.Parent,
		})
		if err != nil {
			return nil, err
		}
		seen[c.block.ID] = true
		c.content = r.Content
		out = append(out, c)
	}
	for _, c := range out {
		if to, ok := renamed[c.block.ParentID]; ok {
			c.block.ParentID = to
		}
	}
	return out, nil
}

// placeAll inserts composed records starting at index, then links parents.
func (e *Engine) placeAll(ctx context.Context, built []*composed, index int) []*Handle {
	handles := make([]*Handle, 0, len(built))
	for i, c := range built {
		// The index was validated and each insert grows the collection by
		// one, so this cannot fail.
		if _, err := e.place(c, index+i, false); err != nil {
			panic(fmt.Sprintf("insert many: %v", err))
		}
		handles = append(handles, e.handle(c.block.ID))
	}
	e.linkParents(built)
	for i, c := range built {
		e.emit(ctx, EventBlockInserted, BlockEvent{ID: c.block.ID, Tool: c.block.Tool, Index: index + i})
	}
	return handles
}

// linkParents applies the "content" lists of freshly inserted containers,
// drops dangling or cyclic parent links, and rebuilds the child caches.
func (e *Engine) linkParents(built []*composed) {
	for _, c := range built {
		for _, child := range c.content {
			if cb, ok := e.blocks.Get(child); ok && cb.ParentID == "" && cb.ID != c.block.ID {
				cb.ParentID = c.block.ID
			}
		}
	}
	for _, c := range built {
		b := c.block
		if b.ParentID == "" {
			continue
		}
		if _, ok := e.blocks.Get(b.ParentID); !ok || e.inCycle(b) {
			e.log.Warn("dropping invalid parent link", zap.String("id", b.ID), zap.String("parent", b.ParentID))
			b.ParentID = ""
		}
	}
	e.blocks.RefreshAll()
}

func (e *Engine) inCycle(b *domain.Block) bool {
	seen := map[string]bool{b.ID: true}
	for p := b.ParentID; p != ""; {
		if seen[p] {
			return true
		}
		seen[p] = true
		pb, ok := e.blocks.Get(p)
		if !ok {
			return false
		}
		p = pb.ParentID
	}
	return false
}

// scrubParent returns parentID when it names a block in the document.
func (e *Engine) scrubParent(id, parentID string) string {
	if parentID == "" {
		return ""
	}
	if parentID == id || e.blocks.IndexOf(parentID) < 0 {
		e.log.Warn("dropping unknown parent", zap.String("id", id), zap.String("parent", parentID))
		return ""
	}
	return parentID
}

func (e *Engine) defaultIndex() int {
	if i := e.blocks.IndexOf(e.current); i >= 0 {
		return i + 1
	}
	return e.blocks.Len()
}

// Update recomposes a block in place with new data. A nil data keeps the
// current payload, nil tunes keep the current tunes. The id is preserved.
func (e *Engine) Update(ctx context.Context, id string, data domain.Data, tunes map[string]domain.Data) (*Handle, error) {
	b, i, err := e.mustGet("update", id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		if data, err = e.currentData(ctx, b); err != nil {
			return nil, fmt.Errorf("update %q: %w", id, err)
		}
	}
	if tunes == nil {
		tunes = b.Tunes
	}
	c, err := e.compose(ctx, recipe{ID: b.ID, Tool: b.Tool, Data: data, Tunes: tunes, ParentID: b.ParentID})
	if err != nil {
		return nil, fmt.Errorf("update %q: %w", id, err)
	}

	defer e.group("update")()
	if _, err := e.place(c, i, true); err != nil {
		return nil, fmt.Errorf("update %q: %w", id, err)
	}
	e.settle()
	e.emit(ctx, EventBlockChanged, BlockEvent{ID: id, Tool: c.block.Tool, Index: i})
	return e.handle(id), nil
}

// Duplicate inserts deep copies of ids at index, in the given order. Copies
// get fresh ids; parent links inside the copied set point at the copies.
func (e *Engine) Duplicate(ctx context.Context, ids []string, index int) ([]*Handle, error) {
	if err := e.checkInsertIndex("duplicate", index); err != nil {
		return nil, err
	}
	remap := make(map[string]string, len(ids))
	for _, id := range ids {
		if e.blocks.IndexOf(id) < 0 {
			return nil, fmt.Errorf("duplicate %q: %w", id, domain.ErrNotFound)
		}
		remap[id] = e.newID()
	}

	recs := make([]domain.SerializedBlock, 0, len(ids))
	for _, id := range ids {
		b, _ := e.blocks.Get(id)
		s, err := e.serialize(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("duplicate %q: %w", id, err)
		}
		if b.Tool == domain.StubTool {
			// Keep the copy a stub of the same original rather than
			// resurrecting the unknown tool.
			s.Type, s.Data = b.Tool, b.Data.Clone()
		}
		s.ID = remap[id]
		if p, ok := remap[b.ParentID]; ok {
			s.Parent = p
		}
		s.Content = nil
		recs = append(recs, s)
	}
	return e.InsertMany(ctx, recs, index)
}
