package engine

import (
	"context"

	"blockdoc/internal/domain"
)

// Handle addresses a block by id. It never caches a position, so it stays
// correct across moves; once the block is removed Valid reports false and
// the accessors return zero values.
type Handle struct {
	id string
	e  *Engine
}

func (h *Handle) ID() string { return h.id }

// Index returns the current position of the block, or -1 once removed.
func (h *Handle) Index() int { return h.e.blocks.IndexOf(h.id) }

// Valid reports whether the block is still in the document.
func (h *Handle) Valid() bool { return h.Index() >= 0 }

func (h *Handle) record() *domain.Block {
	b, _ := h.e.blocks.Get(h.id)
	return b
}

// Tool returns the tool name.
func (h *Handle) Tool() string {
	if b := h.record(); b != nil {
		return b.Tool
	}
	return ""
}

// Data returns a copy of the payload.
func (h *Handle) Data() domain.Data {
	if b := h.record(); b != nil {
		return b.Data.Clone()
	}
	return nil
}

// Tunes returns a copy of the tunes.
func (h *Handle) Tunes() map[string]domain.Data {
	if b := h.record(); b != nil {
		return domain.CloneTunes(b.Tunes)
	}
	return nil
}

// ParentID returns the id of the parent block, "" for top level.
func (h *Handle) ParentID() string {
	if b := h.record(); b != nil {
		return b.ParentID
	}
	return ""
}

// IsDefault reports whether the block uses the default tool.
func (h *Handle) IsDefault() bool {
	if b := h.record(); b != nil {
		return b.IsDefault
	}
	return false
}

// Children returns handles for the direct children.
func (h *Handle) Children() []*Handle { return h.e.Children(h.id) }

// Depth returns the nesting level.
func (h *Handle) Depth() int { return h.e.blocks.Depth(h.id) }

// Save serializes the block through its tool instance.
func (h *Handle) Save(ctx context.Context) (domain.SerializedBlock, error) {
	b := h.record()
	if b == nil {
		return domain.SerializedBlock{}, domain.ErrNotFound
	}
	return h.e.serialize(ctx, b)
}
