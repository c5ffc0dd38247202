// Package blocks holds the ordered, id-addressable block sequence of one
// document together with its hierarchy bookkeeping.
package blocks

import (
	"fmt"

	"blockdoc/internal/domain"
)

// Collection is an ordered sequence of blocks plus an id → index map.
//
// Every structural mutation re-indexes the map and refreshes the ChildIDs
// cache of the affected parents before returning. Collection does not
// enforce non-emptiness; the engine does.
type Collection struct {
	items []*domain.Block
	index map[string]int
}

// New creates an empty collection.
func New() *Collection {
	return &Collection{index: make(map[string]int)}
}

// Len returns the number of blocks.
func (c *Collection) Len() int { return len(c.items) }

// At returns the block at i.
func (c *Collection) At(i int) (*domain.Block, bool) {
	if i < 0 || i >= len(c.items) {
		return nil, false
	}
	return c.items[i], true
}

// Get returns the block with id.
func (c *Collection) Get(id string) (*domain.Block, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.items[i], true
}

// IndexOf returns the index of id, or -1.
func (c *Collection) IndexOf(id string) int {
	if i, ok := c.index[id]; ok {
		return i
	}
	return -1
}

// Blocks returns a copy of the sequence. The records themselves are shared.
func (c *Collection) Blocks() []*domain.Block {
	out := make([]*domain.Block, len(c.items))
	copy(out, c.items)
	return out
}

// Insert places b at position at. With replace set and a block present at
// that position, the old block is overwritten and returned.
func (c *Collection) Insert(b *domain.Block, at int, replace bool) (int, *domain.Block, error) {
	if at < 0 || at > len(c.items) {
		return 0, nil, &domain.IndexError{Op: "insert", Index: at, Len: len(c.items)}
	}
	if b == nil || b.ID == "" {
		return 0, nil, fmt.Errorf("insert: block without id")
	}
	if j, dup := c.index[b.ID]; dup && !(replace && j == at) {
		return 0, nil, fmt.Errorf("insert: duplicate block id %q", b.ID)
	}

	var replaced *domain.Block
	if replace && at < len(c.items) {
		replaced = c.items[at]
		delete(c.index, replaced.ID)
		c.items[at] = b
		c.index[b.ID] = at
		c.adoptChildren(replaced, b)
	} else {
		c.items = append(c.items, nil)
		copy(c.items[at+1:], c.items[at:])
		c.items[at] = b
		c.reindex(at)
	}

	c.refreshChildren(b.ParentID)
	if replaced != nil && replaced.ParentID != b.ParentID {
		c.refreshChildren(replaced.ParentID)
	}
	return at, replaced, nil
}

// adoptChildren points the children of old at its replacement.
func (c *Collection) adoptChildren(old, repl *domain.Block) {
	if old.ID != repl.ID {
		for _, it := range c.items {
			if it.ParentID == old.ID {
				it.ParentID = repl.ID
			}
		}
	}
	c.refreshChildren(repl.ID)
}

// Remove deletes the block at i. Its children are re-parented to its own
// parent so no ParentID dangles.
func (c *Collection) Remove(i int) (*domain.Block, error) {
	if i < 0 || i >= len(c.items) {
		return nil, &domain.IndexError{Op: "remove", Index: i, Len: len(c.items)}
	}
	removed := c.items[i]
	copy(c.items[i:], c.items[i+1:])
	c.items[len(c.items)-1] = nil
	c.items = c.items[:len(c.items)-1]
	delete(c.index, removed.ID)
	c.reindex(i)

	for _, it := range c.items {
		if it.ParentID == removed.ID {
			it.ParentID = removed.ParentID
		}
	}
	c.refreshChildren(removed.ParentID)
	return removed, nil
}

// Move relocates the block at from so it ends up at index to.
func (c *Collection) Move(from, to int) error {
	n := len(c.items)
	if from < 0 || from >= n {
		return &domain.IndexError{Op: "move", Index: from, Len: n - 1}
	}
	if to < 0 || to >= n {
		return &domain.IndexError{Op: "move", Index: to, Len: n - 1}
	}
	if from == to {
		return nil
	}
	b := c.items[from]
	if from < to {
		copy(c.items[from:to], c.items[from+1:to+1])
		c.items[to] = b
		c.reindex(from)
	} else {
		copy(c.items[to+1:from+1], c.items[to:from])
		c.items[to] = b
		c.reindex(to)
	}
	c.refreshChildren(b.ParentID)
	return nil
}

// SetParent re-links id under parentID ("" for top level).
func (c *Collection) SetParent(id, parentID string) error {
	b, ok := c.Get(id)
	if !ok {
		return fmt.Errorf("set parent of %q: %w", id, domain.ErrNotFound)
	}
	if parentID != "" {
		if _, ok := c.index[parentID]; !ok {
			return fmt.Errorf("set parent of %q to %q: %w", id, parentID, domain.ErrNotFound)
		}
		for p := parentID; p != ""; {
			if p == id {
				return fmt.Errorf("set parent of %q to %q: would create a cycle", id, parentID)
			}
			pb, _ := c.Get(p)
			p = pb.ParentID
		}
	}
	old := b.ParentID
	b.ParentID = parentID
	c.refreshChildren(old)
	c.refreshChildren(parentID)
	return nil
}

// ChildrenOf returns the blocks whose ParentID is parentID, in sequence order.
func (c *Collection) ChildrenOf(parentID string) []*domain.Block {
	if parentID == "" {
		return nil
	}
	var out []*domain.Block
	for _, it := range c.items {
		if it.ParentID == parentID {
			out = append(out, it)
		}
	}
	return out
}

// Depth returns the nesting level of id; top-level blocks are at depth 0.
func (c *Collection) Depth(id string) int {
	b, ok := c.Get(id)
	if !ok {
		return 0
	}
	depth := 0
	seen := map[string]bool{id: true}
	for p := b.ParentID; p != ""; {
		pb, ok := c.Get(p)
		if !ok || seen[p] {
			break
		}
		seen[p] = true
		depth++
		p = pb.ParentID
	}
	return depth
}

// Descendants returns the contiguous run of blocks following id that sit
// strictly deeper than it, stopping at the first sibling or shallower block.
func (c *Collection) Descendants(id string) []*domain.Block {
	i := c.IndexOf(id)
	if i < 0 {
		return nil
	}
	base := c.Depth(id)
	var out []*domain.Block
	for j := i + 1; j < len(c.items); j++ {
		if c.Depth(c.items[j].ID) <= base {
			break
		}
		out = append(out, c.items[j])
	}
	return out
}

// Clear drops every block.
func (c *Collection) Clear() {
	c.items = nil
	c.index = make(map[string]int)
}

func (c *Collection) reindex(from int) {
	for i := from; i < len(c.items); i++ {
		c.index[c.items[i].ID] = i
	}
}

// refreshChildren rebuilds the ChildIDs cache of parentID from the sequence.
func (c *Collection) refreshChildren(parentID string) {
	if parentID == "" {
		return
	}
	p, ok := c.Get(parentID)
	if !ok {
		return
	}
	var ids []string
	for _, it := range c.items {
		if it.ParentID == parentID {
			ids = append(ids, it.ID)
		}
	}
	p.ChildIDs = ids
}

// RefreshAll rebuilds every ChildIDs cache.
func (c *Collection) RefreshAll() {
	for _, it := range c.items {
		it.ChildIDs = nil
	}
	for _, it := range c.items {
		if it.ParentID == "" {
			continue
		}
		if p, ok := c.Get(it.ParentID); ok {
			p.ChildIDs = append(p.ChildIDs, it.ID)
		}
	}
}
