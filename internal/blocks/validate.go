package blocks

import (
	"fmt"

	"blockdoc/internal/domain"
)

// Validate checks index contiguity, parent links and the ChildIDs caches.
// A non-nil result wraps domain.ErrInvariant and indicates a programming
// error, never a user error.
func (c *Collection) Validate() error {
	if len(c.index) != len(c.items) {
		return fmt.Errorf("%w: index has %d entries for %d blocks", domain.ErrInvariant, len(c.index), len(c.items))
	}
	for i, it := range c.items {
		if j, ok := c.index[it.ID]; !ok || j != i {
			return fmt.Errorf("%w: block %q at %d indexed as %d", domain.ErrInvariant, it.ID, i, j)
		}
	}

	for _, it := range c.items {
		if it.ParentID == "" {
			continue
		}
		if _, ok := c.index[it.ParentID]; !ok {
			return fmt.Errorf("%w: block %q has dangling parent %q", domain.ErrInvariant, it.ID, it.ParentID)
		}
		if it.ParentID == it.ID {
			return fmt.Errorf("%w: block %q is its own parent", domain.ErrInvariant, it.ID)
		}
	}

	for _, it := range c.items {
		want := c.ChildrenOf(it.ID)
		if len(want) != len(it.ChildIDs) {
			return fmt.Errorf("%w: block %q lists %d children, sequence has %d", domain.ErrInvariant, it.ID, len(it.ChildIDs), len(want))
		}
		for k, child := range want {
			if it.ChildIDs[k] != child.ID {
				return fmt.Errorf("%w: block %q child %d is %q, sequence order says %q", domain.ErrInvariant, it.ID, k, it.ChildIDs[k], child.ID)
			}
		}
	}
	return nil
}
