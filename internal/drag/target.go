package drag

import (
	"context"

	"go.uber.org/zap"

	"blockdoc/internal/engine"
)

// resolve maps a pointer position to a canonical drop target, or nil when
// the pointer is over nothing or over the dragged blocks themselves.
func (m *Manager) resolve(p Point) *Target {
	id, bounds, ok := m.hit.BlockAt(p)
	if !ok {
		return nil
	}
	i := m.doc.IndexOf(id)
	if i < 0 || m.dragged[id] {
		return nil
	}
	edge := Top
	if p.Y >= bounds.Y+bounds.H/2 {
		edge = Bottom
	}
	return m.normalize(i, edge)
}

// normalize folds "top of block i" into "bottom of block i-1" whenever that
// block exists and is not being dragged, so each gap has one spelling.
func (m *Manager) normalize(i int, edge Edge) *Target {
	if edge == Top && i > 0 && !m.dragged[m.doc.IDAt(i-1)] {
		i, edge = i-1, Bottom
	}
	gap := i
	if edge == Bottom {
		gap = i + 1
	}
	return &Target{
		BlockID: m.doc.IDAt(i),
		Edge:    edge,
		Gap:     gap,
		Depth:   m.depthAt(gap),
	}
}

// depthAt applies the nesting rule at a gap: top of the document is depth
// 0; otherwise the block after the gap lends its depth when it is nested
// one level under the block before, else the block before lends its own.
// Dragged blocks are skipped, they are leaving.
func (m *Manager) depthAt(gap int) int {
	if gap == 0 {
		return 0
	}
	before := ""
	for j := gap - 1; j >= 0; j-- {
		if id := m.doc.IDAt(j); !m.dragged[id] {
			before = id
			break
		}
	}
	if before == "" {
		return 0
	}
	bd := m.doc.Depth(before)
	for j := gap; j < m.doc.Len(); j++ {
		if id := m.doc.IDAt(j); !m.dragged[id] {
			if ad := m.doc.Depth(id); ad == bd+1 {
				return ad
			}
			break
		}
	}
	return bd
}

// move re-homes the sources at gap with sequential single moves. Sources
// above the gap travel down and are placed bottom-up; sources below travel
// up and are placed top-down. Either way their relative order survives.
func (m *Manager) move(ctx context.Context, gap int) error {
	var above, below []string
	for _, id := range m.sources {
		if m.doc.IndexOf(id) < gap {
			above = append(above, id)
		} else {
			below = append(below, id)
		}
	}
	for k := len(above) - 1; k >= 0; k-- {
		to := gap - 1 - (len(above) - 1 - k)
		if err := m.doc.Move(ctx, to, m.doc.IndexOf(above[k])); err != nil {
			return err
		}
	}
	for k, id := range below {
		if err := m.doc.Move(ctx, gap+k, m.doc.IndexOf(id)); err != nil {
			return err
		}
	}
	return nil
}

// nest applies the target depth to the roots of the dropped run. The new
// parent is the nearest block before the run sitting one level up, when its
// tool accepts children; otherwise the roots go to the top level.
func (m *Manager) nest(ctx context.Context, run, roots []string, depth int) error {
	if len(run) == 0 {
		return nil
	}
	parent := ""
	if depth > 0 {
		first := m.doc.IndexOf(run[0])
		for j := first - 1; j >= 0; j-- {
			id := m.doc.IDAt(j)
			d := m.doc.Depth(id)
			if d == depth-1 {
				if m.doc.SupportsNesting(id) {
					parent = id
				}
				break
			}
			if d < depth-1 {
				break
			}
		}
	}
	for _, id := range roots {
		if err := m.doc.Reparent(ctx, id, parent); err != nil {
			m.log.Warn("drag: cannot nest, lifting to top level",
				zap.String("id", id), zap.String("parent", parent), zap.Error(err))
			if err := m.doc.Reparent(ctx, id, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// roots returns the sources whose parent is not itself dragged.
func (m *Manager) roots() []string {
	var out []string
	for _, id := range m.sources {
		if !m.hasDraggedAncestor(id) {
			out = append(out, id)
		}
	}
	return out
}

func (m *Manager) hasDraggedAncestor(id string) bool {
	seen := map[string]bool{id: true}
	for p := m.doc.ParentOf(id); p != "" && !seen[p]; p = m.doc.ParentOf(p) {
		if m.dragged[p] {
			return true
		}
		seen[p] = true
	}
	return false
}

func rootsOf(handles []*engine.Handle) []string {
	in := make(map[string]bool, len(handles))
	for _, h := range handles {
		in[h.ID()] = true
	}
	var out []string
	for _, h := range handles {
		if !in[h.ParentID()] {
			out = append(out, h.ID())
		}
	}
	return out
}
