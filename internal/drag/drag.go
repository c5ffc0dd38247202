// Package drag turns a pointer gesture over block drag handles into a move
// or duplicate of one or more blocks. It reasons only about ids, indices and
// depths; geometry comes from a HitTester supplied by the render layer, and
// nothing is mutated until the gesture is released over a valid target.
package drag

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"blockdoc/internal/engine"
)

// State is the phase of a gesture.
type State int

const (
	Idle State = iota
	Tracking
	Dragging
	Committed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	case Dragging:
		return "dragging"
	case Committed:
		return "committed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Edge is the half of the hovered block the pointer is over.
type Edge int

const (
	Top Edge = iota
	Bottom
)

func (e Edge) String() string {
	if e == Top {
		return "top"
	}
	return "bottom"
}

// Point is a pointer position in document coordinates.
type Point struct{ X, Y float64 }

// Rect is an axis-aligned box.
type Rect struct{ X, Y, W, H float64 }

// Document is the part of the mutation engine a drag needs.
type Document interface {
	Len() int
	IDAt(i int) string
	IndexOf(id string) int
	Depth(id string) int
	ParentOf(id string) string
	Descendants(id string) []string
	SupportsNesting(id string) bool
	Move(ctx context.Context, to, from int) error
	Duplicate(ctx context.Context, ids []string, index int) ([]*engine.Handle, error)
	Reparent(ctx context.Context, id, parentID string) error
	Batch(ctx context.Context, label string, fn func(ctx context.Context) error) error
}

// HitTester resolves the block under a point.
type HitTester interface {
	BlockAt(p Point) (id string, bounds Rect, ok bool)
}

// Selection is the block selection of the editor.
type Selection interface {
	Selected() []string
	Set(ids []string)
	Clear()
}

// Scroller is the scrollable container holding the blocks.
type Scroller interface {
	Viewport() Rect
	ScrollBy(dy float64)
}

// Modifiers is the keyboard state at release.
type Modifiers struct {
	Alt bool // duplicate instead of move
}

// Options tunes the gesture.
type Options struct {
	Threshold    float64 // pointer travel before Tracking becomes Dragging
	ScrollMargin float64 // distance from the viewport edge that starts auto-scroll
	ScrollStep   float64 // pixels per Tick
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{Threshold: 5, ScrollMargin: 50, ScrollStep: 10}
}

// Target is a canonical drop position: Gap is the insertion index in the
// current sequence, Depth the nesting level the dropped blocks take.
type Target struct {
	BlockID string
	Edge    Edge
	Gap     int
	Depth   int
}

// Action is what a release did.
type Action int

const (
	None Action = iota
	Moved
	Duplicated
)

// Outcome reports a finished gesture.
type Outcome struct {
	Action Action
	IDs    []string // the moved blocks, or the new copies
	Target Target
}

// Manager runs one gesture at a time.
type Manager struct {
	doc    Document
	hit    HitTester
	sel    Selection
	scroll Scroller
	opts   Options
	log    *zap.Logger

	state     State
	origin    Point
	pointer   Point
	sources   []string
	dragged   map[string]bool
	savedSel  []string
	multi     bool
	target    *Target
	scrollDir int
}

// NewManager creates a manager. sel and scroll may be nil.
func NewManager(doc Document, hit HitTester, sel Selection, scroll Scroller, opts Options, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	d := DefaultOptions()
	if opts.Threshold <= 0 {
		opts.Threshold = d.Threshold
	}
	if opts.ScrollMargin <= 0 {
		opts.ScrollMargin = d.ScrollMargin
	}
	if opts.ScrollStep <= 0 {
		opts.ScrollStep = d.ScrollStep
	}
	return &Manager{doc: doc, hit: hit, sel: sel, scroll: scroll, opts: opts, log: log}
}

// State returns the current phase.
func (m *Manager) State() State { return m.state }

// Sources returns the ids being dragged, in document order.
func (m *Manager) Sources() []string { return append([]string(nil), m.sources...) }

// Target returns the current drop target.
func (m *Manager) Target() (Target, bool) {
	if m.target == nil {
		return Target{}, false
	}
	return *m.target, true
}

// active reports whether a gesture is in flight.
func (m *Manager) active() bool { return m.state == Tracking || m.state == Dragging }

// PointerDown starts tracking a press on the drag handle of blockID.
func (m *Manager) PointerDown(blockID string, p Point) bool {
	if m.active() || m.doc.IndexOf(blockID) < 0 {
		return false
	}
	m.reset()
	m.sources = m.capture(blockID)
	m.dragged = make(map[string]bool, len(m.sources))
	for _, id := range m.sources {
		m.dragged[id] = true
	}
	m.origin, m.pointer = p, p
	m.state = Tracking
	return true
}

// capture collects the blocks that move with blockID: the whole selection
// when blockID is part of a multi-select, otherwise the block and its
// nested run.
func (m *Manager) capture(blockID string) []string {
	if m.sel != nil {
		selected := m.sel.Selected()
		if len(selected) > 1 && contains(selected, blockID) {
			m.multi = true
			return m.inDocumentOrder(selected)
		}
	}
	return append([]string{blockID}, m.doc.Descendants(blockID)...)
}

func (m *Manager) inDocumentOrder(ids []string) []string {
	out := make([]string, 0, len(ids))
	for i := 0; i < m.doc.Len(); i++ {
		id := m.doc.IDAt(i)
		if contains(ids, id) {
			out = append(out, id)
		}
	}
	return out
}

// PointerMove feeds a pointer position.
func (m *Manager) PointerMove(p Point) {
	m.pointer = p
	switch m.state {
	case Tracking:
		if math.Hypot(p.X-m.origin.X, p.Y-m.origin.Y) <= m.opts.Threshold {
			return
		}
		m.state = Dragging
		if m.sel != nil {
			m.savedSel = m.sel.Selected()
			if !m.multi {
				m.sel.Clear()
			}
		}
		m.log.Debug("drag started", zap.Strings("sources", m.sources))
		fallthrough
	case Dragging:
		m.target = m.resolve(p)
		m.scrollDir = m.scrollDirection(p)
	}
}

// Tick advances auto-scroll while the pointer rests near an edge. It
// reports whether the container scrolled.
func (m *Manager) Tick() bool {
	if m.state != Dragging || m.scroll == nil || m.scrollDir == 0 {
		return false
	}
	m.scroll.ScrollBy(float64(m.scrollDir) * m.opts.ScrollStep)
	m.target = m.resolve(m.pointer)
	return true
}

func (m *Manager) scrollDirection(p Point) int {
	if m.scroll == nil {
		return 0
	}
	vp := m.scroll.Viewport()
	switch {
	case p.Y < vp.Y+m.opts.ScrollMargin:
		return -1
	case p.Y > vp.Y+vp.H-m.opts.ScrollMargin:
		return 1
	}
	return 0
}

// KeyDown handles keys during a gesture; Escape cancels.
func (m *Manager) KeyDown(key string) bool {
	if key != "Escape" || !m.active() {
		return false
	}
	m.cancel()
	return true
}

// Preempt cancels the gesture because another affordance took focus.
func (m *Manager) Preempt() {
	if m.active() {
		m.cancel()
	}
}

func (m *Manager) cancel() {
	if m.state == Dragging && m.sel != nil {
		m.sel.Set(m.savedSel)
	}
	m.log.Debug("drag cancelled", zap.Strings("sources", m.sources))
	m.state = Cancelled
	m.target = nil
	m.scrollDir = 0
}

// Release ends the gesture. Over a valid target the blocks are moved, or
// duplicated when mods.Alt is held at this moment.
func (m *Manager) Release(ctx context.Context, mods Modifiers) (Outcome, error) {
	switch m.state {
	case Tracking:
		// A click, not a drag.
		m.state = Idle
		return Outcome{}, nil
	case Dragging:
	default:
		return Outcome{}, nil
	}
	if m.target == nil {
		m.cancel()
		return Outcome{}, nil
	}

	t := *m.target
	out := Outcome{Target: t}
	err := m.doc.Batch(ctx, "drag", func(ctx context.Context) error {
		var roots []string
		if mods.Alt {
			handles, err := m.doc.Duplicate(ctx, m.sources, t.Gap)
			if err != nil {
				return err
			}
			for _, h := range handles {
				out.IDs = append(out.IDs, h.ID())
			}
			out.Action = Duplicated
			roots = rootsOf(handles)
		} else {
			if err := m.move(ctx, t.Gap); err != nil {
				return err
			}
			out.IDs = append(out.IDs, m.sources...)
			out.Action = Moved
			roots = m.roots()
		}
		return m.nest(ctx, out.IDs, roots, t.Depth)
	})
	if err != nil {
		m.cancel()
		return Outcome{}, fmt.Errorf("drag commit: %w", err)
	}

	m.state = Committed
	m.target = nil
	m.scrollDir = 0
	m.log.Debug("drag committed", zap.Int("gap", t.Gap), zap.Int("depth", t.Depth), zap.Bool("duplicate", mods.Alt))
	return out, nil
}

func (m *Manager) reset() {
	m.state = Idle
	m.sources = nil
	m.dragged = nil
	m.savedSel = nil
	m.multi = false
	m.target = nil
	m.scrollDir = 0
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
