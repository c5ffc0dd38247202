// Package engine owns the block collection of one document and exposes the
// invariant-preserving mutations on it: insert, delete, move, update,
// convert, split, merge, duplicate and the render/save round-trip.
//
// An Engine is single-threaded. Callers that share one across goroutines
// must serialize access themselves (see service.Session).
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blockdoc/internal/blocks"
	"blockdoc/internal/domain"
	"blockdoc/internal/history"
)

// Emitter receives change notifications for an external render layer.
type Emitter interface {
	Emit(ctx context.Context, event string, data any)
}

// Engine is the mutation engine of one document.
type Engine struct {
	blocks    *blocks.Collection
	tools     domain.ToolRegistry
	history   *history.Grouper
	emitter   Emitter
	log       *zap.Logger
	newID     func() string
	instances map[string]domain.Instance
	current   string
	readOnly  bool
	debug     bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistory routes group boundaries to bridge. queue receives deferred
// boundaries; it may be nil.
func WithHistory(bridge history.Bridge, queue *history.TaskQueue) Option {
	return func(e *Engine) { e.history = history.NewGrouper(bridge, queue) }
}

// WithEmitter sets the change listener.
func WithEmitter(em Emitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithIDGenerator replaces the uuid generator, mostly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithDebugInvariants validates the collection after every mutation and
// panics on corruption.
func WithDebugInvariants(on bool) Option {
	return func(e *Engine) { e.debug = on }
}

// WithReadOnly passes the read-only flag to every tool Create call.
func WithReadOnly(on bool) Option {
	return func(e *Engine) { e.readOnly = on }
}

// New creates an engine over an empty collection. Call Load before handing
// it out so the document holds at least one block.
func New(tools domain.ToolRegistry, opts ...Option) *Engine {
	e := &Engine{
		blocks:    blocks.New(),
		tools:     tools,
		history:   history.NewGrouper(history.Noop{}, nil),
		log:       zap.NewNop(),
		newID:     uuid.NewString,
		instances: make(map[string]domain.Instance),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Grouper exposes the history grouping so callers can bracket several
// operations, or close a group on the next idle tick.
func (e *Engine) Grouper() *history.Grouper { return e.history }

// Caret is the position the engine records for its own marks: the block the
// caret was in and the offset inside it.
type Caret struct {
	BlockID string
	Offset  int
}

// MarkPositionBeforeChange hands an opaque caret snapshot to the history.
// Marks taken before an operation attach to that operation's group.
func (e *Engine) MarkPositionBeforeChange(pos history.Position) {
	e.history.Mark(pos)
}

// MarkCaret marks the current block at offset. It does nothing when no
// block is current.
func (e *Engine) MarkCaret(offset int) {
	if _, ok := e.Current(); !ok {
		return
	}
	e.history.Mark(Caret{BlockID: e.current, Offset: offset})
}

// Batch runs fn inside one history group.
func (e *Engine) Batch(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	defer e.group(label)()
	return fn(ctx)
}

// Undo asks the history bridge to undo the latest group. It returns the
// position marked before that group; a Caret also moves the current block
// back to where the change was made.
func (e *Engine) Undo(ctx context.Context) (history.Position, bool, error) {
	e.history.Flush()
	pos, ok, err := e.history.Bridge().Undo(ctx)
	if ok {
		e.restoreCaret(pos)
	}
	return pos, ok, err
}

// Redo asks the history bridge to redo the next group. See Undo.
func (e *Engine) Redo(ctx context.Context) (history.Position, bool, error) {
	e.history.Flush()
	pos, ok, err := e.history.Bridge().Redo(ctx)
	if ok {
		e.restoreCaret(pos)
	}
	return pos, ok, err
}

func (e *Engine) restoreCaret(pos history.Position) {
	c, ok := pos.(Caret)
	if !ok {
		return
	}
	if !e.SetCurrent(c.BlockID) {
		e.log.Debug("caret block gone after history step", zap.String("id", c.BlockID))
	}
}

// ── Read accessors ──────────────────────────────────────────

// Len returns the number of blocks.
func (e *Engine) Len() int { return e.blocks.Len() }

// GetByID returns a handle to the block with id.
func (e *Engine) GetByID(id string) (*Handle, bool) {
	if _, ok := e.blocks.Get(id); !ok {
		e.log.Warn("block not found", zap.String("id", id))
		return nil, false
	}
	return e.handle(id), true
}

// GetByIndex returns a handle to the block at i.
func (e *Engine) GetByIndex(i int) (*Handle, bool) {
	b, ok := e.blocks.At(i)
	if !ok {
		e.log.Warn("block index out of range", zap.Int("index", i), zap.Int("len", e.blocks.Len()))
		return nil, false
	}
	return e.handle(b.ID), true
}

// IndexOf returns the index of id, or -1.
func (e *Engine) IndexOf(id string) int { return e.blocks.IndexOf(id) }

// IDAt returns the id at index i, or "" when out of range.
func (e *Engine) IDAt(i int) string {
	if b, ok := e.blocks.At(i); ok {
		return b.ID
	}
	return ""
}

// Blocks returns handles for the whole sequence.
func (e *Engine) Blocks() []*Handle {
	items := e.blocks.Blocks()
	out := make([]*Handle, len(items))
	for i, b := range items {
		out[i] = e.handle(b.ID)
	}
	return out
}

// Children returns handles for the direct children of id in sequence order.
func (e *Engine) Children(id string) []*Handle {
	var out []*Handle
	for _, b := range e.blocks.ChildrenOf(id) {
		out = append(out, e.handle(b.ID))
	}
	return out
}

// Depth returns the nesting level of id.
func (e *Engine) Depth(id string) int { return e.blocks.Depth(id) }

// ParentOf returns the parent id of id, "" for top-level or unknown blocks.
func (e *Engine) ParentOf(id string) string {
	if b, ok := e.blocks.Get(id); ok {
		return b.ParentID
	}
	return ""
}

// Descendants returns the ids of the contiguous run nested under id.
func (e *Engine) Descendants(id string) []string {
	var out []string
	for _, b := range e.blocks.Descendants(id) {
		out = append(out, b.ID)
	}
	return out
}

// SupportsNesting reports whether the tool of id accepts children.
func (e *Engine) SupportsNesting(id string) bool {
	b, ok := e.blocks.Get(id)
	if !ok {
		return false
	}
	t, ok := e.tools.Get(b.Tool)
	return ok && t.SupportsNesting()
}

// Current returns the block the caret is in, if any.
func (e *Engine) Current() (*Handle, bool) {
	if e.current == "" || e.blocks.IndexOf(e.current) < 0 {
		return nil, false
	}
	return e.handle(e.current), true
}

// SetCurrent moves the current-block pointer. It reports false for unknown
// ids and leaves the pointer unchanged.
func (e *Engine) SetCurrent(id string) bool {
	if e.blocks.IndexOf(id) < 0 {
		return false
	}
	e.current = id
	return true
}

// Validate checks the structural invariants of the collection.
func (e *Engine) Validate() error {
	if e.blocks.Len() == 0 {
		return fmt.Errorf("document is empty: %w", domain.ErrInvariant)
	}
	return e.blocks.Validate()
}

// ── Internals ───────────────────────────────────────────────

func (e *Engine) handle(id string) *Handle {
	return &Handle{id: id, e: e}
}

// group opens a history group and returns its closer.
func (e *Engine) group(label string) func() {
	e.history.Begin(label)
	return e.history.End
}

// groupDeferred is group with the closing boundary left open until the
// next idle tick.
func (e *Engine) groupDeferred(label string) func() {
	e.history.Begin(label)
	return e.history.EndDeferred
}

// settle runs after every mutation.
func (e *Engine) settle() {
	if !e.debug {
		return
	}
	if err := e.Validate(); err != nil {
		panic(err)
	}
}

func (e *Engine) emit(ctx context.Context, event string, data any) {
	if e.emitter != nil {
		e.emitter.Emit(ctx, event, data)
	}
}

func (e *Engine) checkInsertIndex(op string, at int) error {
	if at < 0 || at > e.blocks.Len() {
		return &domain.IndexError{Op: op, Index: at, Len: e.blocks.Len()}
	}
	return nil
}

func (e *Engine) mustGet(op, id string) (*domain.Block, int, error) {
	i := e.blocks.IndexOf(id)
	if i < 0 {
		return nil, -1, fmt.Errorf("%s %q: %w", op, id, domain.ErrNotFound)
	}
	b, _ := e.blocks.At(i)
	return b, i, nil
}
