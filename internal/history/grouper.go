package history

// Grouper makes nested Begin/End pairs reach the bridge as one group and
// implements the deferred boundary: EndDeferred leaves the group open until
// the task queue reaches idle, so follow-up mutations issued in reaction to
// the change land in the same undo entry.
//
// Grouper is not safe for concurrent use; it shares the engine's
// single-threaded model.
type Grouper struct {
	bridge  Bridge
	queue   *TaskQueue
	depth   int
	pending bool // closing boundary scheduled on the queue
}

// NewGrouper wraps bridge. A nil bridge is replaced by Noop and a nil queue
// makes EndDeferred behave like End.
func NewGrouper(bridge Bridge, queue *TaskQueue) *Grouper {
	if bridge == nil {
		bridge = Noop{}
	}
	return &Grouper{bridge: bridge, queue: queue}
}

// Bridge returns the wrapped bridge.
func (g *Grouper) Bridge() Bridge { return g.bridge }

// Open reports whether a group is currently open on the bridge.
func (g *Grouper) Open() bool { return g.depth > 0 || g.pending }

// Begin opens a group, or joins the one already open.
func (g *Grouper) Begin(label string) {
	if g.depth == 0 && !g.pending {
		g.bridge.BeginGroup()
		if l, ok := g.bridge.(Labeler); ok && label != "" {
			l.LabelGroup(label)
		}
	}
	g.depth++
}

// End closes the group when the outermost Begin is matched.
func (g *Grouper) End() {
	if g.depth == 0 {
		return
	}
	g.depth--
	if g.depth == 0 && !g.pending {
		g.bridge.EndGroup()
	}
}

// EndDeferred matches a Begin but postpones the closing boundary to the
// next idle tick.
func (g *Grouper) EndDeferred() {
	if g.queue == nil {
		g.End()
		return
	}
	if g.depth == 0 {
		return
	}
	g.depth--
	if g.depth == 0 && !g.pending {
		g.pending = true
		g.queue.Defer(g.flush)
	}
}

// Mark forwards a caret snapshot to the bridge.
func (g *Grouper) Mark(pos Position) {
	g.bridge.MarkPositionBeforeChange(pos)
}

// Flush closes a pending deferred group immediately.
func (g *Grouper) Flush() {
	g.flush()
}

func (g *Grouper) flush() {
	if !g.pending {
		return
	}
	if g.depth > 0 {
		// Still inside a Begin; the matching End closes the group.
		g.pending = false
		return
	}
	g.pending = false
	g.bridge.EndGroup()
}
