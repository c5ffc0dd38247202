package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blockdoc/internal/domain"
)

// ErrGroupOpen is returned when undo or redo is requested while a group is
// still being recorded.
var ErrGroupOpen = errors.New("history: group still open")

// Snapshotter is the document side of snapshot history.
type Snapshotter interface {
	Snapshot() domain.Document
	Restore(ctx context.Context, doc domain.Document) error
}

// Journal persists history entries. Nodes form a tree keyed by document.
type Journal interface {
	PushNode(docID, nodeID, parentID, label, snapshotJSON string) error
	GoTo(docID, nodeID string) error
}

// Entry is one undoable group.
type Entry struct {
	ID       string
	Label    string
	Before   domain.Document
	After    domain.Document
	Position Position
}

// Snapshots is a Bridge that records whole-document snapshots around each
// outermost group. It is the history layer used by the service; editors with
// finer-grained history plug their own Bridge into the engine instead.
type Snapshots struct {
	target    Snapshotter
	limit     int
	entries   []Entry
	cursor    int // entries[:cursor] can be undone
	depth     int
	before    domain.Document
	label     string
	mark      Position
	nextMark  Position // marked while no group was open
	replaying bool
	root      string // node the oldest entry hangs from

	docID   string
	journal Journal
	log     *zap.Logger
}

// Option configures Snapshots.
type Option func(*Snapshots)

// WithJournal mirrors every recorded entry to j under docID.
func WithJournal(docID string, j Journal) Option {
	return func(s *Snapshots) {
		s.docID = docID
		s.journal = j
	}
}

// WithLogger sets the logger used for journal failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Snapshots) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSnapshots creates an empty history keeping at most limit entries.
// A limit of zero or less keeps everything.
func NewSnapshots(limit int, opts ...Option) *Snapshots {
	s := &Snapshots{limit: limit, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Attach binds the document whose snapshots are recorded.
func (s *Snapshots) Attach(t Snapshotter) {
	s.target = t
}

func (s *Snapshots) BeginGroup() {
	s.depth++
	if s.depth > 1 {
		return
	}
	s.label = ""
	s.mark, s.nextMark = s.nextMark, nil
	if s.target != nil && !s.replaying {
		s.before = s.target.Snapshot()
	}
}

func (s *Snapshots) LabelGroup(label string) {
	if s.depth > 0 && s.label == "" {
		s.label = label
	}
}

// MarkPositionBeforeChange keeps the first mark of the open group. A mark
// taken between groups is held for the next one.
func (s *Snapshots) MarkPositionBeforeChange(pos Position) {
	if s.depth == 0 {
		s.nextMark = pos
		return
	}
	if s.mark == nil {
		s.mark = pos
	}
}

func (s *Snapshots) EndGroup() {
	if s.depth == 0 {
		return
	}
	s.depth--
	if s.depth > 0 || s.target == nil || s.replaying {
		return
	}
	after := s.target.Snapshot()
	if sameBlocks(s.before, after) {
		return
	}
	s.record(Entry{
		ID:       uuid.NewString(),
		Label:    s.label,
		Before:   s.before,
		After:    after,
		Position: s.mark,
	})
}

func (s *Snapshots) record(e Entry) {
	parentID := s.root
	if s.cursor > 0 {
		parentID = s.entries[s.cursor-1].ID
	}
	s.entries = append(s.entries[:s.cursor], e)
	if s.limit > 0 && len(s.entries) > s.limit {
		drop := len(s.entries) - s.limit
		s.root = s.entries[drop-1].ID
		s.entries = append([]Entry(nil), s.entries[drop:]...)
	}
	s.cursor = len(s.entries)

	if s.journal == nil {
		return
	}
	raw, err := json.Marshal(e.After)
	if err != nil {
		s.log.Warn("history: encode snapshot", zap.Error(err))
		return
	}
	label := e.Label
	if label == "" {
		label = "edit"
	}
	if err := s.journal.PushNode(s.docID, e.ID, parentID, label, string(raw)); err != nil {
		s.log.Warn("history: persist entry", zap.String("doc", s.docID), zap.Error(err))
	}
}

// Undo restores the document to the state before the latest entry and
// returns the position marked before that entry's change.
func (s *Snapshots) Undo(ctx context.Context) (Position, bool, error) {
	if s.depth > 0 {
		return nil, false, ErrGroupOpen
	}
	if s.cursor == 0 || s.target == nil {
		return nil, false, nil
	}
	e := s.entries[s.cursor-1]
	if err := s.replay(ctx, e.Before); err != nil {
		return nil, false, fmt.Errorf("undo %q: %w", e.Label, err)
	}
	s.cursor--
	switch {
	case s.cursor > 0:
		s.goTo(s.entries[s.cursor-1].ID)
	case s.root != "":
		s.goTo(s.root)
	}
	return e.Position, true, nil
}

// Redo reapplies the entry after the cursor.
func (s *Snapshots) Redo(ctx context.Context) (Position, bool, error) {
	if s.depth > 0 {
		return nil, false, ErrGroupOpen
	}
	if s.cursor >= len(s.entries) || s.target == nil {
		return nil, false, nil
	}
	e := s.entries[s.cursor]
	if err := s.replay(ctx, e.After); err != nil {
		return nil, false, fmt.Errorf("redo %q: %w", e.Label, err)
	}
	s.cursor++
	s.goTo(e.ID)
	return e.Position, true, nil
}

func (s *Snapshots) replay(ctx context.Context, doc domain.Document) error {
	s.replaying = true
	defer func() { s.replaying = false }()
	return s.target.Restore(ctx, doc)
}

func (s *Snapshots) goTo(nodeID string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.GoTo(s.docID, nodeID); err != nil {
		s.log.Warn("history: move cursor", zap.String("doc", s.docID), zap.Error(err))
	}
}

func (s *Snapshots) CanUndo() bool { return s.cursor > 0 }
func (s *Snapshots) CanRedo() bool { return s.cursor < len(s.entries) }

// Entries returns the recorded entries, oldest first.
func (s *Snapshots) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// Cursor returns how many entries can currently be undone.
func (s *Snapshots) Cursor() int { return s.cursor }

// Reset drops every entry. The entry the document currently reflects
// becomes the root that later entries hang from and undo returns to.
func (s *Snapshots) Reset() {
	if s.cursor > 0 {
		s.root = s.entries[s.cursor-1].ID
	}
	s.entries = nil
	s.cursor = 0
}

// Root returns the node id the oldest entry hangs from, "" when none.
func (s *Snapshots) Root() string { return s.root }

func sameBlocks(a, b domain.Document) bool {
	if len(a.Blocks) != len(b.Blocks) {
		return false
	}
	ra, errA := json.Marshal(a.Blocks)
	rb, errB := json.Marshal(b.Blocks)
	if errA != nil || errB != nil {
		return false
	}
	return string(ra) == string(rb)
}
