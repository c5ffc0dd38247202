// Package history adapts the engine to an undo/redo layer. The engine only
// brackets its mutations; storing and replaying them is the bridge's job.
package history

import "context"

// Position is an opaque caret handle captured before a change. The history
// layer stores it and hands it back; it never interprets it.
type Position any

// Bridge is the contract with the undo/redo layer.
type Bridge interface {
	BeginGroup()
	EndGroup()
	MarkPositionBeforeChange(pos Position)
	// Undo and Redo report whether a group was replayed, along with the
	// position marked before that group's change.
	Undo(ctx context.Context) (Position, bool, error)
	Redo(ctx context.Context) (Position, bool, error)
}

// Labeler is implemented by bridges that can name the open group.
type Labeler interface {
	LabelGroup(label string)
}

// Noop is a Bridge that records nothing.
type Noop struct{}

func (Noop) BeginGroup()                                  {}
func (Noop) EndGroup()                                    {}
func (Noop) MarkPositionBeforeChange(Position)            {}
func (Noop) Undo(context.Context) (Position, bool, error) { return nil, false, nil }
func (Noop) Redo(context.Context) (Position, bool, error) { return nil, false, nil }
