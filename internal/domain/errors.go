package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidIndex is returned for negative, non-integer or out-of-range
	// indices. Nothing is applied when it is returned.
	ErrInvalidIndex = errors.New("invalid index")

	// ErrUnknownTool marks a block whose tool is not registered. The engine
	// recovers from it by stub substitution.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrToolConstruction marks a tool whose Create failed. Recovered like
	// ErrUnknownTool.
	ErrToolConstruction = errors.New("tool construction failed")

	// ErrConversionUnsupported is returned when the source tool has no export
	// or the target tool has no import transform.
	ErrConversionUnsupported = errors.New("conversion unsupported")

	// ErrMergeUnsupported is returned when the target tool cannot merge.
	ErrMergeUnsupported = errors.New("merge unsupported")

	// ErrNotFound is returned for unknown block ids or documents.
	ErrNotFound = errors.New("not found")

	// ErrInvariant reports structural corruption of the block collection.
	ErrInvariant = errors.New("block collection invariant violated")
)

// IndexError describes a rejected index.
type IndexError struct {
	Op    string
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: index %d out of range [0, %d]", e.Op, e.Index, e.Len)
}

func (e *IndexError) Unwrap() error { return ErrInvalidIndex }

// ConversionError names the side(s) of a conversion lacking a transform.
type ConversionError struct {
	Source        string
	Target        string
	MissingExport bool
	MissingImport bool
}

func (e *ConversionError) Error() string {
	var parts []string
	if e.MissingExport {
		parts = append(parts, fmt.Sprintf("%q has no export", e.Source))
	}
	if e.MissingImport {
		parts = append(parts, fmt.Sprintf("%q has no import", e.Target))
	}
	return fmt.Sprintf("convert %s to %s: %s", e.Source, e.Target, strings.Join(parts, " and "))
}

func (e *ConversionError) Unwrap() error { return ErrConversionUnsupported }
