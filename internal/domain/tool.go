package domain

import (
	"context"
	"fmt"
)

// StubTool is the registry name of the fallback tool that preserves blocks
// whose tool is missing or failed to construct.
const StubTool = "stub"

// BlockRef is the view of a block handed to tools at construction time.
type BlockRef interface {
	ID() string
	Index() int
}

// Instance is a constructed tool bound to one block.
type Instance interface {
	// Save returns the current payload of the block. May block on tool I/O.
	Save(ctx context.Context) (Data, error)
}

// Tool is the contract every block tool satisfies.
type Tool interface {
	Name() string
	IsDefault() bool
	SupportsNesting() bool
	Conversion() ConversionConfig
	// Create constructs an instance for data. May block on tool I/O; the
	// engine does not mutate the document until it returns.
	Create(ctx context.Context, data Data, block BlockRef, readOnly bool) (Instance, error)
}

// Merger is implemented by tools that can absorb the content of another
// block of the same shape (Backspace at the start of a block).
type Merger interface {
	Merge(ctx context.Context, current, incoming Data) (Data, error)
}

// ToolRegistry resolves tool names.
type ToolRegistry interface {
	Get(name string) (Tool, bool)
	Default() Tool
}

// ConversionConfig describes how a tool turns its data into plain text and
// back. Either the function or the key form may be set for each direction.
type ConversionConfig struct {
	Export    func(Data) (string, error)
	ExportKey string
	Import    func(string) (Data, error)
	ImportKey string
}

// CanExport reports whether the tool exposes an export transform.
func (c ConversionConfig) CanExport() bool { return c.Export != nil || c.ExportKey != "" }

// CanImport reports whether the tool exposes an import transform.
func (c ConversionConfig) CanImport() bool { return c.Import != nil || c.ImportKey != "" }

// ExportText applies the export transform.
func (c ConversionConfig) ExportText(d Data) (string, error) {
	if c.Export != nil {
		return c.Export(d)
	}
	if c.ExportKey == "" {
		return "", ErrConversionUnsupported
	}
	v, ok := d[c.ExportKey]
	if !ok || v == nil {
		return "", nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

// ImportText applies the import transform.
func (c ConversionConfig) ImportText(text string) (Data, error) {
	if c.Import != nil {
		return c.Import(text)
	}
	if c.ImportKey == "" {
		return nil, ErrConversionUnsupported
	}
	return Data{c.ImportKey: text}, nil
}
