package tools

import (
	"context"
	"fmt"

	"blockdoc/internal/domain"
)

// TextTool is a configurable tool whose payload carries one text field.
// Paragraphs, headers, quotes, list items and code blocks are all TextTools
// with different names and capabilities.
type TextTool struct {
	ToolName  string
	TextKey   string
	Defaults  domain.Data // merged under the payload on Create
	Fallback  bool
	Nesting   bool
	NoMerge   bool
	NoConvert bool
}

func (t *TextTool) Name() string          { return t.ToolName }
func (t *TextTool) IsDefault() bool       { return t.Fallback }
func (t *TextTool) SupportsNesting() bool { return t.Nesting }

func (t *TextTool) Conversion() domain.ConversionConfig {
	if t.NoConvert || t.TextKey == "" {
		return domain.ConversionConfig{}
	}
	return domain.ConversionConfig{ExportKey: t.TextKey, ImportKey: t.TextKey}
}

func (t *TextTool) Create(_ context.Context, data domain.Data, _ domain.BlockRef, _ bool) (domain.Instance, error) {
	d := t.Defaults.Clone()
	if d == nil {
		d = domain.Data{}
	}
	for k, v := range data {
		d[k] = v
	}
	if t.TextKey != "" {
		switch v := d[t.TextKey].(type) {
		case nil:
			d[t.TextKey] = ""
		case string:
		default:
			return nil, fmt.Errorf("%s: field %q must be a string, got %T", t.ToolName, t.TextKey, v)
		}
	}
	return staticInstance{data: d}, nil
}

// Merge appends the incoming text to the current one.
func (t *TextTool) Merge(_ context.Context, current, incoming domain.Data) (domain.Data, error) {
	if t.NoMerge || t.TextKey == "" {
		return nil, domain.ErrMergeUnsupported
	}
	out := current.Clone()
	if out == nil {
		out = domain.Data{}
	}
	a, _ := current.String(t.TextKey)
	b, _ := incoming.String(t.TextKey)
	out[t.TextKey] = a + b
	return out, nil
}

// Delimiter is a content-less separator block.
type Delimiter struct{}

func (Delimiter) Name() string                        { return "delimiter" }
func (Delimiter) IsDefault() bool                     { return false }
func (Delimiter) SupportsNesting() bool               { return false }
func (Delimiter) Conversion() domain.ConversionConfig { return domain.ConversionConfig{} }

func (Delimiter) Create(context.Context, domain.Data, domain.BlockRef, bool) (domain.Instance, error) {
	return staticInstance{data: domain.Data{}}, nil
}

// RegisterBuiltins registers the tools the server ships with.
func RegisterBuiltins(r *Registry) {
	r.Register(&TextTool{ToolName: "paragraph", TextKey: "text", Fallback: true})
	r.Register(&TextTool{ToolName: "header", TextKey: "text", Defaults: domain.Data{"level": 2}})
	r.Register(&TextTool{ToolName: "quote", TextKey: "text", Defaults: domain.Data{"caption": ""}})
	r.Register(&TextTool{ToolName: "list", TextKey: "text", Defaults: domain.Data{"style": "unordered"}, Nesting: true})
	r.Register(&TextTool{ToolName: "toggle", TextKey: "text", Nesting: true})
	r.Register(&TextTool{ToolName: "code", TextKey: "code", NoMerge: true})
	r.Register(Delimiter{})
}
