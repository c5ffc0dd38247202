package tools

import (
	"context"

	"blockdoc/internal/domain"
)

// Stub stands in for a block whose tool is unknown or failed to construct.
// It keeps the original id, type and data verbatim so saving the document
// reproduces them.
type Stub struct{}

func (Stub) Name() string                        { return domain.StubTool }
func (Stub) IsDefault() bool                     { return false }
func (Stub) SupportsNesting() bool               { return false }
func (Stub) Conversion() domain.ConversionConfig { return domain.ConversionConfig{} }

func (Stub) Create(_ context.Context, data domain.Data, _ domain.BlockRef, _ bool) (domain.Instance, error) {
	return staticInstance{data: data.Clone()}, nil
}

// StubData wraps the original block for storage inside a stub block.
func StubData(original domain.SerializedBlock) domain.Data {
	return domain.Data{
		"title": original.Type,
		"savedData": domain.Data{
			"id":   original.ID,
			"type": original.Type,
			"data": original.Data.Clone(),
		},
	}
}

// StubOriginal unwraps the block preserved by StubData.
func StubOriginal(d domain.Data) (domain.SerializedBlock, bool) {
	saved, ok := asData(d["savedData"])
	if !ok {
		return domain.SerializedBlock{}, false
	}
	typ, _ := saved["type"].(string)
	if typ == "" {
		return domain.SerializedBlock{}, false
	}
	id, _ := saved["id"].(string)
	data, _ := asData(saved["data"])
	return domain.SerializedBlock{ID: id, Type: typ, Data: data.Clone()}, true
}

func asData(v any) (domain.Data, bool) {
	switch t := v.(type) {
	case domain.Data:
		return t, true
	case map[string]any:
		return domain.Data(t), true
	}
	return nil, false
}

type staticInstance struct {
	data domain.Data
}

func (s staticInstance) Save(context.Context) (domain.Data, error) {
	return s.data.Clone(), nil
}
