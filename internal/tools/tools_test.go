package tools_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockdoc/internal/domain"
	"blockdoc/internal/tools"
)

func TestRegistry_Builtins(t *testing.T) {
	r := tools.NewRegistry()
	tools.RegisterBuiltins(r)

	assert.Equal(t, "paragraph", r.Default().Name())
	assert.Equal(t, []string{"code", "delimiter", "header", "list", "paragraph", "quote", "toggle"}, r.Names())

	_, ok := r.Get(domain.StubTool)
	assert.True(t, ok, "stub is always registered")
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := tools.NewRegistry()
	r.Register(tools.Delimiter{})
	assert.Panics(t, func() { r.Register(tools.Delimiter{}) })
}

func TestRegistry_SecondDefaultPanics(t *testing.T) {
	r := tools.NewRegistry()
	r.Register(&tools.TextTool{ToolName: "a", TextKey: "text", Fallback: true})
	assert.Panics(t, func() {
		r.Register(&tools.TextTool{ToolName: "b", TextKey: "text", Fallback: true})
	})
}

func TestRegistry_SetDefault(t *testing.T) {
	r := tools.NewRegistry()
	assert.Equal(t, domain.StubTool, r.Default().Name())

	tools.RegisterBuiltins(r)
	require.NoError(t, r.SetDefault("header"))
	assert.Equal(t, "header", r.Default().Name())
	require.ErrorIs(t, r.SetDefault("nope"), domain.ErrUnknownTool)
	require.ErrorIs(t, r.SetDefault(domain.StubTool), domain.ErrUnknownTool)
}

func TestTextTool_CreateAppliesDefaults(t *testing.T) {
	tool := &tools.TextTool{ToolName: "header", TextKey: "text", Defaults: domain.Data{"level": 2}}

	inst, err := tool.Create(context.Background(), domain.Data{"text": "Hi"}, nil, false)
	require.NoError(t, err)
	data, err := inst.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Data{"text": "Hi", "level": 2}, data)

	inst, err = tool.Create(context.Background(), nil, nil, false)
	require.NoError(t, err)
	data, _ = inst.Save(context.Background())
	assert.Equal(t, "", data["text"])
}

func TestTextTool_CreateRejectsNonStringText(t *testing.T) {
	tool := &tools.TextTool{ToolName: "paragraph", TextKey: "text"}
	_, err := tool.Create(context.Background(), domain.Data{"text": 42}, nil, false)
	require.Error(t, err)
}

func TestTextTool_Merge(t *testing.T) {
	p := &tools.TextTool{ToolName: "paragraph", TextKey: "text"}
	out, err := p.Merge(context.Background(), domain.Data{"text": "foo", "x": 1}, domain.Data{"text": "bar"})
	require.NoError(t, err)
	assert.Equal(t, domain.Data{"text": "foobar", "x": 1}, out)

	code := &tools.TextTool{ToolName: "code", TextKey: "code", NoMerge: true}
	_, err = code.Merge(context.Background(), domain.Data{}, domain.Data{})
	require.ErrorIs(t, err, domain.ErrMergeUnsupported)
}

func TestStub_PreservesOriginal(t *testing.T) {
	orig := domain.SerializedBlock{ID: "b1", Type: "table", Data: domain.Data{"rows": []any{"a"}}}
	data := tools.StubData(orig)
	assert.Equal(t, "table", data["title"])

	back, ok := tools.StubOriginal(data)
	require.True(t, ok)
	assert.Equal(t, "b1", back.ID)
	assert.Equal(t, "table", back.Type)
	assert.True(t, orig.Data.Equal(back.Data))

	_, ok = tools.StubOriginal(domain.Data{"title": "x"})
	assert.False(t, ok)
}

func TestConversionConfig(t *testing.T) {
	c := domain.ConversionConfig{ExportKey: "text", ImportKey: "content"}
	s, err := c.ExportText(domain.Data{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", s)

	d, err := c.ImportText("hi")
	require.NoError(t, err)
	assert.Equal(t, domain.Data{"content": "hi"}, d)

	var none domain.ConversionConfig
	assert.False(t, none.CanExport())
	assert.False(t, none.CanImport())
	_, err = none.ImportText("x")
	require.ErrorIs(t, err, domain.ErrConversionUnsupported)
}
