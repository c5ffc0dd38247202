package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockdoc/internal/domain"
	"blockdoc/internal/service"
	"blockdoc/internal/storage"
	"blockdoc/internal/tools"
)

type handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "test.db"), filepath.Join(dir, "docs"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := tools.NewRegistry()
	tools.RegisterBuiltins(reg)
	docs := service.NewDocumentService(storage.NewDocumentStore(db), storage.NewUndoStore(db, 0, nil), reg, nil,
		service.Options{HistoryLimit: 50, DebugInvariants: true}, nil)
	return New(Deps{Docs: docs})
}

func call(t *testing.T, h handler, args map[string]any) (string, error) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	if err != nil {
		return "", err
	}
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, nil
}

func mustCall(t *testing.T, h handler, args map[string]any) string {
	t.Helper()
	out, err := call(t, h, args)
	require.NoError(t, err)
	return out
}

func listBlocks(t *testing.T, s *Server) []blockSummary {
	t.Helper()
	var out []blockSummary
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s.handleListBlocks, nil)), &out))
	return out
}

func texts(bs []blockSummary) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i], _ = b.Data.String("text")
	}
	return out
}

func TestOpenDocument_CreatesAndActivates(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s.handleOpenDocument, nil)
	require.NotEmpty(t, s.ActiveDocument())

	blocks := listBlocks(t, s)
	require.Len(t, blocks, 1)
	assert.Equal(t, "paragraph", blocks[0].Type)
}

func TestTools_RequireActiveDocument(t *testing.T) {
	s := newTestServer(t)
	_, err := call(t, s.handleListBlocks, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no active document")
}

func TestInsertBlock_AcceptsObjectAndStringData(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s.handleOpenDocument, nil)

	mustCall(t, s.handleInsertBlock, map[string]any{
		"type": "paragraph", "data": map[string]any{"text": "first"}, "index": float64(0),
	})
	mustCall(t, s.handleInsertBlock, map[string]any{
		"type": "header", "data": `{"text":"title","level":1}`, "index": float64(0),
	})

	blocks := listBlocks(t, s)
	require.Len(t, blocks, 3)
	assert.Equal(t, []string{"title", "first", ""}, texts(blocks))
	assert.Equal(t, "header", blocks[0].Type)
	assert.Equal(t, []int{0, 1, 2}, []int{blocks[0].Index, blocks[1].Index, blocks[2].Index})
}

func TestInsertBlock_RejectsBadIndex(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s.handleOpenDocument, nil)

	_, err := call(t, s.handleInsertBlock, map[string]any{"index": 0.5})
	require.ErrorIs(t, err, domain.ErrInvalidIndex)

	_, err = call(t, s.handleInsertBlock, map[string]any{"index": float64(7)})
	require.ErrorIs(t, err, domain.ErrInvalidIndex)

	assert.Len(t, listBlocks(t, s), 1)
}

func TestInsertBlocks_KeepsOrder(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s.handleOpenDocument, nil)

	mustCall(t, s.handleInsertBlocks, map[string]any{
		"blocks": `[{"type":"paragraph","data":{"text":"a"}},{"type":"paragraph","data":{"text":"b"}}]`,
		"index":  float64(1),
	})
	assert.Equal(t, []string{"", "a", "b"}, texts(listBlocks(t, s)))
}

func TestSplitMergeAndUndo(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s.handleOpenDocument, nil)
	first := listBlocks(t, s)[0]
	mustCall(t, s.handleUpdateBlock, map[string]any{"blockId": first.ID, "data": map[string]any{"text": "hello world"}})

	out := mustCall(t, s.handleSplitBlock, map[string]any{
		"blockId":   first.ID,
		"truncated": map[string]any{"text": "hello"},
		"newData":   map[string]any{"text": " world"},
	})
	var tail blockSummary
	require.NoError(t, json.Unmarshal([]byte(out), &tail))
	assert.Equal(t, 1, tail.Index)
	assert.Equal(t, []string{"hello", " world"}, texts(listBlocks(t, s)))

	mustCall(t, s.handleMergeBlocks, map[string]any{"targetId": first.ID, "sourceId": tail.ID})
	assert.Equal(t, []string{"hello world"}, texts(listBlocks(t, s)))

	assert.Equal(t, "Undo applied", mustCall(t, s.handleUndo, nil))
	assert.Equal(t, []string{"hello", " world"}, texts(listBlocks(t, s)))
	assert.Equal(t, "Redo applied", mustCall(t, s.handleRedo, nil))
	assert.Equal(t, []string{"hello world"}, texts(listBlocks(t, s)))
}

func TestMoveDeleteAndGet(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s.handleOpenDocument, nil)
	mustCall(t, s.handleInsertBlocks, map[string]any{
		"blocks": `[{"id":"a","type":"paragraph","data":{"text":"a"}},{"id":"b","type":"paragraph","data":{"text":"b"}}]`,
		"index":  float64(0),
	})

	mustCall(t, s.handleMoveBlock, map[string]any{"from": float64(0), "to": float64(1)})
	assert.Equal(t, []string{"b", "a", ""}, texts(listBlocks(t, s)))

	var got blockSummary
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s.handleGetBlockByIndex, map[string]any{"index": float64(1)})), &got))
	assert.Equal(t, "a", got.ID)

	mustCall(t, s.handleDeleteBlock, map[string]any{"blockId": "a"})
	_, err := call(t, s.handleGetBlock, map[string]any{"blockId": "a"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = call(t, s.handleGetBlockByIndex, map[string]any{"index": float64(5)})
	require.ErrorIs(t, err, domain.ErrInvalidIndex)
}

func TestDeleteBlock_ReportsRemovedBlockAndCaret(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s.handleOpenDocument, nil)
	mustCall(t, s.handleInsertBlocks, map[string]any{
		"blocks": `[{"id":"a","type":"paragraph","data":{"text":"a"}},{"id":"b","type":"paragraph","data":{"text":"b"}},{"id":"c","type":"paragraph","data":{"text":"c"}}]`,
		"index":  float64(0),
	})

	var res deleteResult
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s.handleDeleteBlock, map[string]any{"index": float64(0)})), &res))
	assert.Equal(t, deleteResult{Deleted: "a", Caret: 0, CaretBlockID: "b"}, res)

	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s.handleDeleteBlock, map[string]any{"blockId": "c"})), &res))
	assert.Equal(t, deleteResult{Deleted: "c", Caret: 0, CaretBlockID: "b"}, res)

	assert.Equal(t, []string{"b", ""}, texts(listBlocks(t, s)))
}

func TestSplitBlock_UndoReportsCaret(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s.handleOpenDocument, nil)
	first := listBlocks(t, s)[0]
	mustCall(t, s.handleUpdateBlock, map[string]any{"blockId": first.ID, "data": map[string]any{"text": "hello world"}})

	mustCall(t, s.handleSplitBlock, map[string]any{
		"blockId":   first.ID,
		"truncated": map[string]any{"text": "hello"},
		"newData":   map[string]any{"text": " world"},
	})
	assert.Equal(t, "Undo applied, caret in block "+first.ID+" at 5", mustCall(t, s.handleUndo, nil))
	assert.Equal(t, []string{"hello world"}, texts(listBlocks(t, s)))
}

func TestNestingTools(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s.handleOpenDocument, nil)
	mustCall(t, s.handleInsertBlocks, map[string]any{
		"blocks": `[{"id":"l","type":"list","data":{"text":"list"}},{"id":"c","type":"paragraph","data":{"text":"child"}}]`,
		"index":  float64(0),
	})
	mustCall(t, s.handleReparentBlock, map[string]any{"blockId": "c", "parentId": "l"})

	var children []blockSummary
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s.handleGetChildren, map[string]any{"blockId": "l"})), &children))
	require.Len(t, children, 1)
	assert.Equal(t, "c", children[0].ID)
	assert.Equal(t, 1, children[0].Depth)

	mustCall(t, s.handleDuplicateBlocks, map[string]any{"blockIds": []any{"l", "c"}, "index": float64(0)})
	assert.Len(t, listBlocks(t, s), 5)
}

func TestConvertBlock(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s.handleOpenDocument, nil)
	first := listBlocks(t, s)[0]
	mustCall(t, s.handleUpdateBlock, map[string]any{"blockId": first.ID, "data": map[string]any{"text": "quote me"}})

	var converted blockSummary
	out := mustCall(t, s.handleConvertBlock, map[string]any{"blockId": first.ID, "target": "quote"})
	require.NoError(t, json.Unmarshal([]byte(out), &converted))
	assert.Equal(t, "quote", converted.Type)
	text, _ := converted.Data.String("text")
	assert.Equal(t, "quote me", text)
}

func TestSaveListAndReopen(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s.handleOpenDocument, nil)
	docID := s.ActiveDocument()
	first := listBlocks(t, s)[0]
	mustCall(t, s.handleUpdateBlock, map[string]any{"blockId": first.ID, "data": map[string]any{"text": "Saved note"}})

	mustCall(t, s.handleSaveDocument, nil)
	var infos []domain.DocumentInfo
	require.NoError(t, json.Unmarshal([]byte(mustCall(t, s.handleListDocuments, nil)), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, docID, infos[0].ID)
	assert.Equal(t, "Saved note", infos[0].Title)

	mustCall(t, s.handleCloseDocument, nil)
	assert.Empty(t, s.ActiveDocument())

	mustCall(t, s.handleOpenDocument, map[string]any{"docId": docID})
	assert.Equal(t, []string{"Saved note"}, texts(listBlocks(t, s)))
}

func TestImportExport(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s.handleImportDocument, map[string]any{
		"json": `{"blocks":[{"id":"x","type":"paragraph","data":{"text":"imported"}}]}`,
	})
	out := mustCall(t, s.handleExportDocument, nil)

	var doc domain.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, "x", doc.Blocks[0].ID)
}

func TestDocIDFromURI(t *testing.T) {
	cases := []struct {
		uri  string
		want string
	}{
		{"blockdoc://document/abc-123/blocks", "abc-123"},
		{"blockdoc://document/abc/def/blocks", ""},
		{"blockdoc://document/abc", ""},
		{"notes://page/abc/blocks", ""},
	}
	for _, c := range cases {
		if got := docIDFromURI(c.uri); got != c.want {
			t.Errorf("docIDFromURI(%q) = %q, want %q", c.uri, got, c.want)
		}
	}
}

func TestDocumentBlocksResource(t *testing.T) {
	s := newTestServer(t)
	mustCall(t, s.handleOpenDocument, nil)

	req := mcp.ReadResourceRequest{}
	req.Params.URI = documentURIPrefix + s.ActiveDocument() + "/blocks"
	contents, err := s.handleDocumentBlocksResource(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text := contents[0].(mcp.TextResourceContents).Text
	var blocks []blockSummary
	require.NoError(t, json.Unmarshal([]byte(text), &blocks))
	assert.Len(t, blocks, 1)
}

func TestRegisteredTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	s.mcp.HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`))
	resp := s.mcp.HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	for _, name := range []string{
		"insert_block", "insert_blocks", "delete_block", "move_block", "update_block",
		"convert_block", "split_block", "merge_blocks", "get_block", "get_block_by_index",
		"get_children", "list_blocks", "undo", "redo", "open_document", "save_document",
		"list_documents",
	} {
		assert.Contains(t, string(raw), `"name":"`+name+`"`)
	}
}
