package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"blockdoc/internal/engine"
)

func (s *Server) registerDocumentTools() {
	// ── list_documents ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the stored documents, most recently updated first"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListDocuments)

	// ── open_document ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("open_document",
		mcp.WithDescription("Open a document and make it active for subsequent tool calls. Without docId a new document is created."),
		mcp.WithString("docId", mcp.Description("Document ID (optional)")),
	), s.handleOpenDocument)

	// ── save_document ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("save_document",
		mcp.WithDescription("Save a document to the store"),
		mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleSaveDocument)

	// ── close_document ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("close_document",
		mcp.WithDescription("Close a document, saving unsaved changes unless discard is set"),
		mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithBoolean("discard", mcp.Description("Drop unsaved changes")),
	), s.handleCloseDocument)

	// ── export_document ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("export_document",
		mcp.WithDescription("Serialize a document to JSON"),
		mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleExportDocument)

	// ── import_document ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("import_document",
		mcp.WithDescription("Load a serialized document. An open document is replaced as one undoable step."),
		mcp.WithString("json", mcp.Description(`Document JSON {"blocks":[...]}`), mcp.Required()),
		mcp.WithString("docId", mcp.Description("Document ID (optional, a new one is created)")),
	), s.handleImportDocument)

	// ── undo / redo ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the last change of a document"),
		mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleUndo)

	s.mcp.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the last undone change of a document"),
		mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleRedo)
}

func (s *Server) handleListDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return jsonResult(docs)
}

func (s *Server) handleOpenDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID := req.GetString("docId", "")
	if docID == "" {
		sess, err := s.docs.Create(ctx)
		if err != nil {
			return nil, err
		}
		s.setActiveDocument(sess.ID())
		return textResult(fmt.Sprintf("Document %s created and active", sess.ID())), nil
	}

	sess, err := s.docs.Open(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("open document %s: %w", docID, err)
	}
	s.setActiveDocument(sess.ID())
	return textResult(fmt.Sprintf("Document %s is active", sess.ID())), nil
}

func (s *Server) handleSaveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := s.resolveDocID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	if err := s.docs.Save(ctx, docID); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Document %s saved", docID)), nil
}

func (s *Server) handleCloseDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := s.resolveDocID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	if err := s.docs.Close(ctx, docID, !req.GetBool("discard", false)); err != nil {
		return nil, err
	}
	if s.ActiveDocument() == docID {
		s.setActiveDocument("")
	}
	return textResult(fmt.Sprintf("Document %s closed", docID)), nil
}

func (s *Server) handleExportDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := s.resolveDocID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	if _, err := s.docs.Open(ctx, docID); err != nil {
		return nil, fmt.Errorf("open document %s: %w", docID, err)
	}
	data, err := s.docs.ExportJSON(ctx, docID)
	if err != nil {
		return nil, err
	}
	return textResult(string(data)), nil
}

func (s *Server) handleImportDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	raw, err := requiredString(args, "json")
	if err != nil {
		return nil, err
	}
	sess, err := s.docs.ImportJSON(ctx, req.GetString("docId", ""), []byte(raw))
	if err != nil {
		return nil, err
	}
	s.setActiveDocument(sess.ID())
	return textResult(fmt.Sprintf("Document %s imported and active", sess.ID())), nil
}

func (s *Server) handleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.stepHistory(ctx, req, false)
}

func (s *Server) handleRedo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.stepHistory(ctx, req, true)
}

func (s *Server) stepHistory(ctx context.Context, req mcp.CallToolRequest, redo bool) (*mcp.CallToolResult, error) {
	docID, err := s.resolveDocID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	sess, err := s.docs.Open(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("open document %s: %w", docID, err)
	}

	verb := "Undo"
	step := sess.Undo
	if redo {
		verb, step = "Redo", sess.Redo
	}
	pos, ok, err := step(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", verb, err)
	}
	if !ok {
		return textResult(fmt.Sprintf("Nothing to %s", verb)), nil
	}
	if c, ok := pos.(engine.Caret); ok {
		return textResult(fmt.Sprintf("%s applied, caret in block %s at %d", verb, c.BlockID, c.Offset)), nil
	}
	return textResult(fmt.Sprintf("%s applied", verb)), nil
}
