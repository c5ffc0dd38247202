package mcpserver

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"blockdoc/internal/domain"
	"blockdoc/internal/engine"
)

func (s *Server) registerBlockTools() {
	docID := mcp.WithString("docId", mcp.Description("Document ID (optional, defaults to active document)"))

	// ── insert_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("insert_block",
		mcp.WithDescription("Insert a block. Without an index it goes right after the current block."),
		mcp.WithString("type", mcp.Description("Tool name, e.g. paragraph, header, list, code (optional, defaults to the default tool)")),
		mcp.WithObject("data", mcp.Description("Block data (optional)")),
		mcp.WithObject("tunes", mcp.Description("Tune data keyed by tune name (optional)")),
		mcp.WithNumber("index", mcp.Description("Position to insert at (optional)")),
		mcp.WithBoolean("replace", mcp.Description("Replace the block at index instead of shifting it")),
		mcp.WithString("id", mcp.Description("Block ID to use (optional)")),
		mcp.WithString("parentId", mcp.Description("Parent block ID (optional)")),
		docID,
	), s.handleInsertBlock)

	// ── insert_blocks ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("insert_blocks",
		mcp.WithDescription("Insert several serialized blocks at an index, keeping their order. Nothing is inserted if any block fails."),
		mcp.WithString("blocks",
			mcp.Description(`JSON array of blocks [{"id?","type","data","tunes?","parent?"}, ...]`),
			mcp.Required(),
		),
		mcp.WithNumber("index", mcp.Description("Position to insert at"), mcp.Required()),
		docID,
	), s.handleInsertBlocks)

	// ── delete_block (destructive) ─────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_block",
		mcp.WithDescription("Delete a block and its nested children, by id or index. The document never becomes empty."),
		mcp.WithString("blockId", mcp.Description("Block ID (or use index)")),
		mcp.WithNumber("index", mcp.Description("Block index (or use blockId)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
		docID,
	), s.handleDeleteBlock)

	// ── move_block ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("move_block",
		mcp.WithDescription("Move the block at index 'from' to index 'to'"),
		mcp.WithNumber("from", mcp.Description("Current index"), mcp.Required()),
		mcp.WithNumber("to", mcp.Description("Target index"), mcp.Required()),
		docID,
	), s.handleMoveBlock)

	// ── reparent_block ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("reparent_block",
		mcp.WithDescription("Nest a block under a parent, or lift it to the top level when parentId is empty"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("parentId", mcp.Description("New parent block ID (optional)")),
		docID,
	), s.handleReparentBlock)

	// ── duplicate_blocks ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("duplicate_blocks",
		mcp.WithDescription("Insert copies of blocks at an index. Copies get fresh ids."),
		mcp.WithArray("blockIds", mcp.Description("Block IDs to copy, in order"), mcp.Required(), mcp.WithStringItems()),
		mcp.WithNumber("index", mcp.Description("Position to insert the copies at"), mcp.Required()),
		docID,
	), s.handleDuplicateBlocks)

	// ── update_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("update_block",
		mcp.WithDescription("Replace the data (and optionally tunes) of a block, keeping its id"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithObject("data", mcp.Description("New block data"), mcp.Required()),
		mcp.WithObject("tunes", mcp.Description("New tune data (optional)")),
		docID,
	), s.handleUpdateBlock)

	// ── convert_block ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("convert_block",
		mcp.WithDescription("Convert a block to another tool through the tools' conversion config"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("target", mcp.Description("Target tool name"), mcp.Required()),
		mcp.WithObject("overrides", mcp.Description("Data laid over the converted block (optional)")),
		docID,
	), s.handleConvertBlock)

	// ── split_block ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("split_block",
		mcp.WithDescription("Split a block: keep 'truncated' in it and insert a new block holding 'newData'"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithObject("truncated", mcp.Description("Data that stays in the block"), mcp.Required()),
		mcp.WithObject("newData", mcp.Description("Data of the new block")),
		mcp.WithString("newType", mcp.Description("Tool of the new block (optional, defaults to the default tool)")),
		mcp.WithNumber("index", mcp.Description("Position of the new block (optional, right after)")),
		mcp.WithNumber("offset", mcp.Description("Caret offset inside the block before the split (optional, defaults to the end of 'truncated' text)")),
		docID,
	), s.handleSplitBlock)

	// ── merge_blocks ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("merge_blocks",
		mcp.WithDescription("Append the content of sourceId to targetId and remove the source"),
		mcp.WithString("targetId", mcp.Description("Block that receives the content"), mcp.Required()),
		mcp.WithString("sourceId", mcp.Description("Block that is merged and removed"), mcp.Required()),
		docID,
	), s.handleMergeBlocks)

	// ── clear_document (destructive) ───────────────────
	s.mcp.AddTool(mcp.NewTool("clear_document",
		mcp.WithDescription("Remove every block, leaving one empty default block"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
		docID,
	), s.handleClearDocument)

	// ── get_block ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("get_block",
		mcp.WithDescription("Get a block by id"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
		docID,
	), s.handleGetBlock)

	// ── get_block_by_index ─────────────────────────────
	s.mcp.AddTool(mcp.NewTool("get_block_by_index",
		mcp.WithDescription("Get the block at an index"),
		mcp.WithNumber("index", mcp.Description("Block index"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
		docID,
	), s.handleGetBlockByIndex)

	// ── get_children ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("get_children",
		mcp.WithDescription("List the direct children of a block"),
		mcp.WithString("blockId", mcp.Description("Parent block ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
		docID,
	), s.handleGetChildren)

	// ── list_blocks ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_blocks",
		mcp.WithDescription("List all blocks of a document in order, optionally filtered by type"),
		mcp.WithString("type", mcp.Description("Filter by tool name (optional)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
		docID,
	), s.handleListBlocks)
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleInsertBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	data, err := dataArg(args, "data")
	if err != nil {
		return nil, err
	}
	tunes, err := tunesArg(args, "tunes")
	if err != nil {
		return nil, err
	}
	index, err := indexArg(args, "index")
	if err != nil {
		return nil, err
	}
	in := engine.InsertInput{
		Tool:     req.GetString("type", ""),
		Data:     data,
		Tunes:    tunes,
		Index:    index,
		Replace:  req.GetBool("replace", false),
		ID:       req.GetString("id", ""),
		ParentID: req.GetString("parentId", ""),
	}

	return s.withEngine(ctx, args, func(ctx context.Context, e *engine.Engine) (any, error) {
		h, err := e.Insert(ctx, in)
		if err != nil {
			return nil, err
		}
		return summarizeBlock(h), nil
	})
}

func (s *Server) handleInsertBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	index, err := requiredIndex(args, "index")
	if err != nil {
		return nil, err
	}
	raw, err := requiredString(args, "blocks")
	if err != nil {
		return nil, err
	}
	var recs []domain.SerializedBlock
	if err := parseJSON(raw, &recs); err != nil {
		return nil, fmt.Errorf("blocks: invalid JSON array: %w", err)
	}

	return s.withEngine(ctx, args, func(ctx context.Context, e *engine.Engine) (any, error) {
		hs, err := e.InsertMany(ctx, recs, index)
		if err != nil {
			return nil, err
		}
		return summarizeAll(hs), nil
	})
}

func (s *Server) handleDeleteBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockID := req.GetString("blockId", "")
	index, err := indexArg(args, "index")
	if err != nil {
		return nil, err
	}
	if blockID == "" && index == nil {
		return nil, fmt.Errorf("blockId or index is required")
	}

	return s.withEngine(ctx, args, func(ctx context.Context, e *engine.Engine) (any, error) {
		var caret int
		var err error
		if blockID != "" {
			caret, err = e.Delete(ctx, blockID)
		} else {
			blockID = e.IDAt(*index)
			caret, err = e.DeleteAt(ctx, *index)
		}
		if err != nil {
			return nil, err
		}
		return deleteResult{Deleted: blockID, Caret: caret, CaretBlockID: e.IDAt(caret)}, nil
	})
}

func (s *Server) handleMoveBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	from, err := requiredIndex(args, "from")
	if err != nil {
		return nil, err
	}
	to, err := requiredIndex(args, "to")
	if err != nil {
		return nil, err
	}

	return s.withEngine(ctx, args, func(ctx context.Context, e *engine.Engine) (any, error) {
		if err := e.Move(ctx, to, from); err != nil {
			return nil, err
		}
		return fmt.Sprintf("Block moved from %d to %d", from, to), nil
	})
}

func (s *Server) handleReparentBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockID, err := requiredString(args, "blockId")
	if err != nil {
		return nil, err
	}
	parentID := req.GetString("parentId", "")

	return s.withEngine(ctx, args, func(ctx context.Context, e *engine.Engine) (any, error) {
		if err := e.Reparent(ctx, blockID, parentID); err != nil {
			return nil, err
		}
		h, _ := e.GetByID(blockID)
		return summarizeBlock(h), nil
	})
}

func (s *Server) handleDuplicateBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	ids, err := stringsArg(args, "blockIds")
	if err != nil {
		return nil, err
	}
	index, err := requiredIndex(args, "index")
	if err != nil {
		return nil, err
	}

	return s.withEngine(ctx, args, func(ctx context.Context, e *engine.Engine) (any, error) {
		hs, err := e.Duplicate(ctx, ids, index)
		if err != nil {
			return nil, err
		}
		return summarizeAll(hs), nil
	})
}

func (s *Server) handleUpdateBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockID, err := requiredString(args, "blockId")
	if err != nil {
		return nil, err
	}
	data, err := dataArg(args, "data")
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("data is required")
	}
	tunes, err := tunesArg(args, "tunes")
	if err != nil {
		return nil, err
	}

	return s.withEngine(ctx, args, func(ctx context.Context, e *engine.Engine) (any, error) {
		h, err := e.Update(ctx, blockID, data, tunes)
		if err != nil {
			return nil, err
		}
		return summarizeBlock(h), nil
	})
}

func (s *Server) handleConvertBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockID, err := requiredString(args, "blockId")
	if err != nil {
		return nil, err
	}
	target, err := requiredString(args, "target")
	if err != nil {
		return nil, err
	}
	overrides, err := dataArg(args, "overrides")
	if err != nil {
		return nil, err
	}

	return s.withEngine(ctx, args, func(ctx context.Context, e *engine.Engine) (any, error) {
		h, err := e.Convert(ctx, blockID, target, overrides)
		if err != nil {
			return nil, err
		}
		return summarizeBlock(h), nil
	})
}

func (s *Server) handleSplitBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockID, err := requiredString(args, "blockId")
	if err != nil {
		return nil, err
	}
	truncated, err := dataArg(args, "truncated")
	if err != nil {
		return nil, err
	}
	newData, err := dataArg(args, "newData")
	if err != nil {
		return nil, err
	}
	index, err := indexArg(args, "index")
	if err != nil {
		return nil, err
	}
	offset, err := indexArg(args, "offset")
	if err != nil {
		return nil, err
	}
	if offset == nil {
		text, _ := truncated.String("text")
		n := utf8.RuneCountInString(text)
		offset = &n
	}
	in := engine.SplitInput{
		ID:        blockID,
		Truncated: truncated,
		NewTool:   req.GetString("newType", ""),
		NewData:   newData,
		Index:     index,
	}

	return s.withEngine(ctx, args, func(ctx context.Context, e *engine.Engine) (any, error) {
		if e.SetCurrent(blockID) {
			e.MarkCaret(*offset)
		}
		h, err := e.Split(ctx, in)
		if err != nil {
			return nil, err
		}
		return summarizeBlock(h), nil
	})
}

func (s *Server) handleMergeBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	targetID, err := requiredString(args, "targetId")
	if err != nil {
		return nil, err
	}
	sourceID, err := requiredString(args, "sourceId")
	if err != nil {
		return nil, err
	}

	return s.withEngine(ctx, args, func(ctx context.Context, e *engine.Engine) (any, error) {
		if err := e.Merge(ctx, targetID, sourceID); err != nil {
			return nil, err
		}
		h, _ := e.GetByID(targetID)
		return summarizeBlock(h), nil
	})
}

func (s *Server) handleClearDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.withEngine(ctx, req.GetArguments(), func(ctx context.Context, e *engine.Engine) (any, error) {
		if err := e.Clear(ctx); err != nil {
			return nil, err
		}
		return "Document cleared", nil
	})
}

func (s *Server) handleGetBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockID, err := requiredString(args, "blockId")
	if err != nil {
		return nil, err
	}

	return s.withEngine(ctx, args, func(ctx context.Context, e *engine.Engine) (any, error) {
		h, ok := e.GetByID(blockID)
		if !ok {
			return nil, fmt.Errorf("block %s: %w", blockID, domain.ErrNotFound)
		}
		return summarizeBlock(h), nil
	})
}

func (s *Server) handleGetBlockByIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	index, err := requiredIndex(args, "index")
	if err != nil {
		return nil, err
	}

	return s.withEngine(ctx, args, func(ctx context.Context, e *engine.Engine) (any, error) {
		h, ok := e.GetByIndex(index)
		if !ok {
			return nil, &domain.IndexError{Op: "get", Index: index, Len: e.Len()}
		}
		return summarizeBlock(h), nil
	})
}

func (s *Server) handleGetChildren(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockID, err := requiredString(args, "blockId")
	if err != nil {
		return nil, err
	}

	return s.withEngine(ctx, args, func(ctx context.Context, e *engine.Engine) (any, error) {
		if _, ok := e.GetByID(blockID); !ok {
			return nil, fmt.Errorf("block %s: %w", blockID, domain.ErrNotFound)
		}
		return summarizeAll(e.Children(blockID)), nil
	})
}

func (s *Server) handleListBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	filterType := req.GetString("type", "")

	return s.withEngine(ctx, args, func(ctx context.Context, e *engine.Engine) (any, error) {
		summaries := make([]blockSummary, 0, e.Len())
		for _, h := range e.Blocks() {
			if filterType != "" && h.Tool() != filterType {
				continue
			}
			summaries = append(summaries, summarizeBlock(h))
		}
		return summaries, nil
	})
}
