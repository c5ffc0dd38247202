package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"blockdoc/internal/engine"
	"blockdoc/internal/service"
)

// Server is the MCP server of blockdoc.
// It exposes the block mutation surface of open documents so AI agents can
// edit them.
type Server struct {
	mcp  *server.MCPServer
	docs *service.DocumentService
	log  *zap.Logger

	// Active document (set by open_document)
	mu           sync.Mutex
	activeDocID string
}

// Deps holds what the app layer passes to the MCP server.
type Deps struct {
	Name    string
	Version string
	Docs    *service.DocumentService
	Logger  *zap.Logger
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	name, version := deps.Name, deps.Version
	if name == "" {
		name = "blockdoc-mcp"
	}
	if version == "" {
		version = "1.0.0"
	}

	s := &Server{docs: deps.Docs, log: log}
	s.mcp = server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithRecovery(),
	)

	s.registerDocumentTools()
	s.registerBlockTools()
	s.registerResources()
	return s
}

// ServeStdio runs the MCP server on stdin/stdout until ctx is done.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve runs the MCP protocol over in/out until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.log))
	s.log.Info("starting stdio server")
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ActiveDocument returns the id tools fall back to.
func (s *Server) ActiveDocument() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeDocID
}

func (s *Server) setActiveDocument(id string) {
	s.mu.Lock()
	s.activeDocID = id
	s.mu.Unlock()
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// resolveDocID returns the docId from tool args or falls back to the active
// document.
func (s *Server) resolveDocID(args map[string]any) (string, error) {
	if id, ok := args["docId"].(string); ok && id != "" {
		return id, nil
	}
	if id := s.ActiveDocument(); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("no docId provided and no active document (use open_document first)")
}

// withEngine runs fn against the engine of the addressed document, opening
// it when needed, and returns whatever fn returns as JSON.
func (s *Server) withEngine(ctx context.Context, args map[string]any, fn func(ctx context.Context, e *engine.Engine) (any, error)) (*mcp.CallToolResult, error) {
	docID, err := s.resolveDocID(args)
	if err != nil {
		return nil, err
	}
	sess, err := s.docs.Open(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("open document %s: %w", docID, err)
	}

	var out any
	err = sess.Do(ctx, func(ctx context.Context, e *engine.Engine) error {
		var err error
		out, err = fn(ctx, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	if text, ok := out.(string); ok {
		return textResult(text), nil
	}
	return jsonResult(out)
}
