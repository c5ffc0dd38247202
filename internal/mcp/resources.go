package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"blockdoc/internal/engine"
)

const (
	documentsURI      = "blockdoc://documents"
	documentURIPrefix = "blockdoc://document/"
)

func (s *Server) registerResources() {
	// ── blockdoc://documents ───────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		documentsURI,
		"All Documents",
		mcp.WithMIMEType("application/json"),
	), s.handleDocumentsResource)

	// ── blockdoc://document/{docId}/blocks ─────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			documentURIPrefix+"{docId}/blocks",
			"Blocks of a Document",
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleDocumentBlocksResource,
	)
}

func (s *Server) handleDocumentsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return nil, err
	}
	data, _ := json.MarshalIndent(docs, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      documentsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleDocumentBlocksResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	docID := docIDFromURI(uri)
	if docID == "" {
		return nil, fmt.Errorf("could not extract docId from URI: %s", uri)
	}

	sess, err := s.docs.Open(ctx, docID)
	if err != nil {
		return nil, err
	}
	var summaries []blockSummary
	err = sess.Do(ctx, func(ctx context.Context, e *engine.Engine) error {
		summaries = summarizeAll(e.Blocks())
		return nil
	})
	if err != nil {
		return nil, err
	}

	data, _ := json.MarshalIndent(summaries, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// docIDFromURI extracts the id from "blockdoc://document/{id}/blocks".
func docIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, documentURIPrefix)
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/blocks")
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
