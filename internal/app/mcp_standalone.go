package app

import (
	"context"

	"blockdoc/internal/logger"
	mcpserver "blockdoc/internal/mcp"
)

// ServeMCP runs the app as an MCP server on stdin/stdout until ctx is done
// or the client disconnects. Startup must have succeeded.
func (a *App) ServeMCP(ctx context.Context) error {
	srv := mcpserver.New(mcpserver.Deps{
		Name:    a.cfg.MCP.Name,
		Version: a.cfg.MCP.Version,
		Docs:    a.docs,
		Logger:  logger.Module(a.log, "mcp"),
	})
	return srv.ServeStdio(ctx)
}
