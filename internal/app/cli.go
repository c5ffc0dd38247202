package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"blockdoc/internal/config"
	"blockdoc/internal/domain"
	"blockdoc/internal/logger"
)

const usage = `Usage: blockdoc [flags] [command] [args]

Commands:
  mcp                  serve the MCP tools on stdin/stdout (default)
  list                 list stored documents
  export <id> [file]   write a document as JSON (stdout when no file)
  import <file> [id]   store a JSON document, printing its id
  delete <id>          remove a document and its history
  version              print the version

Flags:
`

// Run executes the command line and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(config.AppName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	flags := &config.Flags{}
	rest, err := flags.Parse(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flags.Version {
		fmt.Fprintf(stdout, "%s %s\n", config.AppName, Version)
		return 0
	}

	cmd := "mcp"
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}
	if cmd == "version" {
		fmt.Fprintf(stdout, "%s %s\n", config.AppName, Version)
		return 0
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	if cmd != "mcp" {
		// One-shot commands save explicitly and exit.
		cfg.Autosave.Enabled = false
		cfg.Watch.Enabled = false
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating logger: %v\n", err)
		return 1
	}
	for _, key := range cfg.UnknownKeys {
		log.Warn("unknown configuration key", zap.String("key", key))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := New(cfg, log)
	if err := a.Startup(ctx); err != nil {
		log.Error("startup failed", zap.Error(err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		// The signal context may be gone; give the final save its own.
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		a.Shutdown(sctx)
	}()

	if err := a.runCommand(ctx, cmd, rest, stdout); err != nil {
		log.Error("command failed", zap.String("command", cmd), zap.Error(err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *App) runCommand(ctx context.Context, cmd string, args []string, stdout io.Writer) error {
	switch cmd {
	case "mcp":
		return a.ServeMCP(ctx)
	case "list":
		return a.listDocuments(ctx, stdout)
	case "export":
		if len(args) < 1 {
			return fmt.Errorf("export: document id required")
		}
		return a.exportDocument(ctx, args[0], args[1:], stdout)
	case "import":
		if len(args) < 1 {
			return fmt.Errorf("import: file required")
		}
		id := ""
		if len(args) > 1 {
			id = args[1]
		}
		return a.importDocument(ctx, args[0], id, stdout)
	case "delete":
		if len(args) < 1 {
			return fmt.Errorf("delete: document id required")
		}
		return a.docs.Delete(ctx, args[0])
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *App) listDocuments(ctx context.Context, stdout io.Writer) error {
	infos, err := a.docs.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tBLOCKS\tUPDATED")
	for _, d := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.ID, d.Title, d.BlockCount, d.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func (a *App) exportDocument(ctx context.Context, id string, args []string, stdout io.Writer) error {
	if _, err := a.docs.Open(ctx, id); err != nil {
		return err
	}
	defer a.docs.Close(ctx, id, false)

	data, err := a.docs.ExportJSON(ctx, id)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		return os.WriteFile(args[0], append(data, '\n'), 0644)
	}
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}

func (a *App) importDocument(ctx context.Context, path, id string, stdout io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if id != "" {
		// Replace a stored document as one undoable step of its history.
		if _, err := a.docs.Open(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	sess, err := a.docs.ImportJSON(ctx, id, data)
	if err != nil {
		return err
	}
	if err := a.docs.Close(ctx, sess.ID(), true); err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, sess.ID())
	return err
}
