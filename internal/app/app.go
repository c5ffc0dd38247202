// Package app wires configuration, storage, services and the agent surface
// into a running blockdoc process.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"blockdoc/internal/backend"
	"blockdoc/internal/config"
	"blockdoc/internal/domain"
	"blockdoc/internal/drag"
	"blockdoc/internal/logger"
	"blockdoc/internal/service"
	"blockdoc/internal/tools"
	"blockdoc/internal/watch"
)

// Version is set at build time.
var Version = "dev"

// App owns the long-lived components of a blockdoc process.
type App struct {
	cfg *config.Config
	log *zap.Logger

	backend  *backend.Backend
	registry *tools.Registry
	docs     *service.DocumentService
	autosave *service.Autosaver
	watcher  *watch.Watcher
}

// New creates an App. Nothing is opened until Startup.
func New(cfg *config.Config, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{cfg: cfg, log: log}
}

// Startup opens the store and starts the background workers the
// configuration enables.
func (a *App) Startup(ctx context.Context) error {
	be, err := backend.Open(ctx, a.cfg.Storage, logger.Module(a.log, "storage"))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.backend = be

	a.registry = tools.NewRegistry()
	tools.RegisterBuiltins(a.registry)
	if name := a.cfg.Editor.DefaultTool; name != "" {
		if err := a.registry.SetDefault(name); err != nil {
			a.Shutdown(ctx)
			return fmt.Errorf("default tool: %w", err)
		}
	}

	a.docs = service.NewDocumentService(be.Documents, be.Journal, a.registry,
		logEmitter{log: logger.Module(a.log, "events")},
		service.Options{
			HistoryLimit:    a.cfg.Editor.HistoryLimit,
			DebugInvariants: a.cfg.Editor.DebugInvariants,
			ReadOnly:        a.cfg.Editor.ReadOnly,
			DataDir:         be.DataDir,
			Mirror:          a.cfg.Storage.Mirror,
		},
		logger.Module(a.log, "documents"),
	)

	if a.cfg.Autosave.Enabled {
		a.autosave = service.NewAutosaver(a.docs, a.cfg.Autosave.Schedule, logger.Module(a.log, "autosave"))
		if err := a.autosave.Start(ctx); err != nil {
			a.Shutdown(ctx)
			return err
		}
	}

	if a.cfg.Watch.Enabled && be.DataDir != "" {
		wlog := logger.Module(a.log, "watch")
		w, err := watch.New(be.DataDir, watch.DefaultDebounce, a.onMirrorChanged(wlog), wlog)
		if err != nil {
			// Editing still works without live reload.
			a.log.Warn("mirror watcher disabled", zap.Error(err))
		} else {
			a.watcher = w
		}
	}

	a.log.Info("blockdoc started",
		zap.String("version", Version),
		zap.String("driver", be.Driver),
		zap.Bool("autosave", a.autosave != nil),
		zap.Bool("watch", a.watcher != nil))
	return nil
}

// Shutdown stops the workers, saves unsaved documents and closes the store.
func (a *App) Shutdown(ctx context.Context) {
	if a.autosave != nil {
		a.autosave.Stop()
		a.autosave = nil
	}
	if a.watcher != nil {
		a.watcher.Close()
		a.watcher = nil
	}
	if a.docs != nil {
		if err := a.docs.Shutdown(ctx); err != nil {
			a.log.Error("saving documents on shutdown", zap.Error(err))
		}
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.log.Warn("closing storage", zap.Error(err))
		}
		a.backend = nil
	}
	_ = a.log.Sync()
}

// Documents returns the document service. Valid after Startup.
func (a *App) Documents() *service.DocumentService { return a.docs }

// Tools returns the tool registry. Valid after Startup.
func (a *App) Tools() *tools.Registry { return a.registry }

// DragOptions returns the drag tuning from the editor settings.
func (a *App) DragOptions() drag.Options {
	opts := drag.DefaultOptions()
	if v := a.cfg.Editor.DragThreshold; v > 0 {
		opts.Threshold = v
	}
	if v := a.cfg.Editor.ScrollMargin; v > 0 {
		opts.ScrollMargin = v
	}
	if v := a.cfg.Editor.ScrollStep; v > 0 {
		opts.ScrollStep = v
	}
	return opts
}

// NewDragManager builds a drag gesture over an open document for a render
// layer that supplies hit testing, selection and scrolling.
func (a *App) NewDragManager(doc drag.Document, hit drag.HitTester, sel drag.Selection, scroll drag.Scroller) *drag.Manager {
	return drag.NewManager(doc, hit, sel, scroll, a.DragOptions(), logger.Module(a.log, "drag"))
}

func (a *App) onMirrorChanged(log *zap.Logger) watch.ChangeHandler {
	return func(ctx context.Context, docID string, doc *domain.Document) {
		changed, err := a.docs.Reload(ctx, docID, doc)
		if err != nil {
			log.Warn("reload from mirror failed", zap.String("doc", docID), zap.Error(err))
			return
		}
		if changed {
			log.Info("document reloaded from mirror", zap.String("doc", docID))
		}
	}
}

// logEmitter reports document events to the log in place of a render layer.
type logEmitter struct {
	log *zap.Logger
}

func (e logEmitter) Emit(_ context.Context, event string, data any) {
	if ce := e.log.Check(zap.DebugLevel, "event"); ce != nil {
		fields := []zap.Field{zap.String("event", event)}
		if c, ok := data.(service.Change); ok {
			fields = append(fields, zap.String("doc", c.DocID))
		}
		ce.Write(fields...)
	}
}
