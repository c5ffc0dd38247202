// Package backend opens the configured document store: SQLite by default,
// or MySQL, Postgres or MongoDB. Every backend also persists undo history.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"blockdoc/internal/config"
	"blockdoc/internal/domain"
	"blockdoc/internal/history"
	"blockdoc/internal/storage"
)

// Backend bundles the stores of one storage driver.
type Backend struct {
	Driver    string
	Documents domain.DocumentStore
	Journal   history.Journal
	DataDir   string
}

// Close releases the underlying connection.
func (b *Backend) Close() error {
	return b.Documents.Close()
}

// Open connects to the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (*Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("driver", cfg.Driver))

	switch cfg.Driver {
	case "", "sqlite":
		db, err := storage.New(cfg.Path, cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return fromDB("sqlite", db, cfg, log), nil
	case "mysql":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = buildMySQLDSN(cfg)
		}
		db, err := openSQL(ctx, "mysql", dsn, storage.MySQL, cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return fromDB(cfg.Driver, db, cfg, log), nil
	case "postgres":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = buildPostgresDSN(cfg)
		}
		db, err := openSQL(ctx, "postgres", dsn, storage.Postgres, cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return fromDB(cfg.Driver, db, cfg, log), nil
	case "mongodb":
		s, err := newMongoStore(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return &Backend{Driver: cfg.Driver, Documents: s, Journal: s, DataDir: cfg.DataDir}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}

func fromDB(driver string, db *storage.DB, cfg config.StorageConfig, log *zap.Logger) *Backend {
	log.Info("document store opened")
	return &Backend{
		Driver:    driver,
		Documents: storage.NewDocumentStore(db),
		Journal:   storage.NewUndoStore(db, cfg.UndoNodes, log),
		DataDir:   db.DataDir(),
	}
}
