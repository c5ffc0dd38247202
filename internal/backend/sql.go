package backend

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"blockdoc/internal/storage"
)

// openSQL opens a pooled server connection, checks it answers and runs the
// document migrations on it.
func openSQL(ctx context.Context, driverName, dsn string, dialect storage.Dialect, dataDir string) (*storage.DB, error) {
	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}

	db, err := storage.Wrap(conn, dialect, dataDir)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}
