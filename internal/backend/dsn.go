package backend

import (
	"fmt"
	"net/url"
	"strings"

	"blockdoc/internal/config"
)

// buildMySQLDSN constructs a MySQL DSN from the storage settings.
func buildMySQLDSN(cfg config.StorageConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	// Format: user:password@tcp(host:port)/dbname?parseTime=true
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		cfg.Username, cfg.Password, cfg.Host, port, cfg.Database,
	)
	if cfg.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}

// buildPostgresDSN constructs a Postgres connection string from the storage
// settings.
func buildPostgresDSN(cfg config.StorageConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.Username, cfg.Password, cfg.Database, sslMode,
	)
}

// buildMongoURI returns the connection URI and database name. A host that
// already is a mongodb:// or mongodb+srv:// URI is used as is, with
// <password> placeholders filled in.
func buildMongoURI(cfg config.StorageConfig) (uri, dbName string) {
	dbName = cfg.Database
	if dbName == "" {
		dbName = "blockdoc"
	}

	if cfg.DSN != "" {
		return cfg.DSN, dbName
	}
	if strings.HasPrefix(cfg.Host, "mongodb+srv://") || strings.HasPrefix(cfg.Host, "mongodb://") {
		uri = cfg.Host
		if cfg.Password != "" {
			uri = strings.ReplaceAll(uri, "<password>", cfg.Password)
			uri = strings.ReplaceAll(uri, "<db_password>", cfg.Password)
		}
		return uri, dbName
	}

	port := cfg.Port
	if port == 0 {
		port = 27017
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	if cfg.Username != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d",
			url.QueryEscape(cfg.Username), url.QueryEscape(cfg.Password), host, port), dbName
	}
	return fmt.Sprintf("mongodb://%s:%d", host, port), dbName
}
