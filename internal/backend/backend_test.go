package backend

import (
	"context"
	"path/filepath"
	"testing"

	"blockdoc/internal/config"
	"blockdoc/internal/domain"
)

func TestBuildMySQLDSN(t *testing.T) {
	got := buildMySQLDSN(config.StorageConfig{Host: "db", Username: "u", Password: "p", Database: "docs", SSLMode: "require"})
	want := "u:p@tcp(db:3306)/docs?parseTime=true&charset=utf8mb4&tls=true"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildPostgresDSN(t *testing.T) {
	got := buildPostgresDSN(config.StorageConfig{Host: "db", Port: 6543, Username: "u", Password: "p", Database: "docs"})
	want := "host=db port=6543 user=u password=p dbname=docs sslmode=disable"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildMongoURI(t *testing.T) {
	cases := []struct {
		name   string
		cfg    config.StorageConfig
		uri    string
		dbName string
	}{
		{"defaults", config.StorageConfig{}, "mongodb://localhost:27017", "blockdoc"},
		{"credentials", config.StorageConfig{Host: "m", Username: "a b", Password: "p@ss", Database: "x"}, "mongodb://a+b:p%40ss@m:27017", "x"},
		{"full uri", config.StorageConfig{Host: "mongodb+srv://u:<password>@cluster/", Password: "s3"}, "mongodb+srv://u:s3@cluster/", "blockdoc"},
		{"dsn wins", config.StorageConfig{DSN: "mongodb://other", Host: "ignored"}, "mongodb://other", "blockdoc"},
	}
	for _, c := range cases {
		uri, db := buildMongoURI(c.cfg)
		if uri != c.uri || db != c.dbName {
			t.Errorf("%s: got (%q, %q), want (%q, %q)", c.name, uri, db, c.uri, c.dbName)
		}
	}
}

func TestOpen_SQLite(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(context.Background(), config.StorageConfig{
		Driver:  "sqlite",
		Path:    filepath.Join(dir, "test.db"),
		DataDir: filepath.Join(dir, "docs"),
	}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	if b.Journal == nil {
		t.Fatal("expected an undo journal")
	}
	if b.DataDir != filepath.Join(dir, "docs") {
		t.Errorf("unexpected data dir %q", b.DataDir)
	}

	doc := &domain.Document{Blocks: []domain.SerializedBlock{{ID: "a", Type: "paragraph", Data: domain.Data{"text": "x"}}}}
	if err := b.Documents.SaveDocument(context.Background(), "d1", "Doc", doc); err != nil {
		t.Fatal(err)
	}
	if err := b.Journal.PushNode("d1", "n1", "", "edit", "{}"); err != nil {
		t.Fatal(err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), config.StorageConfig{Driver: "oracle"}, nil); err == nil {
		t.Fatal("expected error")
	}
}
