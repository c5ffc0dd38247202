package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"blockdoc/internal/domain"
)

// DocumentStore implements domain.DocumentStore on a SQL database.
type DocumentStore struct {
	db *DB
}

func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// SaveDocument writes doc under id, replacing any previous version.
func (s *DocumentStore) SaveDocument(ctx context.Context, id, title string, doc *domain.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	now := time.Now().UnixMilli()
	q := s.db.dialect.upsert("documents", "id",
		[]string{"title", "version", "saved_at", "block_count", "body_json", "created_at", "updated_at"},
		[]string{"title", "version", "saved_at", "block_count", "body_json", "updated_at"},
	)
	_, err = s.db.conn.ExecContext(ctx, q,
		id, title, doc.Version, doc.Time, len(doc.Blocks), string(body), now, now,
	)
	if err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}
	return nil
}

// LoadDocument returns the document stored under id.
func (s *DocumentStore) LoadDocument(ctx context.Context, id string) (*domain.Document, error) {
	var body string
	err := s.db.conn.QueryRowContext(ctx,
		s.db.dialect.Rebind(`SELECT body_json FROM documents WHERE id = ?`), id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}

	var doc domain.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &doc, nil
}

// ListDocuments returns every stored document, most recently updated first.
func (s *DocumentStore) ListDocuments(ctx context.Context) ([]domain.DocumentInfo, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, title, block_count, updated_at FROM documents ORDER BY updated_at DESC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []domain.DocumentInfo
	for rows.Next() {
		var info domain.DocumentInfo
		var updated int64
		if err := rows.Scan(&info.ID, &info.Title, &info.BlockCount, &updated); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		info.UpdatedAt = time.UnixMilli(updated)
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document together with its undo history.
func (s *DocumentStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM undo_state WHERE doc_id = ?`,
		`DELETE FROM undo_nodes WHERE doc_id = ?`,
		`DELETE FROM documents WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, s.db.dialect.Rebind(q), id); err != nil {
			return fmt.Errorf("delete document %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (s *DocumentStore) Close() error {
	return s.db.Close()
}
