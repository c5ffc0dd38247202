package storage

import (
	"fmt"
	"strings"
)

// Dialect names the SQL flavour a DB speaks.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// Rebind rewrites ? placeholders to $n for Postgres.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// upsert builds an insert-or-update keyed on key. insert lists the columns
// after key; update lists those overwritten on conflict.
func (d Dialect) upsert(table, key string, insert, update []string) string {
	cols := append([]string{key}, insert...)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks)

	set := make([]string, len(update))
	for i, c := range update {
		if d == MySQL {
			set[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		} else {
			set[i] = fmt.Sprintf("%s = excluded.%s", c, c)
		}
	}
	if d == MySQL {
		q += " ON DUPLICATE KEY UPDATE " + strings.Join(set, ", ")
	} else {
		q += fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s", key, strings.Join(set, ", "))
	}
	return d.Rebind(q)
}

func (d Dialect) migrations() []string {
	key, text := "TEXT", "TEXT"
	switch d {
	case MySQL:
		key, text = "VARCHAR(64)", "LONGTEXT"
	}
	ifNotExists := " IF NOT EXISTS"
	if d == MySQL {
		ifNotExists = ""
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id ` + key + ` PRIMARY KEY,
			title ` + text + ` NOT NULL,
			version ` + text + ` NOT NULL,
			saved_at BIGINT NOT NULL DEFAULT 0,
			block_count INTEGER NOT NULL DEFAULT 0,
			body_json ` + text + ` NOT NULL,
			created_at BIGINT NOT NULL DEFAULT 0,
			updated_at BIGINT NOT NULL DEFAULT 0
		)`,
		// Undo nodes, one record per undo state
		`CREATE TABLE IF NOT EXISTS undo_nodes (
			id ` + key + ` PRIMARY KEY,
			doc_id ` + key + ` NOT NULL,
			parent_id ` + key + `,
			label ` + text + ` NOT NULL,
			snapshot_json ` + text + ` NOT NULL,
			created_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX` + ifNotExists + ` idx_undo_nodes_doc ON undo_nodes(doc_id)`,
		// Undo state, current position pointer per document
		`CREATE TABLE IF NOT EXISTS undo_state (
			doc_id ` + key + ` PRIMARY KEY,
			current_node_id ` + key + ` NOT NULL
		)`,
	}
}
