package storage

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultUndoNodes is how many undo nodes a document keeps before the
// oldest are pruned.
const DefaultUndoNodes = 40

// UndoNode represents a single undo history entry.
type UndoNode struct {
	ID           string    `json:"id"`
	DocID        string    `json:"docId"`
	ParentID     *string   `json:"parentId"`
	Label        string    `json:"label"`
	SnapshotJSON string    `json:"snapshotJson"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UndoTree is the full undo history of a document.
type UndoTree struct {
	Nodes     []UndoNode `json:"nodes"`
	CurrentID string     `json:"currentId"`
	RootID    string     `json:"rootId"`
}

// UndoStore persists undo history. It satisfies history.Journal.
type UndoStore struct {
	db       *DB
	maxNodes int
	log      *zap.Logger
}

func NewUndoStore(db *DB, maxNodes int, log *zap.Logger) *UndoStore {
	if maxNodes <= 0 {
		maxNodes = DefaultUndoNodes
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &UndoStore{db: db, maxNodes: maxNodes, log: log}
}

func (s *UndoStore) q(query string) string { return s.db.dialect.Rebind(query) }

// LoadTree returns the full undo tree for a document, or nil when there is
// no history yet.
func (s *UndoStore) LoadTree(docID string) (*UndoTree, error) {
	rows, err := s.db.Conn().Query(s.q(
		`SELECT id, doc_id, parent_id, label, snapshot_json, created_at
		 FROM undo_nodes WHERE doc_id = ? ORDER BY created_at ASC`), docID,
	)
	if err != nil {
		return nil, fmt.Errorf("load undo nodes: %w", err)
	}
	defer rows.Close()

	var nodes []UndoNode
	var rootID string
	for rows.Next() {
		var n UndoNode
		var parent sql.NullString
		var created int64
		if err := rows.Scan(&n.ID, &n.DocID, &parent, &n.Label, &n.SnapshotJSON, &created); err != nil {
			return nil, fmt.Errorf("scan undo node: %w", err)
		}
		if parent.Valid {
			p := parent.String
			n.ParentID = &p
		} else if rootID == "" {
			rootID = n.ID
		}
		n.CreatedAt = time.Unix(0, created)
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(nodes) == 0 {
		return nil, nil
	}

	var currentID string
	err = s.db.Conn().QueryRow(s.q(
		`SELECT current_node_id FROM undo_state WHERE doc_id = ?`), docID,
	).Scan(&currentID)
	if err != nil {
		currentID = rootID
	}

	return &UndoTree{Nodes: nodes, CurrentID: currentID, RootID: rootID}, nil
}

// PushNode records a new undo node under parentID and makes it current.
func (s *UndoStore) PushNode(docID, nodeID, parentID, label, snapshotJSON string) error {
	var pID *string
	if parentID != "" {
		pID = &parentID
	}

	_, err := s.db.Conn().Exec(s.q(
		`INSERT INTO undo_nodes (id, doc_id, parent_id, label, snapshot_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		nodeID, docID, pID, label, snapshotJSON, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert undo node: %w", err)
	}

	if err := s.GoTo(docID, nodeID); err != nil {
		return fmt.Errorf("update undo state: %w", err)
	}

	s.pruneIfNeeded(docID)
	return nil
}

// GoTo updates the current position pointer.
func (s *UndoStore) GoTo(docID, nodeID string) error {
	_, err := s.db.Conn().Exec(
		s.db.dialect.upsert("undo_state", "doc_id", []string{"current_node_id"}, []string{"current_node_id"}),
		docID, nodeID,
	)
	return err
}

// ClearDocument removes all undo data for a document.
func (s *UndoStore) ClearDocument(docID string) error {
	_, _ = s.db.Conn().Exec(s.q(`DELETE FROM undo_state WHERE doc_id = ?`), docID)
	_, err := s.db.Conn().Exec(s.q(`DELETE FROM undo_nodes WHERE doc_id = ?`), docID)
	return err
}

// pruneIfNeeded removes the oldest nodes once the document holds more than
// maxNodes. Children of a pruned node are re-hung on its parent.
func (s *UndoStore) pruneIfNeeded(docID string) {
	var count int
	s.db.Conn().QueryRow(s.q(`SELECT COUNT(*) FROM undo_nodes WHERE doc_id = ?`), docID).Scan(&count)
	if count <= s.maxNodes {
		return
	}

	toDelete := count - s.maxNodes

	// Get current node BEFORE opening rows cursor (avoid nested query deadlock)
	var currentID string
	s.db.Conn().QueryRow(s.q(`SELECT current_node_id FROM undo_state WHERE doc_id = ?`), docID).Scan(&currentID)

	// Collect IDs to delete FIRST (close rows before doing any writes)
	rows, err := s.db.Conn().Query(s.q(
		`SELECT id FROM undo_nodes WHERE doc_id = ?
		 ORDER BY created_at ASC LIMIT ?`), docID, toDelete,
	)
	if err != nil {
		s.log.Warn("undo prune query failed", zap.String("doc", docID), zap.Error(err))
		return
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		if id != currentID {
			ids = append(ids, id)
		}
	}
	rows.Close()

	for _, id := range ids {
		var parentID sql.NullString
		s.db.Conn().QueryRow(s.q(`SELECT parent_id FROM undo_nodes WHERE id = ?`), id).Scan(&parentID)

		if parentID.Valid {
			s.db.Conn().Exec(s.q(`UPDATE undo_nodes SET parent_id = ? WHERE parent_id = ?`), parentID.String, id)
		} else {
			s.db.Conn().Exec(s.q(`UPDATE undo_nodes SET parent_id = NULL WHERE parent_id = ?`), id)
		}

		s.db.Conn().Exec(s.q(`DELETE FROM undo_nodes WHERE id = ?`), id)
	}
	s.log.Debug("undo history pruned", zap.String("doc", docID), zap.Int("removed", len(ids)))
}
