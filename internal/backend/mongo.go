package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"blockdoc/internal/config"
	"blockdoc/internal/domain"
	"blockdoc/internal/storage"
)

const (
	collDocuments = "documents"
	collUndoNodes = "undo_nodes"
	collUndoState = "undo_state"

	mongoTimeout = 10 * time.Second
)

// mongoStore keeps documents and undo history in MongoDB. It implements
// both domain.DocumentStore and history.Journal.
type mongoStore struct {
	client   *mongo.Client
	db       *mongo.Database
	maxNodes int
	log      *zap.Logger
}

type mongoDocument struct {
	ID         string `bson:"_id"`
	Title      string `bson:"title"`
	Version    string `bson:"version"`
	SavedAt    int64  `bson:"saved_at"`
	BlockCount int    `bson:"block_count"`
	Body       string `bson:"body_json,omitempty"`
	CreatedAt  int64  `bson:"created_at"`
	UpdatedAt  int64  `bson:"updated_at"`
}

type mongoUndoNode struct {
	ID        string  `bson:"_id"`
	DocID     string  `bson:"doc_id"`
	ParentID  *string `bson:"parent_id"`
	Label     string  `bson:"label"`
	Snapshot  string  `bson:"snapshot_json"`
	CreatedAt int64   `bson:"created_at"`
}

func newMongoStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (*mongoStore, error) {
	uri, dbName := buildMongoURI(cfg)

	logURI := uri
	if cfg.Password != "" && strings.Contains(logURI, cfg.Password) {
		logURI = strings.ReplaceAll(logURI, cfg.Password, "***")
	}
	log.Info("connecting to mongo", zap.String("uri", logURI), zap.String("database", dbName))

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	maxNodes := cfg.UndoNodes
	if maxNodes <= 0 {
		maxNodes = storage.DefaultUndoNodes
	}
	s := &mongoStore{client: client, db: client.Database(dbName), maxNodes: maxNodes, log: log}

	_, err = s.db.Collection(collUndoNodes).Indexes().CreateOne(pingCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "doc_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("create undo index: %w", err)
	}
	return s, nil
}

// ── DocumentStore ───────────────────────────────────────────

func (s *mongoStore) SaveDocument(ctx context.Context, id, title string, doc *domain.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err = s.db.Collection(collDocuments).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set": bson.M{
				"title":       title,
				"version":     doc.Version,
				"saved_at":    doc.Time,
				"block_count": len(doc.Blocks),
				"body_json":   string(body),
				"updated_at":  now,
			},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}
	return nil
}

func (s *mongoStore) LoadDocument(ctx context.Context, id string) (*domain.Document, error) {
	var d mongoDocument
	err := s.db.Collection(collDocuments).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("load document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}

	var doc domain.Document
	if err := json.Unmarshal([]byte(d.Body), &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &doc, nil
}

func (s *mongoStore) ListDocuments(ctx context.Context) ([]domain.DocumentInfo, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.M{"body_json": 0})
	cursor, err := s.db.Collection(collDocuments).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	var docs []mongoDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	out := make([]domain.DocumentInfo, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.DocumentInfo{
			ID:         d.ID,
			Title:      d.Title,
			BlockCount: d.BlockCount,
			UpdatedAt:  time.UnixMilli(d.UpdatedAt),
		})
	}
	return out, nil
}

func (s *mongoStore) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.db.Collection(collUndoState).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete undo state %s: %w", id, err)
	}
	if _, err := s.db.Collection(collUndoNodes).DeleteMany(ctx, bson.M{"doc_id": id}); err != nil {
		return fmt.Errorf("delete undo nodes %s: %w", id, err)
	}
	if _, err := s.db.Collection(collDocuments).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ── Journal ─────────────────────────────────────────────────

func (s *mongoStore) PushNode(docID, nodeID, parentID, label, snapshotJSON string) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	node := mongoUndoNode{
		ID:        nodeID,
		DocID:     docID,
		Label:     label,
		Snapshot:  snapshotJSON,
		CreatedAt: time.Now().UnixNano(),
	}
	if parentID != "" {
		node.ParentID = &parentID
	}
	if _, err := s.db.Collection(collUndoNodes).InsertOne(ctx, node); err != nil {
		return fmt.Errorf("insert undo node: %w", err)
	}
	if err := s.goTo(ctx, docID, nodeID); err != nil {
		return fmt.Errorf("update undo state: %w", err)
	}
	s.prune(ctx, docID)
	return nil
}

func (s *mongoStore) GoTo(docID, nodeID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	return s.goTo(ctx, docID, nodeID)
}

func (s *mongoStore) goTo(ctx context.Context, docID, nodeID string) error {
	_, err := s.db.Collection(collUndoState).UpdateOne(ctx,
		bson.M{"_id": docID},
		bson.M{"$set": bson.M{"current_node_id": nodeID}},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

// prune drops the oldest nodes past maxNodes, re-hanging their children on
// their parent. The current node is never dropped.
func (s *mongoStore) prune(ctx context.Context, docID string) {
	nodes := s.db.Collection(collUndoNodes)
	count, err := nodes.CountDocuments(ctx, bson.M{"doc_id": docID})
	if err != nil || count <= int64(s.maxNodes) {
		return
	}

	var state struct {
		Current string `bson:"current_node_id"`
	}
	_ = s.db.Collection(collUndoState).FindOne(ctx, bson.M{"_id": docID}).Decode(&state)

	cursor, err := nodes.Find(ctx, bson.M{"doc_id": docID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(count-int64(s.maxNodes)))
	if err != nil {
		s.log.Warn("undo prune query failed", zap.String("doc", docID), zap.Error(err))
		return
	}
	var oldest []mongoUndoNode
	if err := cursor.All(ctx, &oldest); err != nil {
		s.log.Warn("undo prune decode failed", zap.String("doc", docID), zap.Error(err))
		return
	}

	for _, n := range oldest {
		if n.ID == state.Current {
			continue
		}
		if _, err := nodes.UpdateMany(ctx, bson.M{"parent_id": n.ID}, bson.M{"$set": bson.M{"parent_id": n.ParentID}}); err != nil {
			s.log.Warn("undo prune relink failed", zap.String("node", n.ID), zap.Error(err))
			continue
		}
		nodes.DeleteOne(ctx, bson.M{"_id": n.ID})
	}
}
