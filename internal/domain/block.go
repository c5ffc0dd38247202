package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// Data is the tool-owned payload of a block. It is always a JSON object;
// the engine clones, compares and passes it through but never reads it.
type Data map[string]any

// Clone returns a deep copy of d.
func (d Data) Clone() Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Data:
		return t.Clone()
	case map[string]any:
		return Data(t).Clone()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Equal reports structural equality. Values are compared through their JSON
// encoding so 1 and 1.0 are equal, matching what a save/load cycle produces.
func (d Data) Equal(other Data) bool {
	if len(d) == 0 && len(other) == 0 {
		return true
	}
	a, errA := json.Marshal(d)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// String returns d[key] when it is a string.
func (d Data) String(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// Block is one addressable content unit of a document.
type Block struct {
	ID        string          `json:"id"`
	Tool      string          `json:"type"`
	Data      Data            `json:"data"`
	Tunes     map[string]Data `json:"tunes,omitempty"`
	ParentID  string          `json:"parent,omitempty"`  // weak back-reference, lookup only
	ChildIDs  []string        `json:"content,omitempty"` // cache, derived from the flat sequence
	IsDefault bool            `json:"-"`
}

// Clone returns a deep copy of b.
func (b *Block) Clone() *Block {
	if b == nil {
		return nil
	}
	c := *b
	c.Data = b.Data.Clone()
	c.Tunes = cloneTunes(b.Tunes)
	c.ChildIDs = append([]string(nil), b.ChildIDs...)
	return &c
}

func cloneTunes(t map[string]Data) map[string]Data {
	if t == nil {
		return nil
	}
	out := make(map[string]Data, len(t))
	for k, v := range t {
		out[k] = v.Clone()
	}
	return out
}

// CloneTunes deep-copies a tunes mapping.
func CloneTunes(t map[string]Data) map[string]Data { return cloneTunes(t) }

// SerializedBlock is the persisted shape of a block.
type SerializedBlock struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Data    Data            `json:"data"`
	Tunes   map[string]Data `json:"tunes,omitempty"`
	Parent  string          `json:"parent,omitempty"`
	Content []string        `json:"content,omitempty"`
}

// Document is a saved block document.
type Document struct {
	Time    int64             `json:"time,omitempty"`
	Version string            `json:"version,omitempty"`
	Blocks  []SerializedBlock `json:"blocks"`
}

// DocumentInfo summarizes a stored document.
type DocumentInfo struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	BlockCount int       `json:"blockCount"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// DocumentStore persists serialized documents.
type DocumentStore interface {
	SaveDocument(ctx context.Context, id, title string, doc *Document) error
	LoadDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context) ([]DocumentInfo, error)
	DeleteDocument(ctx context.Context, id string) error
	Close() error
}
