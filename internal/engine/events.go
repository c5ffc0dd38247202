package engine

// Events emitted after a mutation has been applied.
const (
	EventBlockInserted    = "block:inserted"
	EventBlockRemoved     = "block:removed"
	EventBlockMoved       = "block:moved"
	EventBlockChanged     = "block:changed"
	EventDocumentRendered = "document:rendered"
	EventDocumentCleared  = "document:cleared"
)

// BlockEvent is the payload of the block:* events.
type BlockEvent struct {
	ID    string `json:"id"`
	Tool  string `json:"type,omitempty"`
	Index int    `json:"index"`
	From  int    `json:"from,omitempty"`
}

// DocumentEvent is the payload of the document:* events.
type DocumentEvent struct {
	Blocks int `json:"blocks"`
}
