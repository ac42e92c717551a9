// Package ingestion defines the Kafka event schemas exchanged by the
// indexer: documents to add or delete, and the commit notifications it
// publishes after every segments file it writes.
package ingestion

import "time"

// Operations carried by an IngestEvent.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// IngestEvent is the Kafka message payload asking the indexer to add,
// replace or delete one document. An empty Op means OpUpsert.
type IngestEvent struct {
	DocumentID string            `json:"document_id"`
	Op         string            `json:"op,omitempty"`
	Title      string            `json:"title,omitempty"`
	Body       string            `json:"body,omitempty"`
	Keywords   map[string]string `json:"keywords,omitempty"`
	Stored     map[string]string `json:"stored,omitempty"`
	IngestedAt time.Time         `json:"ingested_at"`
}

// Operation returns the effective operation of the event.
func (e IngestEvent) Operation() string {
	if e.Op == "" {
		return OpUpsert
	}
	return e.Op
}

// CommitEvent is published after the indexer commits a new segments file.
type CommitEvent struct {
	ShardID     int       `json:"shard_id"`
	DataDir     string    `json:"data_dir"`
	Version     uint32    `json:"version"`
	Segments    []string  `json:"segments"`
	DocCount    int       `json:"doc_count"`
	CommittedAt time.Time `json:"committed_at"`
}
