// Package models defines core data structures for documents, sync reports, and search results.
package models

// Document is one synchronized unit of text with its embedding.
// Identity is the source file's path relative to the sync root (stable across
// resyncs unless the file moves), or a generated "doc:<uuid>" for documents
// added directly. Content carries a leading "file: <relative_path>" tag so
// retrieved context tells the reader where it came from, but identity lookup
// never parses the content.
type Document struct {
	Identity  string    `json:"identity"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
}

// FileMeta is the last-known state of a tracked file, keyed by absolute path.
type FileMeta struct {
	MTime int64 `json:"mtime"` // modification time in UnixNano
}

// SearchResult is a single retrieval hit.
type SearchResult struct {
	Identity string  `json:"identity"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"` // inner product with the query vector
}

// Sync outcome actions.
const (
	ActionAdded   = "added"
	ActionUpdated = "updated"
	ActionRemoved = "removed"
	ActionFailed  = "failed"
)

// FileOutcome records what happened to one file during a directory sync.
// Error is set only when Action is ActionFailed.
type FileOutcome struct {
	Path   string `json:"path"` // relative to the sync root
	Action string `json:"action"`
	Error  string `json:"error,omitempty"`
}

// SyncReport summarizes a directory sync pass. Unchanged files are counted
// but not listed in Outcomes.
type SyncReport struct {
	Added     int           `json:"added"`
	Updated   int           `json:"updated"`
	Removed   int           `json:"removed"`
	Unchanged int           `json:"unchanged"`
	Failed    int           `json:"failed"`
	Outcomes  []FileOutcome `json:"outcomes,omitempty"`
}
