// Package store persists the knowledge base artifacts: a documents file
// (ordered identity+content records), an embeddings file (binary vector blob,
// index-aligned with the documents), and a metadata file (absolute path to
// last-seen modification time). Each save is a full snapshot; loads of
// missing files yield empty state (first-run case).
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/oshiete/internal/models"
)

const (
	documentsFile  = "documents.json"
	embeddingsFile = "embeddings.bin"
	metadataFile   = "metadata.json"
)

// Store reads and writes the persisted artifacts under a storage directory.
type Store struct {
	dir string
}

// New creates the storage directory if needed and returns a Store for it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// LoadDocuments reads the documents and embeddings artifacts and joins them
// by index. Missing artifacts yield an empty store. A parse failure or a
// count mismatch between the two artifacts is returned as an error; callers
// decide whether to fail or cold-start empty.
func (s *Store) LoadDocuments() ([]models.Document, error) {
	var docs []models.Document
	data, err := os.ReadFile(filepath.Join(s.dir, documentsFile))
	switch {
	case os.IsNotExist(err):
		// first run
	case err != nil:
		return nil, fmt.Errorf("read documents: %w", err)
	default:
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("parse documents: %w", err)
		}
	}

	vectors, err := readEmbeddings(filepath.Join(s.dir, embeddingsFile))
	if err != nil {
		return nil, fmt.Errorf("read embeddings: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("artifact mismatch: %d documents but %d embeddings", len(docs), len(vectors))
	}
	for i := range docs {
		docs[i].Embedding = vectors[i]
	}
	return docs, nil
}

// SaveDocuments writes the documents and embeddings artifacts, overwriting
// prior contents.
func (s *Store) SaveDocuments(docs []models.Document) error {
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, documentsFile), data, 0644); err != nil {
		return fmt.Errorf("write documents: %w", err)
	}

	vectors := make([][]float32, len(docs))
	for i := range docs {
		vectors[i] = docs[i].Embedding
	}
	if err := writeEmbeddings(filepath.Join(s.dir, embeddingsFile), vectors); err != nil {
		return fmt.Errorf("write embeddings: %w", err)
	}
	return nil
}

// LoadMetadata reads the metadata artifact. A missing file yields an empty map.
func (s *Store) LoadMetadata() (map[string]models.FileMeta, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, metadataFile))
	if os.IsNotExist(err) {
		return make(map[string]models.FileMeta), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	meta := make(map[string]models.FileMeta)
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return meta, nil
}

// SaveMetadata writes the metadata artifact, overwriting prior contents.
func (s *Store) SaveMetadata(meta map[string]models.FileMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, metadataFile), data, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// Reset deletes all three artifacts. Missing files are not an error.
func (s *Store) Reset() error {
	for _, name := range []string{documentsFile, embeddingsFile, metadataFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// DiskUsageBytes returns the total size in bytes of the persisted artifacts.
// Missing files contribute 0.
func (s *Store) DiskUsageBytes() (int64, error) {
	var total int64
	for _, name := range []string{documentsFile, embeddingsFile, metadataFile} {
		info, err := os.Stat(filepath.Join(s.dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
