package kb

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hyperjump/oshiete/internal/models"
	"go.uber.org/zap"
)

// SyncDirectory reconciles the knowledge base with the directory tree at root.
// Files matching exts are classified against the metadata store; new files are
// appended, modified files replace their document in place (matched by
// identity, preserving the index), and documents whose source file is gone are
// dropped in a single filtering pass. Per-file extraction and embedding
// failures are recorded in the report and do not abort the sync. On
// completion both stores are persisted.
func (kb *KnowledgeBase) SyncDirectory(ctx context.Context, root string, exts []string) (*models.SyncReport, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	cs, err := detectChanges(absRoot, exts, kb.meta)
	if err != nil {
		return nil, fmt.Errorf("detect changes: %w", err)
	}

	report := &models.SyncReport{}
	for _, ch := range cs.changes {
		if ch.class == classUnchanged {
			report.Unchanged++
			continue
		}
		text, err := kb.extractor.Extract(ch.absPath)
		if err != nil {
			kb.logger.Warn("skipping file", zap.String("path", ch.relPath), zap.Error(err))
			report.Failed++
			report.Outcomes = append(report.Outcomes, models.FileOutcome{
				Path: ch.relPath, Action: models.ActionFailed, Error: err.Error(),
			})
			continue
		}
		content := documentContent(ch.relPath, text)
		emb, err := kb.embedder.Embed(ctx, content)
		if err != nil {
			kb.logger.Warn("embedding failed, skipping file", zap.String("path", ch.relPath), zap.Error(err))
			report.Failed++
			report.Outcomes = append(report.Outcomes, models.FileOutcome{
				Path: ch.relPath, Action: models.ActionFailed, Error: err.Error(),
			})
			continue
		}

		if i := kb.indexOf(ch.relPath); i >= 0 {
			kb.docs[i].Content = content
			kb.docs[i].Embedding = emb
			report.Updated++
			report.Outcomes = append(report.Outcomes, models.FileOutcome{Path: ch.relPath, Action: models.ActionUpdated})
			kb.logger.Debug("document updated", zap.String("identity", ch.relPath))
		} else {
			kb.docs = append(kb.docs, models.Document{
				Identity:  ch.relPath,
				Content:   content,
				Embedding: emb,
			})
			report.Added++
			report.Outcomes = append(report.Outcomes, models.FileOutcome{Path: ch.relPath, Action: models.ActionAdded})
			kb.logger.Debug("document added", zap.String("identity", ch.relPath))
		}
		kb.meta[ch.absPath] = models.FileMeta{MTime: ch.mtime}
	}

	// Drop documents whose identity is no longer present, rebuilding the
	// sequence in one pass so the documents/embeddings alignment survives.
	kept := make([]models.Document, 0, len(kb.docs))
	for _, d := range kb.docs {
		if _, ok := cs.present[d.Identity]; ok {
			kept = append(kept, d)
			continue
		}
		report.Removed++
		report.Outcomes = append(report.Outcomes, models.FileOutcome{Path: d.Identity, Action: models.ActionRemoved})
		kb.logger.Debug("document removed", zap.String("identity", d.Identity))
	}
	kb.docs = kept

	// Prune metadata: drop entries for removed files and stale entries whose
	// path no longer resolves under the sync root.
	for abs := range kb.meta {
		rel, err := filepath.Rel(absRoot, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			delete(kb.meta, abs)
			continue
		}
		if _, ok := cs.present[rel]; !ok {
			delete(kb.meta, abs)
		}
	}

	if err := kb.store.SaveDocuments(kb.docs); err != nil {
		return report, err
	}
	if err := kb.store.SaveMetadata(kb.meta); err != nil {
		return report, err
	}

	kb.logger.Info("directory synced",
		zap.String("root", absRoot),
		zap.Int("added", report.Added),
		zap.Int("updated", report.Updated),
		zap.Int("removed", report.Removed),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}
