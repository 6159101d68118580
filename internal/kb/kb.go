// Package kb implements the knowledge base core: directory synchronization,
// similarity search over stored embeddings, and question answering.
package kb

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperjump/oshiete/internal/embedding"
	"github.com/hyperjump/oshiete/internal/extract"
	"github.com/hyperjump/oshiete/internal/models"
	"github.com/hyperjump/oshiete/internal/store"
	"go.uber.org/zap"
)

// AnswerService generates an answer for a fully templated prompt.
type AnswerService interface {
	Answer(ctx context.Context, prompt string) (string, error)
}

// DefaultTopK is the retrieval width used when none is configured.
const DefaultTopK = 3

// promptTemplate embeds the retrieved context and the question into a single
// user prompt for the answer service.
const promptTemplate = `Answer the question based on the following context:

Context:
%s

Question: %s

Provide an accurate answer based on the context above. If the context does not contain the relevant information, state that you cannot answer.`

// KnowledgeBase owns the document store (identity+content+embedding records)
// and the file metadata store. All public operations serialize on an internal
// mutex so the index alignment between documents and embeddings holds under
// the HTTP server and watch mode.
type KnowledgeBase struct {
	store     *store.Store
	embedder  embedding.Embedder
	answerer  AnswerService
	extractor *extract.Extractor
	logger    *zap.Logger
	topK      int

	mu   sync.Mutex
	docs []models.Document
	meta map[string]models.FileMeta
}

// Option configures a KnowledgeBase.
type Option func(*KnowledgeBase)

// WithLogger sets a logger for sync and query events.
func WithLogger(l *zap.Logger) Option {
	return func(kb *KnowledgeBase) { kb.logger = l }
}

// WithAnswerService sets the generative answer service used by Ask.
func WithAnswerService(a AnswerService) Option {
	return func(kb *KnowledgeBase) { kb.answerer = a }
}

// WithTopK sets the default retrieval width for Ask and Search.
func WithTopK(k int) Option {
	return func(kb *KnowledgeBase) {
		if k > 0 {
			kb.topK = k
		}
	}
}

// Open loads the persisted knowledge base from st. Corrupt or misaligned
// artifacts are logged and treated as an empty store rather than a hard
// failure, so a damaged data directory heals on the next sync.
func Open(st *store.Store, embedder embedding.Embedder, extractor *extract.Extractor, opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{
		store:     st,
		embedder:  embedder,
		extractor: extractor,
		logger:    zap.NewNop(),
		topK:      DefaultTopK,
	}
	for _, opt := range opts {
		opt(kb)
	}

	docs, err := st.LoadDocuments()
	if err != nil {
		// Metadata must not outlive the documents it describes: stale
		// entries would classify the lost files as unchanged and the
		// next sync would never re-ingest them. Both start empty.
		kb.logger.Warn("failed to load documents, starting empty", zap.Error(err))
		kb.meta = make(map[string]models.FileMeta)
		return kb
	}
	meta, err := st.LoadMetadata()
	if err != nil {
		kb.logger.Warn("failed to load metadata, starting empty", zap.Error(err))
		meta = make(map[string]models.FileMeta)
	}
	kb.docs = docs
	kb.meta = meta
	return kb
}

// Len returns the number of stored documents.
func (kb *KnowledgeBase) Len() int {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return len(kb.docs)
}

// Dimensions returns the embedding dimension reported by the embedder.
func (kb *KnowledgeBase) Dimensions() int {
	return kb.embedder.Dimensions()
}

// DiskUsageBytes returns the on-disk size of the persisted artifacts.
func (kb *KnowledgeBase) DiskUsageBytes() (int64, error) {
	return kb.store.DiskUsageBytes()
}

// AddDocument embeds content and appends it to the store under a generated
// identity. Unlike directory sync, an embedding failure propagates to the
// caller. Returns the new document's identity.
func (kb *KnowledgeBase) AddDocument(ctx context.Context, content string) (string, error) {
	emb, err := kb.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embed document: %w", err)
	}
	identity := "doc:" + uuid.New().String()

	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.docs = append(kb.docs, models.Document{
		Identity:  identity,
		Content:   content,
		Embedding: emb,
	})
	if err := kb.store.SaveDocuments(kb.docs); err != nil {
		return "", err
	}
	kb.logger.Debug("document added", zap.String("identity", identity))
	return identity, nil
}

// Search embeds the query and returns the top-k most similar documents.
// k <= 0 uses the configured default.
func (kb *KnowledgeBase) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		k = kb.topK
	}
	queryEmb, err := kb.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.searchVectors(queryEmb, k), nil
}

// Ask retrieves the most similar documents for question, builds a context
// block from their contents, and delegates to the answer service. An empty
// store still produces a request with empty context; the model is expected
// to state it cannot answer.
func (kb *KnowledgeBase) Ask(ctx context.Context, question string) (string, error) {
	if kb.answerer == nil {
		return "", fmt.Errorf("answer service not configured")
	}
	results, err := kb.Search(ctx, question, kb.topK)
	if err != nil {
		return "", err
	}
	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Content
	}
	prompt := fmt.Sprintf(promptTemplate, strings.Join(contents, "\n"), question)
	answer, err := kb.answerer.Answer(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("answer: %w", err)
	}
	return answer, nil
}

// Clear empties the in-memory collections and deletes the persisted artifacts.
func (kb *KnowledgeBase) Clear() error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.docs = nil
	kb.meta = make(map[string]models.FileMeta)
	if err := kb.store.Reset(); err != nil {
		return err
	}
	kb.logger.Info("knowledge base cleared")
	return nil
}

// indexOf returns the store index of the document with the given identity, or -1.
// Callers must hold kb.mu.
func (kb *KnowledgeBase) indexOf(identity string) int {
	for i := range kb.docs {
		if kb.docs[i].Identity == identity {
			return i
		}
	}
	return -1
}

// documentContent builds the stored content string with its leading identity tag.
func documentContent(relPath, text string) string {
	return "file: " + relPath + "\n\n" + text
}
