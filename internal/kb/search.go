package kb

import (
	"sort"

	"github.com/hyperjump/oshiete/internal/models"
)

// searchVectors scores every stored embedding against query by inner product
// and returns the k highest-scoring documents in descending order, ties broken
// by store order. k larger than the store returns everything. Callers must
// hold kb.mu.
func (kb *KnowledgeBase) searchVectors(query []float32, k int) []models.SearchResult {
	if k <= 0 || len(kb.docs) == 0 {
		return nil
	}
	order := make([]int, len(kb.docs))
	scores := make([]float64, len(kb.docs))
	for i := range kb.docs {
		order[i] = i
		scores[i] = innerProduct(query, kb.docs[i].Embedding)
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	if k > len(order) {
		k = len(order)
	}
	results := make([]models.SearchResult, k)
	for i := 0; i < k; i++ {
		idx := order[i]
		results[i] = models.SearchResult{
			Identity: kb.docs[idx].Identity,
			Content:  kb.docs[idx].Content,
			Score:    scores[idx],
		}
	}
	return results
}

// innerProduct returns the inner product of two vectors (for normalized
// vectors this equals cosine similarity). Mismatched lengths score 0.
func innerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return dot
}
