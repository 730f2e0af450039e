// Package fakevector is a dependency-free, in-process vector.Backend for
// tests and local dev (config.VectorStore == "fake"): it keeps upserted
// records in memory, scored by cosine similarity plus a simple keyword
// overlap heuristic for HybridSearch's BM25 side, so VECTOR_SEARCH/
// HYBRID_SEARCH can be exercised without a running Weaviate instance.
package fakevector

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/rvbbit/rvbbit/internal/vector"
)

type entry struct {
	tenant, class, column string
	rec                   vector.Record
}

// Backend is an in-memory vector.Backend.
type Backend struct {
	mu      sync.RWMutex
	entries map[string]entry // id -> entry, scoped by (tenant, class)
}

func New() *Backend {
	return &Backend{entries: make(map[string]entry)}
}

func key(tenant, class, id string) string {
	return tenant + "\x00" + class + "\x00" + id
}

func (b *Backend) Upsert(ctx context.Context, tenant, class, column string, records []vector.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range records {
		b.entries[key(tenant, class, r.ID)] = entry{tenant: tenant, class: class, column: column, rec: r}
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, tenant, class, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key(tenant, class, id))
	return nil
}

func (b *Backend) VectorSearch(ctx context.Context, tenant, class, column, query string, queryVector []float32, topK int, minScore float64) ([]vector.SearchResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var scored []vector.SearchResult
	for _, e := range b.entries {
		if e.tenant != tenant || e.class != class || e.column != column {
			continue
		}
		score := cosineSimilarity(queryVector, e.rec.Embedding)
		if score < minScore {
			continue
		}
		scored = append(scored, vector.SearchResult{ID: e.rec.ID, Text: e.rec.Text, Score: score, Metadata: e.rec.Metadata})
	}
	return topN(scored, topK), nil
}

func (b *Backend) HybridSearch(ctx context.Context, tenant, class, column, query string, queryVector []float32, topK int, alpha float32) ([]vector.SearchResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var scored []vector.SearchResult
	for _, e := range b.entries {
		if e.tenant != tenant || e.class != class || e.column != column {
			continue
		}
		vecScore := cosineSimilarity(queryVector, e.rec.Embedding)
		kwScore := keywordOverlap(query, e.rec.Text)
		score := float64(alpha)*vecScore + float64(1-alpha)*kwScore
		scored = append(scored, vector.SearchResult{ID: e.rec.ID, Text: e.rec.Text, Score: score, Metadata: e.rec.Metadata})
	}
	return topN(scored, topK), nil
}

func topN(results []vector.SearchResult, n int) []vector.SearchResult {
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if n > 0 && len(results) > n {
		results = results[:n]
	}
	return results
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func keywordOverlap(query, text string) float64 {
	qWords := strings.Fields(strings.ToLower(query))
	if len(qWords) == 0 {
		return 0
	}
	lowered := strings.ToLower(text)
	matches := 0
	for _, w := range qWords {
		if strings.Contains(lowered, w) {
			matches++
		}
	}
	return float64(matches) / float64(len(qWords))
}
