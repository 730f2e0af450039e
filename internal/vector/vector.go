// Package vector defines the vector-store external interface consumed by
// the embed_batch/vector_search_*/hybrid_search_* UDFs (spec §4.12.3).
package vector

import "context"

// Record is one embedded row, as produced by embed_batch's USING query
// (id, text, metadata) plus the embedding computed from text.
type Record struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]interface{}
}

// SearchResult is one scored hit returned by VectorSearch/HybridSearch,
// JSON-marshaled by the UDF layer and consumed by the rewriter's
// read_json_auto(...) wrapper (§4.11 phase 2).
type SearchResult struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Backend is the vector store surface. class names the SQL table the
// embedded column belongs to; column disambiguates multiple embedded
// columns of the same table via a metadata.column_name tag on every
// record (§4.12.3). tenant isolates records per caller_id, mirroring the
// teacher's per-userId Weaviate tenant so two callers' VECTOR_SEARCH calls
// never see each other's rows even when querying the same class.
type Backend interface {
	// Upsert writes records into class, tagging each with column so
	// VectorSearch/HybridSearch can filter back down to just this column's
	// embeddings.
	Upsert(ctx context.Context, tenant, class, column string, records []Record) error

	// Delete removes a single record by id.
	Delete(ctx context.Context, tenant, class, id string) error

	// VectorSearch returns the topK nearest records to query (embedded by
	// the caller and passed as queryVector), filtered to column and to
	// scores >= minScore (0 disables the floor).
	VectorSearch(ctx context.Context, tenant, class, column, query string, queryVector []float32, topK int, minScore float64) ([]SearchResult, error)

	// HybridSearch blends vector similarity and BM25 keyword relevance,
	// weighted by alpha (0 = pure keyword, 1 = pure vector).
	HybridSearch(ctx context.Context, tenant, class, column, query string, queryVector []float32, topK int, alpha float32) ([]SearchResult, error)
}
