// Package embed defines the embedding-provider external interface used by
// the embed_batch and vector_search UDFs (spec §4.12.3).
package embed

import "context"

// Provider generates dense vectors for text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
