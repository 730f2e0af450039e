package factory

import (
	"github.com/rvbbit/rvbbit/internal/config"
	"github.com/rvbbit/rvbbit/internal/vector"
	"github.com/rvbbit/rvbbit/internal/vector/fakevector"
	"github.com/rvbbit/rvbbit/internal/vector/weaviate"
)

// newVectorBackend builds the vector.Backend selected by cfg.VectorStore.
func newVectorBackend(cfg *config.Config) (vector.Backend, error) {
	if cfg.VectorStore == "fake" {
		return fakevector.New(), nil
	}
	return weaviate.New(cfg.WeaviateURL)
}
