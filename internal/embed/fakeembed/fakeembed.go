// Package fakeembed is a dependency-free embed.Provider for tests and
// local dev (config.EmbedProvider == "fake"): it derives a small
// deterministic vector from each text's bytes via FNV-1a rather than
// calling a real model, so embed_batch/vector_search UDFs can be
// exercised without a running embedding server.
package fakeembed

import (
	"context"
	"hash/fnv"
)

const dims = 8

// Provider is a deterministic, hash-based embed.Provider.
type Provider struct{}

func New() Provider {
	return Provider{}
}

func (Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectorFor(t)
	}
	return out, nil
}

func vectorFor(text string) []float32 {
	vec := make([]float32, dims)
	for i := 0; i < dims; i++ {
		h := fnv.New32a()
		_, _ = h.Write([]byte{byte(i)})
		_, _ = h.Write([]byte(text))
		vec[i] = float32(h.Sum32()%1000) / 1000.0
	}
	return vec
}
