package factory

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rvbbit/rvbbit/internal/config"
	"github.com/rvbbit/rvbbit/internal/embed"
	"github.com/rvbbit/rvbbit/internal/embed/fakeembed"
	"github.com/rvbbit/rvbbit/internal/embed/httpclient"
)

// newEmbedProvider builds the embed.Provider selected by cfg.EmbedProvider
// and kicks off an async warmup probe, mirroring the teacher's
// NewEmbeddingProvider: startup never blocks on the embedding server being
// reachable, a failed warmup only logs.
func newEmbedProvider(ctx context.Context, cfg *config.Config, log zerolog.Logger) embed.Provider {
	if cfg.EmbedProvider == "fake" {
		return fakeembed.New()
	}

	provider := httpclient.New("", cfg.EmbedModel)

	go func() {
		warmupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if vecs, err := provider.Embed(warmupCtx, []string{"factory-warmup-check"}); err != nil || len(vecs) == 0 {
			log.Warn().Err(err).Str("provider", cfg.EmbedProvider).Str("model", cfg.EmbedModel).
				Msg("embedding provider warmup failed")
		} else {
			log.Debug().Str("provider", cfg.EmbedProvider).Str("model", cfg.EmbedModel).
				Msg("embedding provider warmup completed")
		}
	}()

	return provider
}
