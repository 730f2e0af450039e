package factory

import (
	"github.com/rs/zerolog"

	"github.com/rvbbit/rvbbit/internal/config"
	"github.com/rvbbit/rvbbit/internal/logsink"
	"github.com/rvbbit/rvbbit/internal/logsink/memsink"
	"github.com/rvbbit/rvbbit/internal/logsink/postgres"
)

// newLogSink builds the logsink.Sink selected by cfg.LogSink. usage
// enriches agent_call rows with token/cost data fetched back from the LLM
// provider (§6.2); identity enrichment is left nil since its implementer,
// sessionstore.Store, is itself constructed from the sink returned here,
// and postgres.Sink treats a nil
// IdentityLookup as "skip enrichment" rather than an error.
func newLogSink(cfg *config.Config, usage logsink.UsageFetcher, log zerolog.Logger) (logsink.Sink, error) {
	switch cfg.LogSink {
	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return postgres.New(db, usage, nil, log, 3), nil
	default:
		return memsink.New(), nil
	}
}
