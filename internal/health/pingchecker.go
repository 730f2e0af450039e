package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// PingChecker is a generic Checker driven by a caller-supplied probe
// function. The teacher has one bespoke checker type per dependency
// (StoreHealthChecker, ProviderHealthChecker, ...) that differ only in
// what they probe; RVBBIT's dependencies are themselves pluggable
// backends behind narrow interfaces (sqlengine.Engine, llm.Client,
// embed.Provider, vector.Backend), so one parameterized checker type
// covers all of them instead of four near-duplicates.
type PingChecker struct {
	name         string
	probe        func(ctx context.Context) error
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewPingChecker constructs a PingChecker named name, calling probe on
// every tick. probeTimeout bounds each probe call; 0 defaults to 2s.
func NewPingChecker(name string, probe func(ctx context.Context) error, log zerolog.Logger, probeTimeout time.Duration) *PingChecker {
	c := &PingChecker{name: name, probe: probe, log: log, probeTimeout: probeTimeout}
	c.healthy.Store(0)
	return c
}

func (c *PingChecker) Name() string    { return c.name }
func (c *PingChecker) IsHealthy() bool { return c.healthy.Load() == 1 }

func (c *PingChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		to := c.probeTimeout
		if to <= 0 {
			to = 2 * time.Second
		}
		probeCtx, cancel := context.WithTimeout(ctx, to)
		defer cancel()

		if err := c.probe(probeCtx); err != nil {
			c.healthy.Store(0)
			c.log.Error().Err(err).Str("checker", c.name).Msg("health check failed")
			return
		}
		c.healthy.Store(1)
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
