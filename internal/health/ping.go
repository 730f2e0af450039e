package health

import "context"

// Pinger can be implemented by a dependency to expose a specialized health
// probe. HealthPing must return nil when the dependency is healthy.
type Pinger interface {
	HealthPing(ctx context.Context) error
}
