package location

import (
	"context"
	"time"
)

// Unsubscribe stops the deliveries of one subscription.
type Unsubscribe func()

// Source is a position provider the agent can read and subscribe to.
type Source interface {
	// ID returns the provider identifier.
	ID() ProviderID
	// LastKnown returns the latest fix the source has, or nil if it has none.
	LastKnown(ctx context.Context) (*Sample, error)
	// Available reports whether the source can currently produce fixes.
	Available(ctx context.Context) bool
	// Subscribe delivers new fixes no more often than minInterval and only
	// after the position moved at least minDistance meters.
	Subscribe(minInterval time.Duration, minDistance float64, onSample func(*Sample)) (Unsubscribe, error)
}

// Fetcher performs a single position fix.
type Fetcher interface {
	Fetch(ctx context.Context) (*Sample, error)
}

// availabilityChecker is implemented by fetchers that can tell whether
// their backing device or service is reachable.
type availabilityChecker interface {
	Available(ctx context.Context) bool
}

// UnavailableProviders lists the providers of sources that are currently
// unavailable, in the order given.
func UnavailableProviders(ctx context.Context, sources []Source) []ProviderID {
	var unavailable []ProviderID
	for _, src := range sources {
		if !src.Available(ctx) {
			unavailable = append(unavailable, src.ID())
		}
	}
	return unavailable
}
