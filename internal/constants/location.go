package constants

// LocationEvent tells how a published location was obtained.
type LocationEvent string

const (
	// LocationEventFused is the starting estimate merged from last known fixes.
	LocationEventFused LocationEvent = "fused"
	// LocationEventUpdated is a fix that replaced the previous best one.
	LocationEventUpdated LocationEvent = "updated"
)

// ProviderState is the availability of a position source.
type ProviderState string

const (
	ProviderAvailable   ProviderState = "available"
	ProviderUnavailable ProviderState = "unavailable"
)

const (
	// DefaultSampleBuffer is the capacity of the queue between sources and
	// the acceptance engine.
	DefaultSampleBuffer = 64
	// DefaultTicksPerSecond converts second-based intervals to millisecond
	// timestamps.
	DefaultTicksPerSecond = 1000
)
