package location

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

const (
	// DefaultDistanceThreshold is the distance, in meters, the device may
	// travel before a less accurate fix is accepted.
	DefaultDistanceThreshold = 10.0
	// DefaultMaxInterval is the longest time a best fix is kept against less
	// accurate candidates.
	DefaultMaxInterval = 30.0
)

var (
	ErrInvalidDistanceThreshold = errors.New("distance between updates must be greater than zero")
	ErrInvalidMaxInterval       = errors.New("default max time between updates must be greater than zero")
	ErrInvalidTicksPerInterval  = errors.New("ticks per interval cannot be negative")
)

// Config holds the acceptance policy settings.
type Config struct {
	// DistanceThreshold in meters, converted to a time budget from the
	// candidate's speed.
	DistanceThreshold float64
	// DefaultMaxInterval caps the time budget and is used when the speed is
	// unknown.
	DefaultMaxInterval float64
	// TicksPerInterval is the number of timestamp units in one interval unit.
	// Zero means 1: the timestamp delta is compared to the interval as is.
	TicksPerInterval float64
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		DistanceThreshold:  DefaultDistanceThreshold,
		DefaultMaxInterval: DefaultMaxInterval,
		TicksPerInterval:   1,
	}
}

// Validate rejects non-positive thresholds. Values are never clamped.
func (c Config) Validate() error {
	if !(c.DistanceThreshold > 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidDistanceThreshold, c.DistanceThreshold)
	}
	if !(c.DefaultMaxInterval > 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidMaxInterval, c.DefaultMaxInterval)
	}
	if c.TicksPerInterval < 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidTicksPerInterval, c.TicksPerInterval)
	}
	return nil
}

func (c Config) ticks() float64 {
	if c.TicksPerInterval == 0 {
		return 1
	}
	return c.TicksPerInterval
}

// State is the best fix together with the policy that maintains it.
type State struct {
	Best   *Sample
	Config Config
}

// Accept decides whether candidate replaces the current best fix. A
// candidate at least as accurate as the best always wins; a less accurate one
// wins once more time has passed than the speed-adjusted interval allows.
func (s State) Accept(candidate *Sample) (State, bool) {
	if s.Best == nil {
		s.Best = candidate
		return s, true
	}

	if accuracyOf(candidate) <= accuracyOf(s.Best) {
		s.Best = candidate
		return s, true
	}

	threshold := AdaptiveMaxInterval(candidate.speedOrZero(), s.Config.DistanceThreshold, s.Config.DefaultMaxInterval)
	elapsed := float64(candidate.Timestamp - s.Best.Timestamp)
	if elapsed > threshold*s.Config.ticks() {
		s.Best = candidate
		return s, true
	}

	return s, false
}

// accuracyOf reads a missing accuracy as 0, so a sample without accuracy is
// never considered worse than another one.
func accuracyOf(s *Sample) float64 {
	if !s.HasAccuracy {
		return 0
	}
	return s.Accuracy
}

// Sink receives every fix that becomes the new best.
type Sink func(*Sample)

// MultiSink forwards each fix to all the given sinks in order.
func MultiSink(sinks ...Sink) Sink {
	return func(s *Sample) {
		for _, sink := range sinks {
			if sink != nil {
				sink(s)
			}
		}
	}
}

// Engine keeps the best known fix of a single stream of samples.
//
// An Engine is not safe for concurrent use. Samples coming from several
// sources must be funneled through one goroutine before they reach OnSample.
type Engine struct {
	state  State
	sink   Sink
	logger zerolog.Logger
}

// NewEngine validates cfg and returns an engine with no best fix.
func NewEngine(cfg Config, sink Sink, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		state:  State{Config: cfg},
		sink:   sink,
		logger: logger,
	}, nil
}

// Fuse seeds the best fix from the last known samples. It does not notify
// the sink.
func (e *Engine) Fuse(samples map[ProviderID]*Sample, enabled []ProviderID) *Sample {
	e.state.Best = FuseInitial(samples, enabled)
	if e.state.Best == nil {
		e.logger.Info().Msg("No last known location available")
		return nil
	}
	e.logger.Info().
		Str("provider", string(e.state.Best.Provider)).
		Int64("timestamp", e.state.Best.Timestamp).
		Msg("Fused initial location")
	return e.state.Best
}

// OnSample offers a new fix and reports whether it became the best one.
// The sink is called once per replacement and never on rejection.
func (e *Engine) OnSample(candidate *Sample) bool {
	if candidate == nil {
		return false
	}

	next, replaced := e.state.Accept(candidate)
	if !replaced {
		e.logger.Debug().
			Str("provider", string(candidate.Provider)).
			Float64("accuracy", accuracyOf(candidate)).
			Msg("Location rejected")
		return false
	}

	e.state = next
	e.logger.Debug().
		Str("provider", string(candidate.Provider)).
		Float64("accuracy", accuracyOf(candidate)).
		Int64("timestamp", candidate.Timestamp).
		Msg("New best location")
	if e.sink != nil {
		e.sink(candidate)
	}
	return true
}

// Best returns the current best fix, or nil.
func (e *Engine) Best() *Sample {
	return e.state.Best
}

// Config returns the active settings.
func (e *Engine) Config() Config {
	return e.state.Config
}

// SetDistanceThreshold changes the distance between updates.
func (e *Engine) SetDistanceThreshold(meters float64) error {
	cfg := e.state.Config
	cfg.DistanceThreshold = meters
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.state.Config = cfg
	return nil
}

// SetDefaultMaxInterval changes the default max time between updates.
func (e *Engine) SetDefaultMaxInterval(interval float64) error {
	cfg := e.state.Config
	cfg.DefaultMaxInterval = interval
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.state.Config = cfg
	return nil
}

// Reset forgets the current best fix.
func (e *Engine) Reset() {
	e.state.Best = nil
}
