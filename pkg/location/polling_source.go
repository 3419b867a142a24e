package location

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is used when no subscriber asks for an interval.
const DefaultPollInterval = 30 * time.Second

// PollingSource turns a Fetcher into a Source by fetching on a timer while
// at least one subscriber is registered.
type PollingSource struct {
	id           ProviderID
	fetcher      Fetcher
	fetchTimeout time.Duration
	logger       zerolog.Logger

	fanout *fanout

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewPollingSource creates a source for the given provider. fetchTimeout
// bounds each individual fetch; zero means no bound.
func NewPollingSource(id ProviderID, fetcher Fetcher, fetchTimeout time.Duration, logger zerolog.Logger) *PollingSource {
	return &PollingSource{
		id:           id,
		fetcher:      fetcher,
		fetchTimeout: fetchTimeout,
		logger:       logger.With().Str("provider", string(id)).Logger(),
		fanout:       newFanout(),
	}
}

// ID returns the provider identifier.
func (p *PollingSource) ID() ProviderID {
	return p.id
}

// Available asks the fetcher when it knows how; otherwise the source is
// assumed available.
func (p *PollingSource) Available(ctx context.Context) bool {
	if checker, ok := p.fetcher.(availabilityChecker); ok {
		return checker.Available(ctx)
	}
	return true
}

// LastKnown returns the last polled fix. Before the first poll it performs
// a single fetch.
func (p *PollingSource) LastKnown(ctx context.Context) (*Sample, error) {
	if last := p.fanout.lastKnown(); last != nil {
		return last, nil
	}

	sample, err := p.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if sample != nil {
		p.fanout.mu.Lock()
		if p.fanout.last == nil {
			p.fanout.last = sample
		}
		p.fanout.mu.Unlock()
	}
	return sample, nil
}

// Subscribe registers onSample and starts polling if needed. The returned
// Unsubscribe must not be called from within onSample.
func (p *PollingSource) Subscribe(minInterval time.Duration, minDistance float64, onSample func(*Sample)) (Unsubscribe, error) {
	if onSample == nil {
		return nil, errors.New("onSample callback is required")
	}

	key := p.fanout.add(minInterval, minDistance, onSample)
	p.startPolling()

	var once sync.Once
	return func() {
		once.Do(func() {
			if p.fanout.remove(key) == 0 {
				p.stopPolling()
			}
		})
	}, nil
}

// Close stops polling and releases the fetcher.
func (p *PollingSource) Close() error {
	p.stopPolling()
	if closer, ok := p.fetcher.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (p *PollingSource) startPolling() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	var ctx context.Context
	ctx, p.cancel = context.WithCancel(context.Background())
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pollLoop(ctx)
	}()

	p.logger.Debug().Msg("Polling started")
}

func (p *PollingSource) stopPolling() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug().Msg("Polling stopped")
}

func (p *PollingSource) pollLoop(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			sample, err := p.fetch(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warn().Err(err).Msg("Failed to fetch location")
				}
			} else if sample != nil {
				p.fanout.publish(sample)
			}
			timer.Reset(p.fanout.minInterval(DefaultPollInterval))
		case <-ctx.Done():
			return
		}
	}
}

func (p *PollingSource) fetch(ctx context.Context) (*Sample, error) {
	if p.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()
	}
	return p.fetcher.Fetch(ctx)
}
