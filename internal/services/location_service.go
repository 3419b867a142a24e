package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/location-agent/internal/constants"
	"github.com/benmeehan/location-agent/internal/metrics"
	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/internal/utils"
	"github.com/benmeehan/location-agent/pkg/identity"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/benmeehan/location-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// LocationServiceConfig holds the settings of the LocationService.
type LocationServiceConfig struct {
	Topic    string
	QOS      int
	Retained bool

	Engine      location.Config
	Priority    []location.ProviderID // enabled providers in fusion order
	MinInterval time.Duration         // per-source delivery interval
	BufferSize  int
	ReadTimeout time.Duration // bound on reading last known fixes
}

// LocationService keeps the best known device location and publishes every
// improvement to the MQTT broker.
//
// Sources deliver from their own goroutines; all samples are queued and
// handed to the acceptance engine by a single goroutine.
type LocationService struct {
	// Configuration fields
	config LocationServiceConfig

	// Dependencies
	deviceInfo identity.DeviceInfoInterface
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger
	sources    map[location.ProviderID]location.Source
	metrics    *metrics.Metrics
	sinks      []location.Sink

	// Internal state management
	engine       *location.Engine
	samples      chan *location.Sample
	unsubscribes []location.Unsubscribe
	best         atomic.Pointer[location.Sample]

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocationService creates a LocationService. metrics may be nil; sinks
// receive the fused start location and every later best location.
func NewLocationService(config LocationServiceConfig, sources []location.Source, deviceInfo identity.DeviceInfoInterface,
	mqttClient mqtt.MQTTClient, logger zerolog.Logger, m *metrics.Metrics, sinks ...location.Sink) *LocationService {
	if config.BufferSize <= 0 {
		config.BufferSize = constants.DefaultSampleBuffer
	}
	if len(config.Priority) == 0 {
		config.Priority = location.DefaultPriority
	}

	bySource := make(map[location.ProviderID]location.Source, len(sources))
	for _, src := range sources {
		bySource[src.ID()] = src
	}

	return &LocationService{
		config:     config,
		deviceInfo: deviceInfo,
		mqttClient: mqttClient,
		logger:     logger,
		sources:    bySource,
		metrics:    m,
		sinks:      sinks,
	}
}

// Start fuses the last known locations, subscribes to every source and
// starts processing samples.
func (l *LocationService) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		l.logger.Warn().Msg("LocationService is already running")
		return errors.New("location service is already running")
	}

	engine, err := location.NewEngine(l.config.Engine, l.onNewBest, l.logger)
	if err != nil {
		return err
	}
	l.engine = engine

	if fused := l.engine.Fuse(l.readLastKnown(), l.config.Priority); fused != nil {
		l.notify(constants.LocationEventFused, fused)
	}

	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.samples = make(chan *location.Sample, l.config.BufferSize)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.runAcceptanceLoop(l.ctx, l.samples)
	}()

	if err := l.subscribeAll(); err != nil {
		l.cancel()
		l.wg.Wait()
		return err
	}

	l.running = true
	l.logger.Info().
		Str("topic", l.config.Topic).
		Int("qos", l.config.QOS).
		Int("sources", len(l.unsubscribes)).
		Float64("distance_threshold", l.config.Engine.DistanceThreshold).
		Float64("default_max_interval", l.config.Engine.DefaultMaxInterval).
		Msg("LocationService started")
	return nil
}

// Stop unsubscribes from the sources and ends the acceptance loop. Queued
// samples are dropped.
func (l *LocationService) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		l.logger.Warn().Msg("LocationService is not running")
		return errors.New("location service is not running")
	}

	for _, unsubscribe := range l.unsubscribes {
		unsubscribe()
	}
	l.unsubscribes = nil

	l.cancel()
	l.wg.Wait()

	l.running = false
	l.logger.Info().Msg("LocationService stopped")
	return nil
}

// Best returns the current best location, or nil.
func (l *LocationService) Best() *location.Sample {
	return l.best.Load()
}

// readLastKnown queries every enabled and available source concurrently.
func (l *LocationService) readLastKnown() map[location.ProviderID]*location.Sample {
	ids := l.enabledSources()
	tasks := make([]func() *location.Sample, len(ids))
	for i, id := range ids {
		src := l.sources[id]
		tasks[i] = func() *location.Sample {
			ctx := context.Background()
			if l.config.ReadTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, l.config.ReadTimeout)
				defer cancel()
			}

			if !src.Available(ctx) {
				l.logger.Warn().Str("provider", string(id)).Msg("Provider unavailable, skipping last known location")
				return nil
			}
			sample, err := src.LastKnown(ctx)
			if err != nil {
				l.logger.Warn().Err(err).Str("provider", string(id)).Msg("Failed to read last known location")
				return nil
			}
			return sample
		}
	}

	results := utils.Collect(len(tasks), tasks)
	samples := make(map[location.ProviderID]*location.Sample, len(ids))
	for i, id := range ids {
		if results[i] != nil {
			samples[id] = results[i]
		}
	}
	return samples
}

// subscribeAll subscribes to the enabled sources. It fails only when no
// source could be subscribed.
func (l *LocationService) subscribeAll() error {
	var errs []error
	for _, id := range l.enabledSources() {
		src := l.sources[id]
		unsubscribe, err := src.Subscribe(l.config.MinInterval, l.config.Engine.DistanceThreshold, l.enqueue)
		if err != nil {
			l.logger.Error().Err(err).Str("provider", string(id)).Msg("Failed to subscribe to provider")
			errs = append(errs, err)
			continue
		}
		l.unsubscribes = append(l.unsubscribes, unsubscribe)
	}

	if len(l.unsubscribes) == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// enabledSources returns the configured providers that have a source, in
// fusion order.
func (l *LocationService) enabledSources() []location.ProviderID {
	var ids []location.ProviderID
	for _, id := range l.config.Priority {
		if _, ok := l.sources[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// enqueue is the callback handed to every source. It never blocks the
// source; samples are dropped when the queue is full.
func (l *LocationService) enqueue(s *location.Sample) {
	select {
	case l.samples <- s:
	default:
		l.logger.Warn().Str("provider", string(s.Provider)).Msg("Sample queue full, dropping sample")
	}
}

// runAcceptanceLoop is the only goroutine that touches the engine after
// Start.
func (l *LocationService) runAcceptanceLoop(ctx context.Context, samples <-chan *location.Sample) {
	for {
		select {
		case s := <-samples:
			accepted := l.engine.OnSample(s)
			if l.metrics != nil {
				l.metrics.ObserveSample(s.Provider, accepted)
			}
		case <-ctx.Done():
			return
		}
	}
}

// onNewBest is the engine's sink.
func (l *LocationService) onNewBest(s *location.Sample) {
	l.notify(constants.LocationEventUpdated, s)
}

func (l *LocationService) notify(event constants.LocationEvent, s *location.Sample) {
	l.best.Store(s)

	if err := l.publish(event, s); err != nil {
		l.logger.Error().Err(err).Msg("Failed to publish location")
	}
	location.MultiSink(l.sinks...)(s)
}

// publish sends the location message to the MQTT broker.
func (l *LocationService) publish(event constants.LocationEvent, s *location.Sample) error {
	message := models.NewLocation(l.deviceInfo.GetDeviceID(), event, s)

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	token := l.mqttClient.Publish(l.config.Topic, byte(l.config.QOS), l.config.Retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}

	l.logger.Info().
		Str("event", string(event)).
		Str("provider", message.Provider).
		Float64("latitude", message.Latitude).
		Float64("longitude", message.Longitude).
		Str("topic", l.config.Topic).
		Msg("Location published successfully")
	return nil
}
