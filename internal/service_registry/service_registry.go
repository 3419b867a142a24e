package service_registry

import (
	"errors"
	"fmt"
	"io"

	"github.com/benmeehan/location-agent/internal/constants"
	"github.com/benmeehan/location-agent/internal/metrics"
	"github.com/benmeehan/location-agent/internal/services"
	"github.com/benmeehan/location-agent/internal/store"
	"github.com/benmeehan/location-agent/internal/stream"
	"github.com/benmeehan/location-agent/internal/utils"
	"github.com/benmeehan/location-agent/pkg/identity"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/benmeehan/location-agent/pkg/mqtt"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/rs/zerolog"
)

// Service is the interface for all plug-in services.
type Service interface {
	Start() error
	Stop() error
}

// ServiceRegistry manages the lifecycle of the agent's services and the
// position sources they share.
type ServiceRegistry struct {
	services   *orderedmap.OrderedMap[string, Service] // Registration order is start order
	mqttClient mqtt.MQTTClient
	metrics    *metrics.Metrics
	hub        *stream.Hub
	closers    []io.Closer
	Logger     zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, m *metrics.Metrics, hub *stream.Hub, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   orderedmap.NewOrderedMap[string, Service](),
		mqttClient: mqttClient,
		metrics:    m,
		hub:        hub,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services.Get(name); exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services.Set(name, svc)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Service returns a registered service by name.
func (sr *ServiceRegistry) Service(name string) (Service, bool) {
	return sr.services.Get(name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for el := sr.services.Front(); el != nil; el = el.Next() {
		name, svc := el.Key, el.Value
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				started, _ := sr.services.Get(startedServices[i])
				_ = started.Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order and releases the shared
// sources.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for el := sr.services.Back(); el != nil; el = el.Prev() {
		if err := el.Value.Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", el.Key, err))
		}
	}
	for i := len(sr.closers) - 1; i >= 0; i-- {
		if err := sr.closers[i].Close(); err != nil {
			stopErrors = append(stopErrors, err)
		}
	}
	sr.closers = nil

	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// BuildSources creates the enabled position sources in fusion order. The
// cache store, when enabled, is returned as well so it can record the best
// location.
func (sr *ServiceRegistry) BuildSources(cfg *utils.Config) ([]location.Source, *store.BoltStore, error) {
	var (
		sources []location.Source
		cache   *store.BoltStore
	)

	for _, id := range cfg.Location.EnabledProviders() {
		switch id {
		case location.GPS:
			gps := cfg.Location.GPS
			fetcher := location.NewDeviceSensorProvider(gps.Port, gps.BaudRate, gps.UERE)
			src := location.NewPollingSource(location.GPS, fetcher, gps.FetchTimeout, sr.Logger)
			sources = append(sources, src)
			sr.closers = append(sr.closers, src)

		case location.NETWORK:
			network := cfg.Location.Network
			fetcher, err := location.NewGoogleGeolocationProvider(network.MapsAPIKey, network.ModemIndex, network.ConsiderIP, sr.Logger)
			if err != nil {
				sr.Logger.Error().Err(err).Msg("failed to create Google Geolocation provider")
				return nil, nil, err
			}
			src := location.NewPollingSource(location.NETWORK, fetcher, network.FetchTimeout, sr.Logger)
			sources = append(sources, src)
			sr.closers = append(sr.closers, src)

		case location.PASSIVE:
			passive := cfg.Location.Passive
			sources = append(sources, location.NewMQTTSource(location.PASSIVE, passive.Topic, byte(passive.QOS), sr.mqttClient, sr.Logger))

		case location.CACHE:
			var err error
			cache, err = store.Open(cfg.Location.Cache.Path, sr.Logger)
			if err != nil {
				return nil, nil, err
			}
			sources = append(sources, cache)
			sr.closers = append(sr.closers, cache)
		}
	}

	return sources, cache, nil
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deviceInfo identity.DeviceInfoInterface) error {
	needSources := config.Services.Location.Enabled || config.Services.ProviderStatus.Enabled

	var (
		sources     []location.Source
		cache       *store.BoltStore
		locationSvc *services.LocationService
	)
	if needSources {
		var err error
		sources, cache, err = sr.BuildSources(config)
		if err != nil {
			return err
		}
	}

	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (Service, error)
	}{
		{
			name:    "http",
			enabled: config.HTTP.Enabled,
			constructor: func() (Service, error) {
				return services.NewHTTPService(
					config.HTTP.Listen,
					sr.metrics.Handler(),
					sr.hub,
					func() *location.Sample {
						if locationSvc == nil {
							return nil
						}
						return locationSvc.Best()
					},
					sr.Logger,
				), nil
			},
		},
		{
			name:    "provider_status",
			enabled: config.Services.ProviderStatus.Enabled,
			constructor: func() (Service, error) {
				return services.NewProviderStatusService(
					config.Services.ProviderStatus.Topic,
					config.Services.ProviderStatus.Interval,
					config.Services.ProviderStatus.QOS,
					sources,
					deviceInfo,
					sr.mqttClient,
					sr.metrics,
					sr.Logger,
				), nil
			},
		},
		{
			name:    "location",
			enabled: config.Services.Location.Enabled,
			constructor: func() (Service, error) {
				sinks := []location.Sink{sr.metrics.ObserveBest, sr.broadcast}
				if cache != nil {
					sinks = append(sinks, cache.Sink())
				}

				locationSvc = services.NewLocationService(
					services.LocationServiceConfig{
						Topic:       config.Services.Location.Topic,
						QOS:         config.Services.Location.QOS,
						Retained:    config.Services.Location.Retained,
						Engine:      config.Location.EngineConfig(constants.DefaultTicksPerSecond),
						Priority:    config.Location.EnabledProviders(),
						MinInterval: config.Location.MinInterval,
						BufferSize:  config.Services.Location.BufferSize,
						ReadTimeout: config.Services.Location.ReadTimeout,
					},
					sources,
					deviceInfo,
					sr.mqttClient,
					sr.Logger,
					sr.metrics,
					sinks...,
				)
				return locationSvc, nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}

// broadcast pushes the best location to the websocket clients.
func (sr *ServiceRegistry) broadcast(s *location.Sample) {
	if sr.hub != nil {
		sr.hub.Broadcast(s.ToFix())
	}
}
