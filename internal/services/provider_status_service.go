package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/location-agent/internal/constants"
	"github.com/benmeehan/location-agent/internal/metrics"
	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/pkg/identity"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/benmeehan/location-agent/pkg/mqtt"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// DefaultProviderStatusInterval is used when no check interval is configured.
const DefaultProviderStatusInterval = 30 * time.Second

// ProviderStatusService periodically checks the availability of every
// position source and publishes the transitions.
type ProviderStatusService struct {
	PubTopic   string
	Interval   time.Duration
	DeviceInfo identity.DeviceInfoInterface
	QOS        int
	MqttClient mqtt.MQTTClient
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger

	sources []location.Source
	states  cmap.ConcurrentMap[string, constants.ProviderState]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProviderStatusService initializes a new ProviderStatusService.
func NewProviderStatusService(pubTopic string, interval time.Duration, qos int, sources []location.Source,
	deviceInfo identity.DeviceInfoInterface, mqttClient mqtt.MQTTClient, m *metrics.Metrics, logger zerolog.Logger) *ProviderStatusService {
	if interval <= 0 {
		interval = DefaultProviderStatusInterval
	}

	return &ProviderStatusService{
		PubTopic:   pubTopic,
		Interval:   interval,
		DeviceInfo: deviceInfo,
		QOS:        qos,
		MqttClient: mqttClient,
		Metrics:    m,
		Logger:     logger,
		sources:    sources,
		states:     cmap.New[constants.ProviderState](),
	}
}

// Start launches the status loop in a separate goroutine. The first check
// runs immediately and reports every source.
func (p *ProviderStatusService) Start() error {
	if p.ctx != nil {
		p.Logger.Warn().Msg("ProviderStatusService is already running")
		return errors.New("provider status service is already running")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.states.Clear()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runStatusLoop()
	}()

	p.Logger.Info().Str("topic", p.PubTopic).Dur("interval", p.Interval).Msg("ProviderStatusService started successfully")
	return nil
}

// Stop gracefully stops the provider status service.
func (p *ProviderStatusService) Stop() error {
	if p.ctx == nil {
		p.Logger.Warn().Msg("ProviderStatusService is not running")
		return errors.New("provider status service is not running")
	}

	p.cancel()
	p.wg.Wait()

	p.ctx = nil
	p.cancel = nil

	p.Logger.Info().Msg("ProviderStatusService stopped successfully")
	return nil
}

// State returns the last observed state of a provider.
func (p *ProviderStatusService) State(id location.ProviderID) (constants.ProviderState, bool) {
	return p.states.Get(string(id))
}

// Unavailable returns the providers that were unavailable at the last check.
func (p *ProviderStatusService) Unavailable() []location.ProviderID {
	var ids []location.ProviderID
	for _, src := range p.sources {
		if state, ok := p.states.Get(string(src.ID())); ok && state == constants.ProviderUnavailable {
			ids = append(ids, src.ID())
		}
	}
	return ids
}

func (p *ProviderStatusService) runStatusLoop() {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	p.checkProviders(p.ctx)
	for {
		select {
		case <-ticker.C:
			p.checkProviders(p.ctx)
		case <-p.ctx.Done():
			p.Logger.Info().Msg("ProviderStatusService stopping gracefully")
			return
		}
	}
}

// checkProviders publishes a status message for every source whose state
// differs from the previous check.
func (p *ProviderStatusService) checkProviders(ctx context.Context) {
	for _, src := range p.sources {
		id := src.ID()
		available := src.Available(ctx)

		state := constants.ProviderUnavailable
		if available {
			state = constants.ProviderAvailable
		}

		previous, seen := p.states.Get(string(id))
		changed := !seen || previous != state
		p.states.Set(string(id), state)

		if p.Metrics != nil {
			p.Metrics.ObserveProvider(id, available, changed)
		}
		if !changed {
			continue
		}

		if err := p.publish(id, state); err != nil {
			p.Logger.Error().Err(err).Str("provider", string(id)).Msg("Failed to publish provider status")
			continue
		}
		p.Logger.Info().Str("provider", string(id)).Str("state", string(state)).Msg("Provider status changed")
	}
}

func (p *ProviderStatusService) publish(id location.ProviderID, state constants.ProviderState) error {
	message := models.ProviderStatus{
		DeviceID:  p.DeviceInfo.GetDeviceID(),
		Provider:  string(id),
		State:     state,
		Timestamp: time.Now(),
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	token := p.MqttClient.Publish(p.PubTopic, byte(p.QOS), false, payload)
	token.Wait()
	return token.Error()
}
