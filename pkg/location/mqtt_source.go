package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/location-agent/pkg/mqtt"
	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTSource passively listens to fixes other producers publish on a topic.
// It never requests a fix on its own.
type MQTTSource struct {
	id     ProviderID
	topic  string
	qos    byte
	client mqtt.MQTTClient
	logger zerolog.Logger
	now    func() time.Time

	fanout *fanout

	mu         sync.Mutex
	subscribed bool
}

// NewMQTTSource creates a passive source reading Fix JSON from topic.
func NewMQTTSource(id ProviderID, topic string, qos byte, client mqtt.MQTTClient, logger zerolog.Logger) *MQTTSource {
	return &MQTTSource{
		id:     id,
		topic:  topic,
		qos:    qos,
		client: client,
		logger: logger.With().Str("provider", string(id)).Logger(),
		now:    time.Now,
		fanout: newFanout(),
	}
}

// ID returns the provider identifier.
func (m *MQTTSource) ID() ProviderID {
	return m.id
}

// Available reports whether the broker connection is up.
func (m *MQTTSource) Available(_ context.Context) bool {
	return m.client.IsConnected()
}

// LastKnown returns the last fix received on the topic.
func (m *MQTTSource) LastKnown(_ context.Context) (*Sample, error) {
	return m.fanout.lastKnown(), nil
}

// Subscribe registers onSample, subscribing to the topic on first use.
func (m *MQTTSource) Subscribe(minInterval time.Duration, minDistance float64, onSample func(*Sample)) (Unsubscribe, error) {
	if onSample == nil {
		return nil, errors.New("onSample callback is required")
	}

	if err := m.ensureSubscribed(); err != nil {
		return nil, err
	}
	key := m.fanout.add(minInterval, minDistance, onSample)

	var once sync.Once
	return func() {
		once.Do(func() {
			if m.fanout.remove(key) == 0 {
				m.unsubscribe()
			}
		})
	}, nil
}

func (m *MQTTSource) ensureSubscribed() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribed {
		return nil
	}

	token := m.client.Subscribe(m.topic, m.qos, m.onMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", m.topic, err)
	}
	m.subscribed = true
	m.logger.Info().Str("topic", m.topic).Msg("Listening for passive fixes")
	return nil
}

func (m *MQTTSource) unsubscribe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.subscribed {
		return
	}

	token := m.client.Unsubscribe(m.topic)
	token.Wait()
	if err := token.Error(); err != nil {
		m.logger.Warn().Err(err).Str("topic", m.topic).Msg("Failed to unsubscribe from topic")
	}
	m.subscribed = false
}

func (m *MQTTSource) onMessage(_ mqttLib.Client, msg mqttLib.Message) {
	sample, err := m.decode(msg.Payload())
	if err != nil {
		m.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Discarding passive fix")
		return
	}
	m.fanout.publish(sample)
}

func (m *MQTTSource) decode(payload []byte) (*Sample, error) {
	var fix Fix
	if err := json.Unmarshal(payload, &fix); err != nil {
		return nil, fmt.Errorf("invalid fix payload: %w", err)
	}
	if fix.Latitude < -90 || fix.Latitude > 90 || fix.Longitude < -180 || fix.Longitude > 180 {
		return nil, fmt.Errorf("coordinates out of range: %v,%v", fix.Latitude, fix.Longitude)
	}
	if fix.Accuracy != nil && *fix.Accuracy < 0 {
		return nil, fmt.Errorf("negative accuracy: %v", *fix.Accuracy)
	}
	if fix.Timestamp == 0 {
		fix.Timestamp = m.now().UnixMilli()
	}
	return fix.Sample(m.id), nil
}
