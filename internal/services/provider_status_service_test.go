package services

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benmeehan/location-agent/internal/constants"
	"github.com/benmeehan/location-agent/internal/metrics"
	"github.com/benmeehan/location-agent/internal/mocks"
	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const statusTopic = "devices/location/providers"

// togglingSource is a source whose availability the test can flip.
type togglingSource struct {
	id        location.ProviderID
	available atomic.Bool
}

func newTogglingSource(id location.ProviderID, available bool) *togglingSource {
	src := &togglingSource{id: id}
	src.available.Store(available)
	return src
}

func (s *togglingSource) ID() location.ProviderID { return s.id }

func (s *togglingSource) Available(context.Context) bool { return s.available.Load() }

func (s *togglingSource) LastKnown(context.Context) (*location.Sample, error) { return nil, nil }

func (s *togglingSource) Subscribe(time.Duration, float64, func(*location.Sample)) (location.Unsubscribe, error) {
	return func() {}, nil
}

// statusRecorder captures the provider status messages.
type statusRecorder struct {
	mu       sync.Mutex
	messages []models.ProviderStatus
}

func (r *statusRecorder) record(args mock.Arguments) {
	var message models.ProviderStatus
	if err := json.Unmarshal(args.Get(3).([]byte), &message); err != nil {
		panic(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *statusRecorder) snapshot() []models.ProviderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ProviderStatus(nil), r.messages...)
}

func newTestProviderStatusService(sources []location.Source, interval time.Duration) (*ProviderStatusService, *statusRecorder) {
	mockDeviceInfo := new(mocks.MockDeviceInfo)
	mockDeviceInfo.On("GetDeviceID").Return("test-device-id")

	recorder := &statusRecorder{}
	mockMQTTClient := new(mocks.MockMQTTClient)
	mockMQTTClient.On("Publish", statusTopic, byte(1), false, mock.Anything).
		Run(recorder.record).
		Return(mocks.NewCompletedToken(nil))

	p := NewProviderStatusService(statusTopic, interval, 1, sources, mockDeviceInfo, mockMQTTClient, metrics.New(), zerolog.Nop())
	return p, recorder
}

// TestProviderStatusService_Start_Success tests the successful start of the ProviderStatusService.
func TestProviderStatusService_Start_Success(t *testing.T) {
	p, _ := newTestProviderStatusService(nil, time.Second)

	err := p.Start()
	assert.NoError(t, err)

	// Try to start again (should fail)
	err = p.Start()
	assert.Error(t, err)
	assert.Equal(t, "provider status service is already running", err.Error())

	err = p.Stop()
	assert.NoError(t, err)

	// Try to stop again (should fail)
	err = p.Stop()
	assert.Error(t, err)
	assert.Equal(t, "provider status service is not running", err.Error())
}

// TestProviderStatusService_DefaultInterval tests the interval fallback.
func TestProviderStatusService_DefaultInterval(t *testing.T) {
	p, _ := newTestProviderStatusService(nil, 0)
	assert.Equal(t, DefaultProviderStatusInterval, p.Interval)
}

// TestProviderStatusService_PublishesTransitions tests that only changes are published.
func TestProviderStatusService_PublishesTransitions(t *testing.T) {
	gps := newTogglingSource(location.GPS, true)
	network := newTogglingSource(location.NETWORK, false)

	p, recorder := newTestProviderStatusService([]location.Source{gps, network}, 20*time.Millisecond)
	require.NoError(t, p.Start())
	defer p.Stop()

	// The first check reports every source.
	assert.Eventually(t, func() bool { return len(recorder.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	messages := recorder.snapshot()
	assert.Equal(t, "gps", messages[0].Provider)
	assert.Equal(t, constants.ProviderAvailable, messages[0].State)
	assert.Equal(t, "network", messages[1].Provider)
	assert.Equal(t, constants.ProviderUnavailable, messages[1].State)
	assert.Equal(t, []location.ProviderID{location.NETWORK}, p.Unavailable())

	// Unchanged sources stay quiet across several checks.
	time.Sleep(70 * time.Millisecond)
	assert.Len(t, recorder.snapshot(), 2)

	gps.available.Store(false)
	assert.Eventually(t, func() bool { return len(recorder.snapshot()) == 3 }, time.Second, 5*time.Millisecond)

	last := recorder.snapshot()[2]
	assert.Equal(t, "gps", last.Provider)
	assert.Equal(t, constants.ProviderUnavailable, last.State)
	assert.Equal(t, "test-device-id", last.DeviceID)

	state, ok := p.State(location.GPS)
	assert.True(t, ok)
	assert.Equal(t, constants.ProviderUnavailable, state)
}
