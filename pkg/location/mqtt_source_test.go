package location_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benmeehan/location-agent/internal/mocks"
	"github.com/benmeehan/location-agent/pkg/location"
	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const passiveTopic = "devices/location/passive"

// subscribeCapturingHandler wires the mock client so the test can deliver
// messages to the source.
func subscribeCapturingHandler(client *mocks.MockMQTTClient, err error) *mqttLib.MessageHandler {
	var handler mqttLib.MessageHandler
	client.On("Subscribe", passiveTopic, byte(1), mock.Anything).
		Run(func(args mock.Arguments) {
			handler = args.Get(2).(mqttLib.MessageHandler)
		}).
		Return(mocks.NewCompletedToken(err)).Once()
	return &handler
}

func TestMQTTSource_DeliversFixes(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	handler := subscribeCapturingHandler(client, nil)
	client.On("Unsubscribe", []string{passiveTopic}).Return(mocks.NewCompletedToken(nil)).Once()

	src := location.NewMQTTSource(location.PASSIVE, passiveTopic, 1, client, zerolog.Nop())

	var (
		mu       sync.Mutex
		received []*location.Sample
	)
	unsubscribe, err := src.Subscribe(0, 0, func(s *location.Sample) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, s)
	})
	require.NoError(t, err)
	require.NotNil(t, *handler)

	(*handler)(nil, mocks.NewMockMessage(passiveTopic, []byte(
		`{"provider":"gps","timestamp":1700000000000,"latitude":47.37,"longitude":8.54,"accuracy":4.2,"speed":1.5}`)))

	mu.Lock()
	require.Len(t, received, 1)
	s := received[0]
	mu.Unlock()

	assert.Equal(t, location.GPS, s.Provider)
	assert.Equal(t, int64(1_700_000_000_000), s.Timestamp)
	assert.Equal(t, 47.37, s.Latitude)
	assert.True(t, s.HasAccuracy)
	assert.Equal(t, 4.2, s.Accuracy)
	assert.True(t, s.HasSpeed)
	assert.False(t, s.HasBearing)

	last, err := src.LastKnown(context.Background())
	require.NoError(t, err)
	assert.Same(t, s, last)

	unsubscribe()
	unsubscribe()
	client.AssertExpectations(t)
}

func TestMQTTSource_DiscardsInvalidFixes(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	handler := subscribeCapturingHandler(client, nil)

	src := location.NewMQTTSource(location.PASSIVE, passiveTopic, 1, client, zerolog.Nop())

	calls := 0
	_, err := src.Subscribe(0, 0, func(*location.Sample) { calls++ })
	require.NoError(t, err)

	for _, payload := range []string{
		`not json`,
		`{"latitude":91,"longitude":0}`,
		`{"latitude":0,"longitude":-180.5}`,
		`{"latitude":1,"longitude":1,"accuracy":-3}`,
	} {
		(*handler)(nil, mocks.NewMockMessage(passiveTopic, []byte(payload)))
	}

	assert.Zero(t, calls)
	last, err := src.LastKnown(context.Background())
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestMQTTSource_DefaultsProviderAndTimestamp(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	handler := subscribeCapturingHandler(client, nil)

	src := location.NewMQTTSource(location.PASSIVE, passiveTopic, 1, client, zerolog.Nop())

	var got *location.Sample
	_, err := src.Subscribe(0, 0, func(s *location.Sample) { got = s })
	require.NoError(t, err)

	before := time.Now().UnixMilli()
	(*handler)(nil, mocks.NewMockMessage(passiveTopic, []byte(`{"latitude":10,"longitude":20}`)))

	require.NotNil(t, got)
	assert.Equal(t, location.PASSIVE, got.Provider)
	assert.GreaterOrEqual(t, got.Timestamp, before)
	assert.False(t, got.HasAccuracy)
}

func TestMQTTSource_SubscribeError(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	subscribeCapturingHandler(client, errors.New("not connected"))

	src := location.NewMQTTSource(location.PASSIVE, passiveTopic, 1, client, zerolog.Nop())

	_, err := src.Subscribe(0, 0, func(*location.Sample) {})
	assert.ErrorContains(t, err, "not connected")
}

func TestMQTTSource_Available(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	client.On("IsConnected").Return(true).Once()
	client.On("IsConnected").Return(false).Once()

	src := location.NewMQTTSource(location.PASSIVE, passiveTopic, 1, client, zerolog.Nop())
	assert.True(t, src.Available(context.Background()))
	assert.False(t, src.Available(context.Background()))
}
