package service_registry

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/benmeehan/location-agent/internal/metrics"
	"github.com/benmeehan/location-agent/internal/mocks"
	"github.com/benmeehan/location-agent/internal/services"
	"github.com/benmeehan/location-agent/internal/stream"
	"github.com/benmeehan/location-agent/internal/utils"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService records the lifecycle calls made by the registry.
type fakeService struct {
	name     string
	startErr error
	calls    *[]string
}

func (f *fakeService) Start() error {
	*f.calls = append(*f.calls, "start "+f.name)
	return f.startErr
}

func (f *fakeService) Stop() error {
	*f.calls = append(*f.calls, "stop "+f.name)
	return nil
}

func newTestRegistry() *ServiceRegistry {
	return NewServiceRegistry(new(mocks.MockMQTTClient), metrics.New(), stream.NewHub(zerolog.Nop()), zerolog.Nop())
}

func TestServiceRegistry_StartStopOrder(t *testing.T) {
	var calls []string
	sr := newTestRegistry()
	sr.RegisterService("a", &fakeService{name: "a", calls: &calls})
	sr.RegisterService("b", &fakeService{name: "b", calls: &calls})
	sr.RegisterService("a", &fakeService{name: "duplicate", calls: &calls})

	require.NoError(t, sr.StartServices())
	require.NoError(t, sr.StopServices())

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, calls)
}

func TestServiceRegistry_StartRollsBack(t *testing.T) {
	var calls []string
	sr := newTestRegistry()
	sr.RegisterService("a", &fakeService{name: "a", calls: &calls})
	sr.RegisterService("b", &fakeService{name: "b", calls: &calls})
	sr.RegisterService("c", &fakeService{name: "c", startErr: errors.New("boom"), calls: &calls})

	err := sr.StartServices()
	assert.ErrorContains(t, err, "failed to start c: boom")
	assert.Equal(t, []string{"start a", "start b", "start c", "stop b", "stop a"}, calls)
}

func TestServiceRegistry_RegisterServices(t *testing.T) {
	cfg := &utils.Config{}
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = "127.0.0.1:0"
	cfg.Services.Location.Enabled = true
	cfg.Services.Location.Topic = "devices/location"
	cfg.Services.ProviderStatus.Enabled = true
	cfg.Location.Passive.Enabled = true
	cfg.Location.Passive.Topic = "devices/location/passive"
	cfg.Location.Cache.Enabled = true
	cfg.Location.Cache.Path = filepath.Join(t.TempDir(), "location.db")
	require.NoError(t, cfg.Validate())

	mockDeviceInfo := new(mocks.MockDeviceInfo)
	sr := newTestRegistry()
	require.NoError(t, sr.RegisterServices(cfg, mockDeviceInfo))

	var names []string
	for el := sr.services.Front(); el != nil; el = el.Next() {
		names = append(names, el.Key)
	}
	assert.Equal(t, []string{"http", "provider_status", "location"}, names)

	svc, ok := sr.Service("location")
	require.True(t, ok)
	assert.IsType(t, &services.LocationService{}, svc)

	// The cache store is the only closer.
	require.Len(t, sr.closers, 1)
	assert.NoError(t, sr.closers[0].Close())
}

func TestServiceRegistry_BuildSourcesOrder(t *testing.T) {
	cfg := &utils.Config{}
	cfg.Location.Priority = []string{"cache", "gps", "passive"}
	cfg.Location.GPS.Enabled = true
	cfg.Location.GPS.Port = "/dev/null"
	cfg.Location.Passive.Enabled = true
	cfg.Location.Passive.Topic = "devices/location/passive"
	cfg.Location.Cache.Enabled = true
	cfg.Location.Cache.Path = filepath.Join(t.TempDir(), "location.db")

	sr := newTestRegistry()
	sources, cache, err := sr.BuildSources(cfg)
	require.NoError(t, err)
	require.NotNil(t, cache)

	var ids []location.ProviderID
	for _, src := range sources {
		ids = append(ids, src.ID())
	}
	assert.Equal(t, []location.ProviderID{location.CACHE, location.GPS, location.PASSIVE}, ids)

	for _, closer := range sr.closers {
		assert.NoError(t, closer.Close())
	}
}
