package services

import (
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPService_ServesRoutes(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("location_samples_received_total 0\n"))
	})
	streamHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	var best atomic.Pointer[location.Sample]
	h := NewHTTPService("127.0.0.1:0", metricsHandler, streamHandler, best.Load, zerolog.Nop())
	require.NoError(t, h.Start())

	base := "http://" + h.Addr()

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "location_samples_received_total 0\n", string(body))

	resp, err = http.Get(base + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	resp, err = http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// No best location yet.
	resp, err = http.Get(base + "/location")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	best.Store(location.NewSample(location.GPS, 1_700_000_000_000, 47.37, 8.54, location.WithAccuracy(4)))
	resp, err = http.Get(base + "/location")
	require.NoError(t, err)
	var fix location.Fix
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fix))
	resp.Body.Close()
	assert.Equal(t, "gps", fix.Provider)
	assert.Equal(t, 47.37, fix.Latitude)
	require.NotNil(t, fix.Accuracy)
	assert.Equal(t, 4.0, *fix.Accuracy)

	err = h.Start()
	assert.EqualError(t, err, "http service is already running")

	require.NoError(t, h.Stop())
	assert.Empty(t, h.Addr())
	assert.EqualError(t, h.Stop(), "http service is not running")
}

func TestHTTPService_Start_BindError(t *testing.T) {
	first := NewHTTPService("127.0.0.1:0", http.NotFoundHandler(), http.NotFoundHandler(), nil, zerolog.Nop())
	require.NoError(t, first.Start())
	defer first.Stop()

	second := NewHTTPService(first.Addr(), http.NotFoundHandler(), http.NotFoundHandler(), nil, zerolog.Nop())
	assert.Error(t, second.Start())
}
