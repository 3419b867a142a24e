package mqtt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/benmeehan/location-agent/pkg/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_MissingCACertificate(t *testing.T) {
	s := NewMqttService(file.NewFileService())

	err := s.Initialize(Options{
		Broker:        "tcp://127.0.0.1:1",
		ClientID:      "test",
		CACertificate: filepath.Join(t.TempDir(), "missing.pem"),
	})
	assert.ErrorContains(t, err, "failed to read CA certificate")
}

func TestInitialize_InvalidCACertificate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))

	s := NewMqttService(file.NewFileService())
	err := s.Initialize(Options{Broker: "tcp://127.0.0.1:1", ClientID: "test", CACertificate: path})
	assert.EqualError(t, err, "failed to append CA certificate")
}

func TestIsConnected_BeforeInitialize(t *testing.T) {
	assert.False(t, NewMqttService(file.NewFileService()).IsConnected())
}
