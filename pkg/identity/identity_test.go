package identity

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/benmeehan/location-agent/pkg/file"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDeviceInfo_GeneratesAndPersistsID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity", "device.json")
	fileClient := file.NewFileService()

	d := NewDeviceInfo(path, fileClient)
	require.NoError(t, d.LoadDeviceInfo())

	id := d.GetDeviceID()
	_, err := uuid.Parse(id)
	assert.NoError(t, err)

	// A second load reads the stored id back.
	again := NewDeviceInfo(path, fileClient)
	require.NoError(t, again.LoadDeviceInfo())
	assert.Equal(t, id, again.GetDeviceID())
	assert.Equal(t, id, again.GetDeviceIdentity().ID)
}

func TestLoadDeviceInfo_KeepsExistingIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"device_id":"tracker-7","device_name":"van"}`), 0o600))

	d := NewDeviceInfo(path, file.NewFileService())
	require.NoError(t, d.LoadDeviceInfo())

	assert.Equal(t, "tracker-7", d.GetDeviceID())
	assert.Equal(t, "van", d.GetDeviceIdentity().Name)
}

func TestLoadDeviceInfo_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	d := NewDeviceInfo(path, file.NewFileService())
	err := d.LoadDeviceInfo()
	assert.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrNotExist))
}
