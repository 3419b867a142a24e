package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

func TestFileService_JSONRoundTrip(t *testing.T) {
	fs := NewFileService()
	path := filepath.Join(t.TempDir(), "nested", "record.json")

	require.NoError(t, fs.WriteJsonFile(path, record{Name: "gps", Value: 4.5}))

	exists, err := fs.IsFileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	var got record
	require.NoError(t, fs.ReadJsonFile(path, &got))
	assert.Equal(t, record{Name: "gps", Value: 4.5}, got)
}

func TestFileService_ReadYamlFile(t *testing.T) {
	fs := NewFileService()
	path := filepath.Join(t.TempDir(), "record.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: network\nvalue: 12\n"), 0o600))

	var got record
	require.NoError(t, fs.ReadYamlFile(path, &got))
	assert.Equal(t, record{Name: "network", Value: 12}, got)

	raw, err := fs.ReadFileRaw(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "network")
}

func TestFileService_Missing(t *testing.T) {
	fs := NewFileService()
	path := filepath.Join(t.TempDir(), "missing.json")

	exists, err := fs.IsFileExists(path)
	assert.NoError(t, err)
	assert.False(t, exists)

	var got record
	assert.True(t, os.IsNotExist(fs.ReadJsonFile(path, &got)))
}
