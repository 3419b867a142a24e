package identity

import (
	"encoding/json"
	"os"

	"github.com/benmeehan/location-agent/pkg/file"
	"github.com/google/uuid"
)

// Identity holds the device's unique identifier and other metadata.
type Identity struct {
	ID       string          `json:"device_id,omitempty"`
	Name     string          `json:"device_name,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// DeviceInfoInterface defines methods for managing device identity.
type DeviceInfoInterface interface {
	LoadDeviceInfo() error
	GetDeviceID() string
	GetDeviceIdentity() *Identity
}

// DeviceInfo manages the device identity and its associated file operations.
type DeviceInfo struct {
	DeviceInfoFile string
	Identity       Identity
	fileOps        file.FileOperations
}

// NewDeviceInfo initializes a new DeviceInfo instance.
func NewDeviceInfo(filePath string, fileOps file.FileOperations) *DeviceInfo {
	return &DeviceInfo{
		DeviceInfoFile: filePath,
		fileOps:        fileOps,
	}
}

// LoadDeviceInfo reads the identity file. When the file or the id is
// missing, a new id is generated and written back.
func (d *DeviceInfo) LoadDeviceInfo() error {
	err := d.fileOps.ReadJsonFile(d.DeviceInfoFile, &d.Identity)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if d.Identity.ID != "" {
		return nil
	}

	d.Identity.ID = uuid.NewString()
	return d.fileOps.WriteJsonFile(d.DeviceInfoFile, d.Identity)
}

// GetDeviceIdentity returns the current device Identity.
func (d *DeviceInfo) GetDeviceIdentity() *Identity {
	return &d.Identity
}

// GetDeviceID returns the current device ID.
func (d *DeviceInfo) GetDeviceID() string {
	return d.Identity.ID
}
