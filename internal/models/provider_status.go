package models

import (
	"time"

	"github.com/benmeehan/location-agent/internal/constants"
)

// ProviderStatus reports a change in the availability of a position source.
type ProviderStatus struct {
	DeviceID  string                  `json:"device_id"`
	Provider  string                  `json:"provider"`
	State     constants.ProviderState `json:"state"`
	Timestamp time.Time               `json:"timestamp"`
}
