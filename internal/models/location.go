package models

import (
	"time"

	"github.com/benmeehan/location-agent/internal/constants"
	"github.com/benmeehan/location-agent/pkg/location"
)

// Location is the best known position published by the agent.
type Location struct {
	DeviceID  string                  `json:"device_id"`
	Event     constants.LocationEvent `json:"event"`
	Provider  string                  `json:"provider"`
	Timestamp time.Time               `json:"timestamp"`
	Latitude  float64                 `json:"latitude"`
	Longitude float64                 `json:"longitude"`
	Altitude  float64                 `json:"altitude"`
	Accuracy  *float64                `json:"accuracy,omitempty"`
	Speed     *float64                `json:"speed,omitempty"`
	Bearing   *float64                `json:"bearing,omitempty"`
}

// NewLocation builds the published message for a sample.
func NewLocation(deviceID string, event constants.LocationEvent, s *location.Sample) Location {
	fix := s.ToFix()
	return Location{
		DeviceID:  deviceID,
		Event:     event,
		Provider:  fix.Provider,
		Timestamp: s.Time().UTC(),
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Altitude:  fix.Altitude,
		Accuracy:  fix.Accuracy,
		Speed:     fix.Speed,
		Bearing:   fix.Bearing,
	}
}
