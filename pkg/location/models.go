package location

import "time"

// ProviderID identifies the source that produced a sample.
type ProviderID string

// Known providers, from the most to the least precise.
const (
	GPS     ProviderID = "gps"
	NETWORK ProviderID = "network"
	PASSIVE ProviderID = "passive"
	CACHE   ProviderID = "cache"
)

// DefaultPriority is the order in which providers are fused.
var DefaultPriority = []ProviderID{GPS, NETWORK, PASSIVE, CACHE}

// Sample is a single position report. Treat it as immutable once built.
type Sample struct {
	Provider  ProviderID
	Timestamp int64 // milliseconds since the epoch

	Latitude  float64
	Longitude float64
	Altitude  float64

	Accuracy    float64 // meters, smaller is better
	HasAccuracy bool
	Speed       float64 // meters per second
	HasSpeed    bool
	Bearing     float64 // degrees
	HasBearing  bool
}

// SampleOption sets an optional field on a new Sample.
type SampleOption func(*Sample)

// WithAccuracy sets the radius of uncertainty in meters.
func WithAccuracy(meters float64) SampleOption {
	return func(s *Sample) {
		s.Accuracy = meters
		s.HasAccuracy = true
	}
}

// WithSpeed sets the ground speed in meters per second.
func WithSpeed(mps float64) SampleOption {
	return func(s *Sample) {
		s.Speed = mps
		s.HasSpeed = true
	}
}

// WithAltitude sets the altitude in meters.
func WithAltitude(meters float64) SampleOption {
	return func(s *Sample) {
		s.Altitude = meters
	}
}

// WithBearing sets the course over ground in degrees.
func WithBearing(degrees float64) SampleOption {
	return func(s *Sample) {
		s.Bearing = degrees
		s.HasBearing = true
	}
}

// NewSample builds a Sample for the given provider.
func NewSample(provider ProviderID, timestamp int64, lat, lon float64, opts ...SampleOption) *Sample {
	s := &Sample{
		Provider:  provider,
		Timestamp: timestamp,
		Latitude:  lat,
		Longitude: lon,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Time returns the sample timestamp as a time.Time.
func (s *Sample) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// speedOrZero reports an absent speed as 0, which means unknown.
func (s *Sample) speedOrZero() float64 {
	if !s.HasSpeed {
		return 0
	}
	return s.Speed
}

// Fix is the JSON form of a Sample exchanged with other producers.
type Fix struct {
	Provider  string   `json:"provider"`
	Timestamp int64    `json:"timestamp"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  float64  `json:"altitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Bearing   *float64 `json:"bearing,omitempty"`
}

// ToFix converts the sample to its wire form.
func (s *Sample) ToFix() Fix {
	f := Fix{
		Provider:  string(s.Provider),
		Timestamp: s.Timestamp,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Altitude:  s.Altitude,
	}
	if s.HasAccuracy {
		acc := s.Accuracy
		f.Accuracy = &acc
	}
	if s.HasSpeed {
		speed := s.Speed
		f.Speed = &speed
	}
	if s.HasBearing {
		bearing := s.Bearing
		f.Bearing = &bearing
	}
	return f
}

// Sample converts a wire fix back into a Sample. An empty provider
// falls back to the given default.
func (f Fix) Sample(fallback ProviderID) *Sample {
	provider := ProviderID(f.Provider)
	if provider == "" {
		provider = fallback
	}
	s := NewSample(provider, f.Timestamp, f.Latitude, f.Longitude, WithAltitude(f.Altitude))
	if f.Accuracy != nil {
		WithAccuracy(*f.Accuracy)(s)
	}
	if f.Speed != nil {
		WithSpeed(*f.Speed)(s)
	}
	if f.Bearing != nil {
		WithBearing(*f.Bearing)(s)
	}
	return s
}
