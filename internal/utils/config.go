package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/location-agent/pkg/file"
	"github.com/benmeehan/location-agent/pkg/location"
)

// Config represents the structure of the configuration file.
type Config struct {
	LogLevel string `yaml:"log_level"` // zerolog level name, defaults to info

	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID prefix
		CACertificate string `yaml:"ca_certificate"` // Optional path to the CA certificate
		Username      string `yaml:"username"`
		Password      string `yaml:"password"`
	} `yaml:"mqtt"`

	Identity struct {
		DeviceFile string `yaml:"device_file"` // Path to the device identity file
	} `yaml:"identity"`

	Location LocationConfig `yaml:"location"`

	Services struct {
		Location struct {
			Topic       string        `yaml:"topic"`        // MQTT topic for best location messages
			Enabled     bool          `yaml:"enabled"`      // Enable/disable location service
			QOS         int           `yaml:"qos"`          // MQTT QoS level for location messages
			Retained    bool          `yaml:"retained"`     // Keep the last best location on the broker
			BufferSize  int           `yaml:"buffer_size"`  // Queue length between sources and the engine
			ReadTimeout time.Duration `yaml:"read_timeout"` // Bound on reading last known fixes at start
		} `yaml:"location_service"`

		ProviderStatus struct {
			Topic    string        `yaml:"topic"`    // MQTT topic for provider status messages
			Enabled  bool          `yaml:"enabled"`  // Enable/disable provider status service
			Interval time.Duration `yaml:"interval"` // Interval between availability checks
			QOS      int           `yaml:"qos"`      // MQTT QoS level for status messages
		} `yaml:"provider_status_service"`
	} `yaml:"services"`

	HTTP struct {
		Enabled bool   `yaml:"enabled"` // Serve /metrics and /ws
		Listen  string `yaml:"listen"`  // Listen address, e.g. ":9100"
	} `yaml:"http"`
}

// LocationConfig holds the acceptance policy and the position sources.
type LocationConfig struct {
	DistanceThreshold  *float64      `yaml:"distance_threshold"`   // Meters between desired updates
	DefaultMaxInterval *float64      `yaml:"default_max_interval"` // Seconds a best fix is kept against worse ones
	MinInterval        time.Duration `yaml:"min_interval"`         // Minimum time between deliveries per source
	Priority           []string      `yaml:"priority"`             // Fusion order, defaults to gps, network, passive, cache

	GPS struct {
		Enabled      bool          `yaml:"enabled"`
		Port         string        `yaml:"port"`          // UNIX port where the GPS sensor is mounted
		BaudRate     int           `yaml:"baud_rate"`     // The baud rate for the GPS sensor
		UERE         float64       `yaml:"uere"`          // Meters per unit of HDOP
		FetchTimeout time.Duration `yaml:"fetch_timeout"` // Bound on a single fix
	} `yaml:"gps"`

	Network struct {
		Enabled      bool          `yaml:"enabled"`
		MapsAPIKey   string        `yaml:"maps_api_key"` // Google Maps API key
		ModemIndex   int           `yaml:"modem_index"`  // ModemManager index for cell towers
		ConsiderIP   bool          `yaml:"consider_ip"`
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
	} `yaml:"network"`

	Passive struct {
		Enabled bool   `yaml:"enabled"`
		Topic   string `yaml:"topic"` // MQTT topic other producers publish fixes to
		QOS     int    `yaml:"qos"`
	} `yaml:"passive"`

	Cache struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"` // bbolt database file
	} `yaml:"cache"`
}

// EngineConfig returns the acceptance policy, with defaults for absent
// values. Explicit values are passed through unchanged for validation.
func (l LocationConfig) EngineConfig(ticksPerSecond float64) location.Config {
	return location.Config{
		DistanceThreshold:  ValueOr(l.DistanceThreshold, location.DefaultDistanceThreshold),
		DefaultMaxInterval: ValueOr(l.DefaultMaxInterval, location.DefaultMaxInterval),
		TicksPerInterval:   ticksPerSecond,
	}
}

// EnabledProviders returns the enabled providers in fusion order.
func (l LocationConfig) EnabledProviders() []location.ProviderID {
	order := location.DefaultPriority
	if len(l.Priority) > 0 {
		order = make([]location.ProviderID, 0, len(l.Priority))
		for _, p := range l.Priority {
			order = append(order, location.ProviderID(p))
		}
	}

	enabled := SliceToSet(l.enabledSet())
	var providers []location.ProviderID
	for _, id := range order {
		if _, ok := enabled[id]; ok {
			providers = append(providers, id)
		}
	}
	return providers
}

func (l LocationConfig) enabledSet() []location.ProviderID {
	var ids []location.ProviderID
	if l.GPS.Enabled {
		ids = append(ids, location.GPS)
	}
	if l.Network.Enabled {
		ids = append(ids, location.NETWORK)
	}
	if l.Passive.Enabled {
		ids = append(ids, location.PASSIVE)
	}
	if l.Cache.Enabled {
		ids = append(ids, location.CACHE)
	}
	return ids
}

// Validate checks the settings the agent cannot run without.
func (c *Config) Validate() error {
	if err := c.Location.EngineConfig(1).Validate(); err != nil {
		return fmt.Errorf("invalid location settings: %w", err)
	}
	if c.Location.MinInterval < 0 {
		return errors.New("location min_interval cannot be negative")
	}

	known := SliceToSet(location.DefaultPriority)
	seen := make(map[string]struct{}, len(c.Location.Priority))
	for _, p := range c.Location.Priority {
		if _, ok := known[location.ProviderID(p)]; !ok {
			return fmt.Errorf("unknown provider in priority: %q", p)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("duplicate provider in priority: %q", p)
		}
		seen[p] = struct{}{}
	}

	if c.Services.Location.Enabled && len(c.Location.EnabledProviders()) == 0 {
		return errors.New("location service enabled without any enabled provider")
	}
	if c.Location.Network.Enabled && c.Location.Network.MapsAPIKey == "" {
		return errors.New("network provider requires maps_api_key")
	}
	if c.Location.GPS.Enabled && c.Location.GPS.Port == "" {
		return errors.New("gps provider requires port")
	}
	if c.Location.Passive.Enabled && c.Location.Passive.Topic == "" {
		return errors.New("passive provider requires topic")
	}
	if c.Location.Cache.Enabled && c.Location.Cache.Path == "" {
		return errors.New("cache provider requires path")
	}
	return nil
}

// LoadConfig loads the YAML configuration from the specified file and
// validates it.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
