package lavago

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FleetConfig is the on-disk shape of a multi-node bootstrap file, loaded
// once at startup to avoid hand-wiring AddNode calls per deployment.
type FleetConfig struct {
	Nodes []FleetNodeConfig `yaml:"nodes"`
}

// FleetNodeConfig is one node entry. Zero-valued fields fall back to
// NewConfig's defaults.
type FleetNodeConfig struct {
	Name               string        `yaml:"name"`
	Authorization      string        `yaml:"authorization"`
	Hostname           string        `yaml:"hostname"`
	Port               int           `yaml:"port"`
	SSL                bool          `yaml:"ssl"`
	UserAgent          string        `yaml:"user_agent"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	RetryRESTOnFailure *bool         `yaml:"retry_rest_on_failure"`
	RESTAttempts       int           `yaml:"rest_attempts"`
	KeepAliveInterval  time.Duration `yaml:"keep_alive_interval"`
	BufferSize         int           `yaml:"buffer_size"`
}

func (n FleetNodeConfig) toConfig() Config {
	cfg := NewConfig()
	if n.Authorization != "" {
		cfg.Authorization = n.Authorization
	}
	if n.Hostname != "" {
		cfg.Hostname = n.Hostname
	}
	if n.Port != 0 {
		cfg.Port = n.Port
	}
	cfg.SSL = n.SSL
	if n.UserAgent != "" {
		cfg.UserAgent = n.UserAgent
	}
	if n.ReconnectBaseDelay != 0 {
		cfg.ReconnectBaseDelay = n.ReconnectBaseDelay
	}
	if n.RetryRESTOnFailure != nil {
		cfg.RetryRESTOnFailure = *n.RetryRESTOnFailure
	}
	if n.RESTAttempts != 0 {
		cfg.RESTAttempts = n.RESTAttempts
	}
	if n.KeepAliveInterval != 0 {
		cfg.KeepAliveInterval = n.KeepAliveInterval
	}
	if n.BufferSize != 0 {
		cfg.BufferSize = n.BufferSize
	}
	return cfg
}

// LoadFleetConfig reads and parses a YAML fleet file from path.
func LoadFleetConfig(path string) (*FleetConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lavago: open fleet config: %w", err)
	}
	defer f.Close()
	return LoadFleetConfigFromReader(f)
}

// LoadFleetConfigFromReader parses a YAML fleet document from r.
func LoadFleetConfigFromReader(r io.Reader) (*FleetConfig, error) {
	var fc FleetConfig
	if err := yaml.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("lavago: decode fleet config: %w", err)
	}
	return &fc, nil
}
