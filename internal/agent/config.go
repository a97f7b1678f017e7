package agent

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"example.com/bt-fleet/internal/miner"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath        = "/etc/bt-agent/config.yaml"
	DefaultTickInterval      = 500 * time.Millisecond
	DefaultHeartbeatInterval = 2 * time.Second
	MinTickInterval          = 10 * time.Millisecond
)

// Config represents the agent's runtime configuration.
type Config struct {
	AgentID           string        `yaml:"agent_id"`
	Name              string        `yaml:"name"`
	MQTTBroker        string        `yaml:"mqtt_broker"`
	TickInterval      time.Duration `yaml:"tick_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	Scenario          miner.Params  `yaml:"scenario"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("config file %s not found", path)
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// WithDefaults fills unset fields with their defaults.
func (c Config) WithDefaults() Config {
	if c.Name == "" {
		c.Name = c.AgentID
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	c.Scenario = c.Scenario.WithDefaults()
	return c
}

// Validate reports every problem with the config at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AgentID) == "" {
		errs = append(errs, errors.New("agent_id is required"))
	}
	if strings.ContainsAny(c.AgentID, "/#+") {
		errs = append(errs, fmt.Errorf("agent_id %q must not contain MQTT topic characters", c.AgentID))
	}
	if c.TickInterval < MinTickInterval {
		errs = append(errs, fmt.Errorf("tick_interval must be at least %s", MinTickInterval))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("heartbeat_interval must be positive"))
	}
	if err := c.Scenario.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scenario: %w", err))
	}
	return errors.Join(errs...)
}
