package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"example.com/bt-fleet/internal/agent"
	"example.com/bt-fleet/internal/miner"
	"gopkg.in/yaml.v3"
)

// Spec describes declarative scenario instructions stored as YAML.
type Spec struct {
	Miner          miner.Params `yaml:"miner" json:"miner"`
	TickIntervalMS int          `yaml:"tick_interval_ms" json:"tick_interval_ms"`
}

// Parse converts the scenario config YAML into a Spec. Missing miner
// parameters take their defaults.
func Parse(raw string) (Spec, error) {
	var spec Spec
	if strings.TrimSpace(raw) == "" {
		return spec, errors.New("scenario config is empty")
	}
	if err := yaml.Unmarshal([]byte(raw), &spec); err != nil {
		return spec, fmt.Errorf("parse scenario config: %w", err)
	}
	spec.Miner = spec.Miner.WithDefaults()
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// Validate ensures the parameters are usable by an agent.
func (s Spec) Validate() error {
	var errs []error
	if err := s.Miner.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scenario miner: %w", err))
	}
	if s.TickIntervalMS < 0 {
		errs = append(errs, errors.New("scenario tick_interval_ms must not be negative"))
	} else if s.TickIntervalMS > 0 && s.TickIntervalMS < int(agent.MinTickInterval.Milliseconds()) {
		errs = append(errs, fmt.Errorf("scenario tick_interval_ms must be at least %d", agent.MinTickInterval.Milliseconds()))
	}
	return errors.Join(errs...)
}

// ToConfigure builds the payload sent to agents.
func (s Spec) ToConfigure() agent.ConfigureData {
	return agent.ConfigureData{
		Miner:          s.Miner,
		TickIntervalMS: s.TickIntervalMS,
	}
}

// Command wraps the configure payload in an agent command with the given id.
func (s Spec) Command(id string) (agent.Command, error) {
	data, err := json.Marshal(s.ToConfigure())
	if err != nil {
		return agent.Command{}, err
	}
	return agent.Command{ID: id, Type: agent.CommandConfigure, Data: data}, nil
}

// LoadFile reads and parses a scenario file.
func LoadFile(path string) (Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(string(raw))
}
