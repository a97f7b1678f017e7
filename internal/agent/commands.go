package agent

import (
	"encoding/json"

	"example.com/bt-fleet/internal/miner"
)

// Command types understood by the agent.
const (
	CommandPause     = "pause"
	CommandResume    = "resume"
	CommandReset     = "reset"
	CommandConfigure = "configure"
	CommandSetRate   = "set_rate"
)

// Command represents a controller-issued instruction handled by an agent.
type Command struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ConfigureData replaces the workload parameters. A zero TickIntervalMS
// keeps the current rate.
type ConfigureData struct {
	Miner          miner.Params `json:"miner"`
	TickIntervalMS int          `json:"tick_interval_ms,omitempty"`
}

// SetRateData changes the tick interval.
type SetRateData struct {
	TickIntervalMS int `json:"tick_interval_ms"`
}

// CommandTopic is the topic an agent receives its own commands on.
func CommandTopic(agentID string) string {
	return "lab/commands/" + agentID
}

// BroadcastTopic reaches every agent.
const BroadcastTopic = "lab/commands/all"

// StatusTopic is the retained topic an agent reports heartbeats on.
func StatusTopic(agentID string) string {
	return "lab/status/" + agentID
}
