package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

func (e *Engine) mapCommandToAction(cmd Command) func() error {
	switch cmd.Type {
	case CommandPause:
		return e.handlePause
	case CommandResume:
		return e.handleResume
	case CommandReset:
		return e.handleReset
	case CommandConfigure:
		var payload ConfigureData
		if err := decodeData(cmd, &payload); err != nil {
			return func() error { return err }
		}
		return func() error { return e.handleConfigure(payload) }
	case CommandSetRate:
		var payload SetRateData
		if err := decodeData(cmd, &payload); err != nil {
			return func() error { return err }
		}
		return func() error { return e.handleSetRate(payload) }
	default:
		log.Printf("unknown command type: %s", cmd.Type)
		return func() error { return fmt.Errorf("unknown command type %q", cmd.Type) }
	}
}

func decodeData(cmd Command, v any) error {
	if len(cmd.Data) == 0 {
		return fmt.Errorf("%s requires data", cmd.Type)
	}
	if err := json.Unmarshal(cmd.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", cmd.Type, err)
	}
	return nil
}

func (e *Engine) handlePause() error {
	if e.paused {
		return errors.New("already paused")
	}
	e.paused = true
	log.Printf("[agent] paused at tick %d", e.ticks)
	return nil
}

func (e *Engine) handleResume() error {
	if !e.paused {
		return errors.New("not paused")
	}
	e.paused = false
	log.Printf("[agent] resumed at tick %d", e.ticks)
	return nil
}

// handleReset aborts the workload and starts over with a fresh miner.
func (e *Engine) handleReset() error {
	if e.workload.IsRunning() {
		e.workload.Abort()
	}
	e.rebuildWorkload()
	log.Printf("[agent] workload reset (pocket=%d balance=%d thirst=%d)",
		e.params.PocketSize, e.params.MinimumBalance, e.params.ThirstThreshold)
	return nil
}

func (e *Engine) handleConfigure(data ConfigureData) error {
	params := data.Miner.WithDefaults()
	if err := params.Validate(); err != nil {
		return err
	}
	if data.TickIntervalMS != 0 {
		if err := e.handleSetRate(SetRateData{TickIntervalMS: data.TickIntervalMS}); err != nil {
			return err
		}
	}
	e.params = params
	return e.handleReset()
}

func (e *Engine) handleSetRate(data SetRateData) error {
	d := time.Duration(data.TickIntervalMS) * time.Millisecond
	if d < MinTickInterval {
		return fmt.Errorf("tick interval %s is below the minimum %s", d, MinTickInterval)
	}
	e.interval = d
	log.Printf("[agent] tick interval set to %s", d)
	return nil
}
