package controller

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"example.com/bt-fleet/internal/agent"
	"example.com/bt-fleet/internal/scenario"
)

// rolloutRequest drives a batch across agents: optionally reinstall the
// agent, reset its workload, then apply a stored scenario.
type rolloutRequest struct {
	AgentIDs   []int64 `json:"agent_ids"`
	Reinstall  bool    `json:"reinstall"`
	Reset      bool    `json:"reset"`
	ScenarioID int64   `json:"scenario_id"`
}

// RolloutStatus is the progress of the current or last batch.
type RolloutStatus struct {
	Active    bool             `json:"active"`
	Total     int              `json:"total"`
	Completed int              `json:"completed"`
	Agents    map[int64]string `json:"agents"`
	Errors    map[int64]string `json:"errors"`
}

type rolloutStatus struct {
	sync.RWMutex
	RolloutStatus

	reconnectTimeout time.Duration
	pollEvery        time.Duration
}

func newRolloutStatus() *rolloutStatus {
	return &rolloutStatus{
		RolloutStatus: RolloutStatus{
			Agents: make(map[int64]string),
			Errors: make(map[int64]string),
		},
		reconnectTimeout: time.Minute,
		pollEvery:        time.Second,
	}
}

func (s *rolloutStatus) snapshot() RolloutStatus {
	s.RLock()
	defer s.RUnlock()
	out := s.RolloutStatus
	out.Agents = make(map[int64]string, len(s.Agents))
	out.Errors = make(map[int64]string, len(s.Errors))
	for k, v := range s.Agents {
		out.Agents[k] = v
	}
	for k, v := range s.Errors {
		out.Errors[k] = v
	}
	return out
}

func (s *rolloutStatus) set(id int64, state string) {
	s.Lock()
	s.Agents[id] = state
	s.Unlock()
}

func (s *rolloutStatus) fail(id int64, msg string) {
	s.Lock()
	s.Errors[id] = msg
	s.Agents[id] = "error"
	s.Completed++
	s.Unlock()
}

func (s *rolloutStatus) done(id int64) {
	s.Lock()
	s.Agents[id] = "success"
	s.Completed++
	s.Unlock()
}

func (c *Controller) GetRolloutStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, c.rollout.snapshot())
}

func (c *Controller) StartRollout(w http.ResponseWriter, r *http.Request) {
	var req rolloutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(req.AgentIDs) == 0 {
		respondError(w, http.StatusBadRequest, "agent_ids required")
		return
	}
	if !req.Reinstall && !req.Reset && req.ScenarioID == 0 {
		respondError(w, http.StatusBadRequest, "nothing to roll out")
		return
	}
	var spec *scenario.Spec
	if req.ScenarioID != 0 {
		s, err := c.DB.GetScenarioByID(r.Context(), req.ScenarioID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				respondError(w, http.StatusNotFound, "scenario not found")
				return
			}
			log.Printf("rollout scenario fetch: %v", err)
			respondError(w, http.StatusInternalServerError, "failed to load scenario")
			return
		}
		parsed, err := scenario.Parse(s.ConfigYAML)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid scenario config: %v", err))
			return
		}
		spec = &parsed
	}
	c.rollout.Lock()
	if c.rollout.Active {
		c.rollout.Unlock()
		respondError(w, http.StatusConflict, "rollout already in progress")
		return
	}
	c.rollout.Active = true
	c.rollout.Total = len(req.AgentIDs)
	c.rollout.Completed = 0
	c.rollout.Agents = make(map[int64]string)
	c.rollout.Errors = make(map[int64]string)
	for _, id := range req.AgentIDs {
		c.rollout.Agents[id] = "pending"
	}
	c.rollout.Unlock()

	go c.processRollout(req, spec)

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (c *Controller) processRollout(req rolloutRequest, spec *scenario.Spec) {
	defer func() {
		c.rollout.Lock()
		c.rollout.Active = false
		c.rollout.Unlock()
	}()

	ctx := context.Background()
	log.Printf("starting rollout for %d agents", len(req.AgentIDs))

	var wg sync.WaitGroup
	for _, id := range req.AgentIDs {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := c.rolloutAgent(ctx, id, req, spec); err != nil {
				log.Printf("rollout: agent %d: %v", id, err)
				c.rollout.fail(id, err.Error())
				return
			}
			c.rollout.done(id)
		}(id)
	}
	wg.Wait()
	log.Printf("rollout complete")
}

func (c *Controller) rolloutAgent(ctx context.Context, id int64, req rolloutRequest, spec *scenario.Spec) error {
	c.rollout.set(id, "processing")
	a, err := c.DB.GetAgentByID(ctx, id)
	if err != nil {
		return errors.New("agent not found")
	}

	if req.Reinstall {
		if a.InstallConfig == nil {
			return errors.New("missing install config")
		}
		host, err := hostSpec(*a.InstallConfig, false, "")
		if err != nil {
			return err
		}
		binary, err := c.agentBinary(host)
		if err != nil {
			return fmt.Errorf("agent binary unavailable: %w", err)
		}
		cfg := agent.Config{AgentID: a.AgentID, Name: a.Name, MQTTBroker: agentBrokerURL()}.WithDefaults()
		c.rollout.set(id, "installing_agent")
		installStart := time.Now()
		if err := c.install(host, cfg, binary); err != nil {
			return fmt.Errorf("install failed: %w", err)
		}
		if req.Reset || spec != nil {
			c.rollout.set(id, "waiting_for_connection")
			if !c.waitForHeartbeat(ctx, id, installStart) {
				return errors.New("reconnect timeout")
			}
		}
	}

	if req.Reset {
		c.rollout.set(id, "resetting")
		if _, err := c.queueAgentCommand(ctx, a.AgentID, agent.Command{Type: agent.CommandReset}); err != nil {
			return errors.New("failed to queue reset")
		}
	}

	if spec != nil {
		c.rollout.set(id, "applying_scenario")
		if _, err := c.applySpec(ctx, a.AgentID, req.ScenarioID, *spec); err != nil {
			return errors.New("failed to apply scenario")
		}
	}
	return nil
}

// waitForHeartbeat polls until the agent reports after since.
func (c *Controller) waitForHeartbeat(ctx context.Context, id int64, since time.Time) bool {
	deadline := time.Now().Add(c.rollout.reconnectTimeout)
	for time.Now().Before(deadline) {
		updated, err := c.DB.GetAgentByID(ctx, id)
		if err == nil && updated.LastSeen.After(since) {
			return true
		}
		time.Sleep(c.rollout.pollEvery)
	}
	return false
}

