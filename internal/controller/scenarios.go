package controller

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"example.com/bt-fleet/internal/db"
	"example.com/bt-fleet/internal/scenario"
	"github.com/google/uuid"
)

type scenarioRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ConfigYAML  string `json:"config_yaml"`
}

// parse checks the request and returns the row to store along with the
// parsed spec.
func (req scenarioRequest) parse(id int64) (db.Scenario, scenario.Spec, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return db.Scenario{}, scenario.Spec{}, errors.New("scenario name required")
	}
	spec, err := scenario.Parse(req.ConfigYAML)
	if err != nil {
		return db.Scenario{}, scenario.Spec{}, fmt.Errorf("invalid scenario config: %w", err)
	}
	return db.Scenario{ID: id, Name: name, Description: req.Description, ConfigYAML: req.ConfigYAML}, spec, nil
}

// scenarioView is a stored scenario plus the parameters agents will run
// with once defaults are filled in.
type scenarioView struct {
	db.Scenario
	Spec *scenario.Spec `json:"spec,omitempty"`
}

func viewScenario(s db.Scenario) scenarioView {
	v := scenarioView{Scenario: s}
	if spec, err := scenario.Parse(s.ConfigYAML); err == nil {
		v.Spec = &spec
	}
	return v
}

func (c *Controller) ListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := c.DB.ListScenarios(r.Context())
	if err != nil {
		log.Printf("list scenarios: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list scenarios")
		return
	}
	views := make([]scenarioView, 0, len(scenarios))
	for _, s := range scenarios {
		views = append(views, viewScenario(s))
	}
	respondJSON(w, http.StatusOK, views)
}

// lookupScenario resolves the id in the path, writing the error response
// when it cannot.
func (c *Controller) lookupScenario(w http.ResponseWriter, r *http.Request) (db.Scenario, bool) {
	id, err := parseIDFromPath(r.URL.Path, "/api/scenarios/")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid scenario id")
		return db.Scenario{}, false
	}
	s, err := c.DB.GetScenarioByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "scenario not found")
			return db.Scenario{}, false
		}
		log.Printf("get scenario %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to fetch scenario")
		return db.Scenario{}, false
	}
	return s, true
}

func (c *Controller) GetScenario(w http.ResponseWriter, r *http.Request) {
	s, ok := c.lookupScenario(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, viewScenario(s))
}

func (c *Controller) CreateScenario(w http.ResponseWriter, r *http.Request) {
	var req scenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid scenario payload")
		return
	}
	s, spec, err := req.parse(0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := c.DB.CreateScenario(r.Context(), s)
	if err != nil {
		log.Printf("create scenario: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to create scenario")
		return
	}
	s.ID = id
	respondJSON(w, http.StatusCreated, scenarioView{Scenario: s, Spec: &spec})
}

func (c *Controller) UpdateScenario(w http.ResponseWriter, r *http.Request) {
	existing, ok := c.lookupScenario(w, r)
	if !ok {
		return
	}
	var req scenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid scenario payload")
		return
	}
	s, spec, err := req.parse(existing.ID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := c.DB.UpdateScenario(r.Context(), s); err != nil {
		log.Printf("update scenario %d: %v", s.ID, err)
		respondError(w, http.StatusInternalServerError, "failed to update scenario")
		return
	}
	respondJSON(w, http.StatusOK, scenarioView{Scenario: s, Spec: &spec})
}

func (c *Controller) DeleteScenario(w http.ResponseWriter, r *http.Request) {
	s, ok := c.lookupScenario(w, r)
	if !ok {
		return
	}
	if err := c.DB.DeleteScenario(r.Context(), s.ID); err != nil {
		log.Printf("delete scenario %d: %v", s.ID, err)
		respondError(w, http.StatusInternalServerError, "failed to delete scenario")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type applyScenarioRequest struct {
	AgentIDs []int64 `json:"agent_ids"`
}

type applyScenarioResponse struct {
	Jobs []db.Job `json:"jobs"`
}

// ApplyScenario sends the scenario as a configure command to each listed
// agent. Agents are all resolved before anything is published.
func (c *Controller) ApplyScenario(w http.ResponseWriter, r *http.Request) {
	scenarioID, err := parseSubresourceID(r.URL.Path, "/api/scenarios/", "apply")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid scenario apply path")
		return
	}
	var req applyScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid apply payload")
		return
	}
	if len(req.AgentIDs) == 0 {
		respondError(w, http.StatusBadRequest, "agent_ids required")
		return
	}
	s, err := c.DB.GetScenarioByID(r.Context(), scenarioID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "scenario not found")
			return
		}
		log.Printf("apply scenario fetch: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load scenario")
		return
	}
	spec, err := scenario.Parse(s.ConfigYAML)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid scenario config: %v", err))
		return
	}
	var targets []db.Agent
	for _, id := range req.AgentIDs {
		a, err := c.DB.GetAgentByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				respondError(w, http.StatusNotFound, fmt.Sprintf("agent %d not found", id))
				return
			}
			log.Printf("apply scenario agent fetch: %v", err)
			respondError(w, http.StatusInternalServerError, "failed to fetch agent")
			return
		}
		targets = append(targets, a)
	}
	jobs := make([]db.Job, 0, len(targets))
	for _, a := range targets {
		job, err := c.applySpec(r.Context(), a.AgentID, s.ID, spec)
		if err != nil {
			log.Printf("apply scenario to %s: %v", a.AgentID, err)
			respondError(w, http.StatusInternalServerError, "failed to queue command")
			return
		}
		jobs = append(jobs, job)
	}
	respondJSON(w, http.StatusCreated, applyScenarioResponse{Jobs: jobs})
}

// applySpec queues the configure command and tags the agent with the
// scenario it was last given.
func (c *Controller) applySpec(ctx context.Context, agentID string, scenarioID int64, spec scenario.Spec) (db.Job, error) {
	cmd, err := spec.Command(uuid.NewString())
	if err != nil {
		return db.Job{}, fmt.Errorf("encode scenario command: %w", err)
	}
	job, err := c.queueAgentCommand(ctx, agentID, cmd)
	if err != nil {
		return db.Job{}, err
	}
	if err := c.DB.UpdateAgentScenario(ctx, agentID, scenarioID); err != nil {
		return job, fmt.Errorf("tag agent scenario: %w", err)
	}
	return job, nil
}
