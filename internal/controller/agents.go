package controller

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"example.com/bt-fleet/internal/agent"
	"example.com/bt-fleet/internal/db"
	"github.com/google/uuid"
)

type commandRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (req commandRequest) validate() error {
	switch req.Type {
	case "":
		return errors.New("command type required")
	case agent.CommandPause, agent.CommandResume, agent.CommandReset:
		return nil
	case agent.CommandConfigure, agent.CommandSetRate:
		if len(req.Data) == 0 {
			return fmt.Errorf("%s requires data", req.Type)
		}
		return nil
	default:
		return fmt.Errorf("unknown command type %q", req.Type)
	}
}

func (c *Controller) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := c.DB.ListAgents(r.Context())
	if err != nil {
		log.Printf("list agents: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	respondJSON(w, http.StatusOK, agents)
}

// lookupAgent fetches the agent by row id, writing the error response when
// it cannot.
func (c *Controller) lookupAgent(w http.ResponseWriter, r *http.Request, id int64) (db.Agent, bool) {
	a, err := c.DB.GetAgentByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "agent not found")
			return db.Agent{}, false
		}
		log.Printf("get agent %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to fetch agent")
		return db.Agent{}, false
	}
	return a, true
}

func (c *Controller) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDFromPath(r.URL.Path, "/api/agents/")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	a, ok := c.lookupAgent(w, r, id)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (c *Controller) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDFromPath(r.URL.Path, "/api/agents/")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	a, ok := c.lookupAgent(w, r, id)
	if !ok {
		return
	}
	if err := c.DB.DeleteAgent(r.Context(), a.AgentID); err != nil {
		log.Printf("delete agent: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to delete agent")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAgentTree returns the last tree snapshot the agent reported.
func (c *Controller) GetAgentTree(w http.ResponseWriter, r *http.Request) {
	id, err := parseAgentSubresource(r.URL.Path, "tree")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, ok := c.lookupAgent(w, r, id)
	if !ok {
		return
	}
	snap, err := c.DB.GetSnapshot(r.Context(), a.AgentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "no snapshot reported yet")
			return
		}
		log.Printf("get snapshot: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to fetch snapshot")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (c *Controller) AgentCommand(w http.ResponseWriter, r *http.Request) {
	id, err := parseAgentSubresource(r.URL.Path, "command")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, ok := c.lookupAgent(w, r, id)
	if !ok {
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid command payload")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := c.queueAgentCommand(r.Context(), a.AgentID, agent.Command{Type: req.Type, Data: req.Data})
	if err != nil {
		log.Printf("queue command: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to queue command")
		return
	}
	respondJSON(w, http.StatusCreated, job)
}

// BroadcastCommand sends one command to every agent. The job is completed
// by the first agent that reports it.
func (c *Controller) BroadcastCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid command payload")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := c.queueAgentCommand(r.Context(), "", agent.Command{Type: req.Type, Data: req.Data})
	if err != nil {
		log.Printf("queue broadcast: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to queue command")
		return
	}
	respondJSON(w, http.StatusCreated, job)
}

func (c *Controller) UpdateInstallConfig(w http.ResponseWriter, r *http.Request) {
	id, err := parseAgentSubresource(r.URL.Path, "install-config")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req installConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid install config")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, ok := c.lookupAgent(w, r, id)
	if !ok {
		return
	}
	if err := c.DB.UpdateAgentInstallConfig(r.Context(), a.AgentID, req.toInstallConfig()); err != nil {
		log.Printf("update install config: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to save install config")
		return
	}
	if a, ok = c.lookupAgent(w, r, id); ok {
		respondJSON(w, http.StatusOK, a)
	}
}

func (c *Controller) UpdateAgentNotes(w http.ResponseWriter, r *http.Request) {
	id, err := parseAgentSubresource(r.URL.Path, "notes")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	a, ok := c.lookupAgent(w, r, id)
	if !ok {
		return
	}
	if err := c.DB.UpdateAgentNotes(r.Context(), a.AgentID, req.Notes); err != nil {
		log.Printf("update notes: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to update notes")
		return
	}
	a.Notes = req.Notes
	respondJSON(w, http.StatusOK, a)
}

// queueAgentCommand records a job for cmd and publishes it. An empty target
// broadcasts to every agent.
func (c *Controller) queueAgentCommand(ctx context.Context, target string, cmd agent.Command) (db.Job, error) {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return db.Job{}, fmt.Errorf("marshal command: %w", err)
	}
	topic := agent.BroadcastTopic
	jobTarget := "all"
	if target != "" {
		topic = agent.CommandTopic(target)
		jobTarget = target
	}
	now := time.Now().UTC()
	job := db.Job{
		CommandID:   cmd.ID,
		Type:        cmd.Type,
		TargetAgent: jobTarget,
		PayloadJSON: string(payload),
		Status:      db.JobStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	jobID, err := c.DB.CreateJob(ctx, job)
	if err != nil {
		return db.Job{}, fmt.Errorf("create job: %w", err)
	}
	job.ID = jobID
	log.Printf("command %s (%s) queued for %s on %s", cmd.Type, cmd.ID, jobTarget, topic)
	c.MQTT.Publish(topic, payload)
	return job, nil
}
