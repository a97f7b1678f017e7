package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"example.com/bt-fleet/internal/agent"
	"example.com/bt-fleet/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestHeartbeat_RecordsAgentAndSnapshot(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	a := ingestAgent(t, c, "m1")

	assert.Equal(t, "m1", a.AgentID)
	assert.Equal(t, "Miner One", a.Name)
	assert.Equal(t, "10.0.0.5", a.IP)
	assert.Equal(t, "ok", a.Status)
	assert.Equal(t, uint64(7), a.Ticks)
	assert.Equal(t, "RUNNING", a.RootStatus)
	assert.Equal(t, int64(500), a.TickIntervalMS)

	snap, err := c.DB.GetSnapshot(context.Background(), "m1")
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"miner","status":"RUNNING"}`, string(snap.TreeJSON))
	require.JSONEq(t, `{"bank":2}`, string(snap.StatsJSON))
}

func TestIngestHeartbeat_Errors(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	_, err := c.IngestHeartbeat(context.Background(), "", []byte(`{}`))
	require.Error(t, err)
	_, err = c.IngestHeartbeat(context.Background(), "m1", []byte(`not json`))
	require.Error(t, err)
	_, err = c.IngestHeartbeat(context.Background(), "m1", []byte(`{"root_status":"SLEEPY"}`))
	require.Error(t, err)
}

func TestIngestHeartbeat_CompletesJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, _ := newTestController(t)
	a := ingestAgent(t, c, "m1")

	rec := do(t, c.AgentCommand, http.MethodPost, fmt.Sprintf("/api/agents/%d/command", a.ID), commandRequest{Type: agent.CommandPause})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	job := decode[db.Job](t, rec)
	require.Equal(t, db.JobStatusQueued, job.Status)

	hb := sampleHeartbeat(8)
	hb.JobID = job.CommandID
	hb.JobStatus = string(agent.JobStatusFailed)
	hb.JobError = "already paused"
	_, err := c.IngestHeartbeat(ctx, "m1", heartbeatPayload(t, hb))
	require.NoError(t, err)

	stored, err := c.DB.GetJobByCommandID(ctx, job.CommandID)
	require.NoError(t, err)
	require.Equal(t, db.JobStatusFailed, stored.Status)
	require.Equal(t, "already paused", stored.Error)

	// A replayed heartbeat claiming success leaves the finished job alone.
	hb.JobStatus = string(agent.JobStatusSuccess)
	hb.JobError = ""
	_, err = c.IngestHeartbeat(ctx, "m1", heartbeatPayload(t, hb))
	require.NoError(t, err)
	stored, err = c.DB.GetJobByCommandID(ctx, job.CommandID)
	require.NoError(t, err)
	require.Equal(t, db.JobStatusFailed, stored.Status)
}

func TestListAndGetAgent(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	a := ingestAgent(t, c, "m1")
	ingestAgent(t, c, "m2")

	rec := do(t, c.ListAgents, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]db.Agent](t, rec), 2)

	rec = do(t, c.GetAgent, http.MethodGet, fmt.Sprintf("/api/agents/%d", a.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "m1", decode[db.Agent](t, rec).AgentID)

	rec = do(t, c.GetAgent, http.MethodGet, "/api/agents/999", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, c.GetAgent, http.MethodGet, "/api/agents/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAgent(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	a := ingestAgent(t, c, "m1")

	rec := do(t, c.DeleteAgent, http.MethodDelete, fmt.Sprintf("/api/agents/%d", a.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, c.GetAgent, http.MethodGet, fmt.Sprintf("/api/agents/%d", a.ID), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAgentTree(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, _ := newTestController(t)
	require.NoError(t, c.DB.EnsureAgent(ctx, "quiet", ""))
	quiet, err := c.DB.GetAgentByAgentID(ctx, "quiet")
	require.NoError(t, err)

	rec := do(t, c.GetAgentTree, http.MethodGet, fmt.Sprintf("/api/agents/%d/tree", quiet.ID), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	a := ingestAgent(t, c, "m1")
	rec = do(t, c.GetAgentTree, http.MethodGet, fmt.Sprintf("/api/agents/%d/tree", a.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[db.Snapshot](t, rec)
	require.Equal(t, "m1", snap.AgentID)
	require.JSONEq(t, `{"name":"miner","status":"RUNNING"}`, string(snap.TreeJSON))
}

func TestAgentCommand_Publishes(t *testing.T) {
	t.Parallel()

	c, pub := newTestController(t)
	a := ingestAgent(t, c, "m1")

	body := commandRequest{Type: agent.CommandSetRate, Data: json.RawMessage(`{"tick_interval_ms":100}`)}
	rec := do(t, c.AgentCommand, http.MethodPost, fmt.Sprintf("/api/agents/%d/command", a.ID), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	job := decode[db.Job](t, rec)
	require.NotEmpty(t, job.CommandID)
	require.Equal(t, "m1", job.TargetAgent)
	require.Equal(t, agent.CommandSetRate, job.Type)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "lab/commands/m1", msgs[0].Topic)
	cmd := pub.commands(t)[0]
	require.Equal(t, job.CommandID, cmd.ID)
	require.JSONEq(t, `{"tick_interval_ms":100}`, string(cmd.Data))
}

func TestAgentCommand_Rejects(t *testing.T) {
	t.Parallel()

	c, pub := newTestController(t)
	a := ingestAgent(t, c, "m1")
	path := fmt.Sprintf("/api/agents/%d/command", a.ID)

	for _, body := range []commandRequest{
		{},
		{Type: "dance"},
		{Type: agent.CommandConfigure},
	} {
		rec := do(t, c.AgentCommand, http.MethodPost, path, body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body.Type)
	}

	rec := do(t, c.AgentCommand, http.MethodPost, "/api/agents/999/command", commandRequest{Type: agent.CommandPause})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, pub.Messages())
}

func TestBroadcastCommand(t *testing.T) {
	t.Parallel()

	c, pub := newTestController(t)
	rec := do(t, c.BroadcastCommand, http.MethodPost, "/api/agents/command/broadcast", commandRequest{Type: agent.CommandReset})
	require.Equal(t, http.StatusCreated, rec.Code)
	job := decode[db.Job](t, rec)
	require.Equal(t, "all", job.TargetAgent)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, agent.BroadcastTopic, msgs[0].Topic)

	rec = do(t, c.ListJobs, http.MethodGet, "/api/jobs?agent=all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]db.Job](t, rec), 1)
}

func TestUpdateInstallConfigAndNotes(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	a := ingestAgent(t, c, "m1")

	rec := do(t, c.UpdateInstallConfig, http.MethodPut, fmt.Sprintf("/api/agents/%d/install-config", a.ID), installConfigRequest{
		Address: "10.0.0.5",
		User:    "pi",
		SSHKey:  "not a key",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, c.UpdateInstallConfig, http.MethodPut, fmt.Sprintf("/api/agents/%d/install-config", a.ID), installConfigRequest{
		Address: " 10.0.0.5 ",
		User:    "pi",
		SSHKey:  testPrivateKey(t),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[db.Agent](t, rec)
	require.NotNil(t, updated.InstallConfig)
	require.Equal(t, "10.0.0.5", updated.InstallConfig.Address)

	rec = do(t, c.UpdateAgentNotes, http.MethodPut, fmt.Sprintf("/api/agents/%d/notes", a.ID), map[string]string{"notes": "bench 3"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "bench 3", decode[db.Agent](t, rec).Notes)
}

func TestListJobs_FiltersByAgent(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	m1 := ingestAgent(t, c, "m1")
	m2 := ingestAgent(t, c, "m2")
	for _, id := range []int64{m1.ID, m1.ID, m2.ID} {
		rec := do(t, c.AgentCommand, http.MethodPost, fmt.Sprintf("/api/agents/%d/command", id), commandRequest{Type: agent.CommandPause})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, c.ListJobs, http.MethodGet, "/api/jobs?agent=m1", nil)
	jobs := decode[[]db.Job](t, rec)
	require.Len(t, jobs, 2)

	rec = do(t, c.ListJobs, http.MethodGet, "/api/jobs", nil)
	require.Len(t, decode[[]db.Job](t, rec), 3)

	rec = do(t, c.GetJob, http.MethodGet, "/api/jobs/"+jobs[0].CommandID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, jobs[0].ID, decode[db.Job](t, rec).ID)

	rec = do(t, c.GetJob, http.MethodGet, "/api/jobs/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
