package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"example.com/bt-fleet/internal/agent"
	"example.com/bt-fleet/internal/db"
)

// IngestHeartbeat records a heartbeat published by agentID: the agent row,
// its latest tree snapshot and the result of the last command it ran. The
// raw payload is then fanned out to stream subscribers.
func (c *Controller) IngestHeartbeat(ctx context.Context, agentID string, payload []byte) (agent.Heartbeat, error) {
	var hb agent.Heartbeat
	if agentID == "" {
		return hb, errors.New("agent id required")
	}
	if err := json.Unmarshal(payload, &hb); err != nil {
		return hb, fmt.Errorf("decode heartbeat: %w", err)
	}
	if err := c.DB.UpsertAgentStatus(ctx, db.AgentStatus{
		AgentID:        agentID,
		Name:           hb.Name,
		IP:             hb.IP,
		Status:         hb.Status,
		Paused:         hb.Paused,
		Ticks:          hb.Ticks,
		RootStatus:     hb.RootStatus.String(),
		TickIntervalMS: hb.TickIntervalMS,
	}); err != nil {
		return hb, fmt.Errorf("upsert agent status: %w", err)
	}
	if hb.Tree != nil {
		tree, err := json.Marshal(hb.Tree)
		if err != nil {
			return hb, fmt.Errorf("encode tree: %w", err)
		}
		stats, err := json.Marshal(hb.Stats)
		if err != nil {
			return hb, fmt.Errorf("encode stats: %w", err)
		}
		if err := c.DB.SaveSnapshot(ctx, db.Snapshot{AgentID: agentID, TreeJSON: tree, StatsJSON: stats}); err != nil {
			return hb, fmt.Errorf("save snapshot: %w", err)
		}
	}
	if hb.JobID != "" {
		if status, ok := finishedJobStatus(hb.JobStatus); ok {
			changed, err := c.DB.CompleteJob(ctx, hb.JobID, status, hb.JobError)
			if err != nil {
				return hb, fmt.Errorf("complete job: %w", err)
			}
			if changed {
				log.Printf("job %s reported %s by %s", hb.JobID, status, agentID)
			}
		}
	}
	if c.Streams != nil {
		c.Streams.Publish(agentID, payload)
	}
	return hb, nil
}

func finishedJobStatus(s string) (string, bool) {
	switch agent.JobStatus(s) {
	case agent.JobStatusSuccess:
		return db.JobStatusSuccess, true
	case agent.JobStatusFailed:
		return db.JobStatusFailed, true
	default:
		return "", false
	}
}
