package controller

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
)

// ListJobs lists queued and finished commands, optionally for one agent
// (?agent=<agent_id>). Broadcast jobs are listed under "all".
func (c *Controller) ListJobs(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("agent")
	jobs, err := c.DB.ListJobs(r.Context(), target)
	if err != nil {
		log.Printf("list jobs: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	respondJSON(w, http.StatusOK, jobs)
}

// GetJob looks a job up by the command id sent to the agent.
func (c *Controller) GetJob(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/jobs/"
	if len(r.URL.Path) <= len(prefix) {
		respondError(w, http.StatusBadRequest, "missing command id")
		return
	}
	job, err := c.DB.GetJobByCommandID(r.Context(), r.URL.Path[len(prefix):])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "job not found")
			return
		}
		log.Printf("get job: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	respondJSON(w, http.StatusOK, job)
}
