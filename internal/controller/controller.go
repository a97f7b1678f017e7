package controller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"example.com/bt-fleet/internal/agent"
	"example.com/bt-fleet/internal/db"
	"example.com/bt-fleet/internal/scan"
	sshc "example.com/bt-fleet/internal/ssh"
)

// Publisher sends commands to agents. *mqttc.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// Controller holds shared dependencies for HTTP handlers.
type Controller struct {
	DB      *db.DB
	MQTT    Publisher
	Streams *StreamHub
	Scanner *scan.Scanner

	// install and detectArch reach hosts over SSH; tests replace them.
	install    func(sshc.HostSpec, agent.Config, []byte) error
	detectArch func(sshc.HostSpec) (string, error)
	rollout    *rolloutStatus
}

func New(dbConn *db.DB, publisher Publisher) *Controller {
	return &Controller{
		DB:         dbConn,
		MQTT:       publisher,
		Streams:    NewStreamHub(),
		Scanner:    scan.NewScanner(),
		install:    sshc.InstallAgent,
		detectArch: sshc.DetectArch,
		rollout:    newRolloutStatus(),
	}
}

func (c *Controller) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func parseIDFromPath(path, prefix string) (int64, error) {
	if !strings.HasPrefix(path, prefix) {
		return 0, fmt.Errorf("invalid path")
	}
	tail := strings.TrimPrefix(path, prefix)
	tail = strings.Trim(tail, "/")
	if tail == "" {
		return 0, fmt.Errorf("missing id")
	}
	id, err := strconv.ParseInt(tail, 10, 64)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// parseSubresourceID extracts the id from prefix/{id}/suffix.
func parseSubresourceID(path, prefix, suffix string) (int64, error) {
	trimmed := strings.TrimSuffix(path, "/")
	if !strings.HasPrefix(trimmed, prefix) || !strings.HasSuffix(trimmed, "/"+suffix) {
		return 0, fmt.Errorf("invalid %s path", suffix)
	}
	trimmed = strings.TrimSuffix(trimmed, "/"+suffix)
	trimmed = strings.TrimPrefix(trimmed, prefix)
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return 0, fmt.Errorf("missing id")
	}
	return strconv.ParseInt(trimmed, 10, 64)
}

func parseAgentSubresource(path, suffix string) (int64, error) {
	return parseSubresourceID(path, "/api/agents/", suffix)
}
