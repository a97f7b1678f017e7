package controller

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"example.com/bt-fleet/internal/agent"
	"example.com/bt-fleet/internal/db"
	"example.com/bt-fleet/internal/miner"
	sshc "example.com/bt-fleet/internal/ssh"
)

type installAgentRequest struct {
	AgentID        string        `json:"agent_id"`
	Name           string        `json:"name"`
	Address        string        `json:"address"`
	User           string        `json:"user"`
	SSHKey         string        `json:"ssh_key"`
	Sudo           bool          `json:"sudo"`
	SudoPwd        string        `json:"sudo_password"`
	TickIntervalMS int           `json:"tick_interval_ms"`
	Scenario       *miner.Params `json:"scenario,omitempty"`
}

func (req installAgentRequest) validate() error {
	if req.AgentID == "" {
		return errors.New("agent_id required")
	}
	return installConfigRequest{Address: req.Address, User: req.User, SSHKey: req.SSHKey}.validate()
}

// agentConfig builds the config file written to the host.
func (req installAgentRequest) agentConfig() agent.Config {
	cfg := agent.Config{
		AgentID:    req.AgentID,
		Name:       req.Name,
		MQTTBroker: agentBrokerURL(),
	}
	if req.TickIntervalMS > 0 {
		cfg.TickInterval = time.Duration(req.TickIntervalMS) * time.Millisecond
	}
	if req.Scenario != nil {
		cfg.Scenario = *req.Scenario
	}
	return cfg.WithDefaults()
}

func (c *Controller) InstallAgent(w http.ResponseWriter, r *http.Request) {
	var req installAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg := req.agentConfig()
	if err := cfg.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	host, err := hostSpec(db.InstallConfig{Address: req.Address, User: req.User, SSHKey: req.SSHKey}, req.Sudo, req.SudoPwd)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	binary, err := c.agentBinary(host)
	if err != nil {
		log.Printf("install agent: read binary: %v", err)
		respondError(w, http.StatusInternalServerError, "agent binary unavailable")
		return
	}
	if err := c.install(host, cfg, binary); err != nil {
		log.Printf("install agent: ssh failure: %v", err)
		respondError(w, http.StatusInternalServerError, installErrorMessage(err))
		return
	}
	if err := c.DB.EnsureAgent(r.Context(), cfg.AgentID, cfg.Name); err != nil {
		log.Printf("install agent: ensure agent: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to register agent")
		return
	}
	if err := c.DB.UpdateAgentInstallConfig(r.Context(), cfg.AgentID, db.InstallConfig{
		Address: req.Address,
		User:    req.User,
		SSHKey:  req.SSHKey,
	}); err != nil {
		log.Printf("install agent: persist install config: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to save install settings")
		return
	}
	a, err := c.DB.GetAgentByAgentID(r.Context(), cfg.AgentID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("install agent: fetch agent: %v", err)
		}
		respondError(w, http.StatusInternalServerError, "failed to fetch agent")
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

// agentBinary loads the agent build for host. With AGENT_BINARY_DIR set the
// host's architecture picks bt-agent-linux-<arch> from that directory;
// otherwise AGENT_BINARY_PATH names a single build.
func (c *Controller) agentBinary(host sshc.HostSpec) ([]byte, error) {
	if dir := os.Getenv("AGENT_BINARY_DIR"); dir != "" {
		arch, err := c.detectArch(host)
		if err != nil {
			return nil, fmt.Errorf("detect arch: %w", err)
		}
		return os.ReadFile(filepath.Join(dir, "bt-agent-linux-"+arch))
	}
	binaryPath := os.Getenv("AGENT_BINARY_PATH")
	if binaryPath == "" {
		binaryPath = "/app/bt-agent"
	}
	return os.ReadFile(binaryPath)
}

// hostSpec turns stored SSH settings into a dial target. Non-root users go
// through sudo.
func hostSpec(ic db.InstallConfig, sudo bool, sudoPwd string) (sshc.HostSpec, error) {
	addr := ic.Address
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}
	if sudoPwd == "" {
		sudoPwd = os.Getenv("AGENT_SUDO_PASSWORD")
	}
	useSudo := sudo || strings.ToLower(ic.User) != "root"
	if useSudo && sudoPwd == "" {
		return sshc.HostSpec{}, errors.New("sudo password required")
	}
	return sshc.HostSpec{
		Addr:         addr,
		User:         ic.User,
		PrivateKey:   []byte(ic.SSHKey),
		UseSudo:      useSudo,
		SudoPassword: sudoPwd,
	}, nil
}

func installErrorMessage(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no route to host") || strings.Contains(msg, "i/o timeout") {
		return "Connection failed. Please check the host is reachable."
	}
	return "failed to install agent"
}

func agentBrokerURL() string {
	if v := os.Getenv("AGENT_MQTT_BROKER"); v != "" {
		return v
	}
	if v := os.Getenv("MQTT_PUBLIC_BROKER"); v != "" {
		return v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" && !strings.Contains(v, "tcp://mqtt") {
		return v
	}
	return "tcp://localhost:1883"
}
