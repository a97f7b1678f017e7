package httpserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"

	"example.com/bt-fleet/internal/controller"
	"example.com/bt-fleet/internal/db"
	mqttc "example.com/bt-fleet/internal/mqtt"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const statusTopic = "lab/status/#"

type Server struct {
	DB         *db.DB
	MQTT       *mqttc.Client
	Controller *controller.Controller
	Events     *SSEBroker
}

func NewServer(dbPath string) (*Server, error) {
	dbConn, err := db.Open(dbPath)
	if err != nil {
		return nil, err
	}
	s := &Server{DB: dbConn, Events: NewSSEBroker()}
	s.Controller = controller.New(dbConn, nil)
	// Subscribing in the connect handler restores the status feed after a
	// broker restart.
	s.MQTT = mqttc.NewClientWithHandler("controller", "", func(c mqtt.Client) {
		log.Printf("controller subscribing to %s", statusTopic)
		if token := c.Subscribe(statusTopic, 0, s.onStatus); token.Wait() && token.Error() != nil {
			log.Printf("status subscribe: %v", token.Error())
		}
	})
	s.Controller.MQTT = s.MQTT
	return s, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/install-agent", s.handleInstallAgent)
	mux.HandleFunc("/api/agents", s.handleListAgents)
	mux.HandleFunc("/api/agents/command/broadcast", s.handleAgentCommandBroadcast)
	mux.HandleFunc("/api/agents/", s.handleAgentSubroutes)
	mux.HandleFunc("/api/scenarios", s.handleScenariosCollection)
	mux.HandleFunc("/api/scenarios/", s.handleScenarioItem)
	mux.HandleFunc("/api/jobs", s.handleListJobs)
	mux.HandleFunc("/api/jobs/", s.handleGetJob)
	mux.HandleFunc("/api/rollout", s.handleRollout)
	mux.HandleFunc("/api/scan", s.handleScan)
	mux.HandleFunc("/api/settings/install-defaults", s.handleInstallDefaults)
	mux.Handle("/api/events", s.Events)

	webRoot := os.Getenv("WEB_ROOT")
	if webRoot == "" {
		webRoot = "./web/dist"
	}
	mux.Handle("/", http.FileServer(http.Dir(webRoot)))
	return mux
}

func (s *Server) Start() error {
	addr := ":8080"
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		addr = v
	}
	log.Printf("controller listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// Close releases the broker connection and the database.
func (s *Server) Close() error {
	s.MQTT.Close()
	return s.DB.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	s.Controller.Health(w, r)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	s.Controller.ListAgents(w, r)
}

func (s *Server) handleAgentSubroutes(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimSuffix(r.URL.Path, "/")
	var (
		method  string
		handler http.HandlerFunc
	)
	switch {
	case strings.HasSuffix(trimmed, "/command"):
		method, handler = http.MethodPost, s.Controller.AgentCommand
	case strings.HasSuffix(trimmed, "/tree"):
		method, handler = http.MethodGet, s.Controller.GetAgentTree
	case strings.HasSuffix(trimmed, "/stream"):
		method, handler = http.MethodGet, s.Controller.HandleStream
	case strings.HasSuffix(trimmed, "/install-config"):
		method, handler = http.MethodPut, s.Controller.UpdateInstallConfig
	case strings.HasSuffix(trimmed, "/notes"):
		method, handler = http.MethodPut, s.Controller.UpdateAgentNotes
	default:
		switch r.Method {
		case http.MethodGet:
			s.Controller.GetAgent(w, r)
		case http.MethodDelete:
			s.Controller.DeleteAgent(w, r)
		default:
			methodNotAllowed(w)
		}
		return
	}
	if r.Method != method {
		methodNotAllowed(w)
		return
	}
	handler(w, r)
}

func (s *Server) handleAgentCommandBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.Controller.BroadcastCommand(w, r)
}

func (s *Server) handleScenariosCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.Controller.ListScenarios(w, r)
	case http.MethodPost:
		s.Controller.CreateScenario(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleScenarioItem(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(strings.TrimSuffix(r.URL.Path, "/"), "/apply") {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.Controller.ApplyScenario(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.Controller.GetScenario(w, r)
	case http.MethodPut:
		s.Controller.UpdateScenario(w, r)
	case http.MethodDelete:
		s.Controller.DeleteScenario(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	s.Controller.ListJobs(w, r)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	s.Controller.GetJob(w, r)
}

func (s *Server) handleRollout(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.Controller.GetRolloutStatus(w, r)
	case http.MethodPost:
		s.Controller.StartRollout(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	s.Controller.ScanHosts(w, r)
}

func (s *Server) handleInstallDefaults(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.Controller.GetInstallDefaults(w, r)
	case http.MethodPut:
		s.Controller.UpdateInstallDefaults(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleInstallAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.Controller.InstallAgent(w, r)
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

// statusEvent is the summary pushed to dashboard clients on /api/events.
type statusEvent struct {
	AgentID    string `json:"agent_id"`
	Status     string `json:"status"`
	TS         string `json:"ts"`
	Ticks      uint64 `json:"ticks"`
	RootStatus string `json:"root_status"`
	Paused     bool   `json:"paused"`
	JobID      string `json:"job_id,omitempty"`
	JobStatus  string `json:"job_status,omitempty"`
}

func (s *Server) onStatus(_ mqtt.Client, msg mqtt.Message) {
	s.HandleStatus(msg.Topic(), msg.Payload())
}

// HandleStatus ingests one status message and announces it to event
// subscribers.
func (s *Server) HandleStatus(topic string, payload []byte) {
	agentID := parseAgentIDFromTopic(topic)
	if agentID == "" {
		log.Printf("status: unable to parse agent id from topic %s", topic)
		return
	}
	if len(payload) == 0 {
		// A cleared retained message.
		return
	}
	hb, err := s.Controller.IngestHeartbeat(context.Background(), agentID, payload)
	if err != nil {
		log.Printf("status: %s: %v", agentID, err)
		return
	}
	evt, err := json.Marshal(statusEvent{
		AgentID:    agentID,
		Status:     hb.Status,
		TS:         hb.TS,
		Ticks:      hb.Ticks,
		RootStatus: hb.RootStatus.String(),
		Paused:     hb.Paused,
		JobID:      hb.JobID,
		JobStatus:  hb.JobStatus,
	})
	if err != nil {
		log.Printf("status: encode event: %v", err)
		return
	}
	s.Events.Broadcast("status", string(evt))
}

func parseAgentIDFromTopic(topic string) string {
	const prefix = "lab/status/"
	if !strings.HasPrefix(topic, prefix) {
		return ""
	}
	id := strings.TrimPrefix(topic, prefix)
	if id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}
