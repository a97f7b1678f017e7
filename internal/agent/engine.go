package agent

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"example.com/bt-fleet/internal/agent/behavior"
	"example.com/bt-fleet/internal/miner"
	mqttc "example.com/bt-fleet/internal/mqtt"
	mqttlib "github.com/eclipse/paho.mqtt.golang"
)

// Blackboard keys shared by the housekeeping leaves.
const (
	KeyIPAddress   = "ip_address"
	KeyLastCommand = "last_command_id"
)

const reconnectBackoff = 5 * time.Second

// Link is the connection an engine reports through. *mqttc.Client
// satisfies it.
type Link interface {
	IsConnected() bool
	Reconnect()
	PublishRetained(topic string, payload []byte)
}

// Heartbeat is the retained status message an agent publishes.
type Heartbeat struct {
	Status         string                 `json:"status"`
	TS             string                 `json:"ts"`
	IP             string                 `json:"ip"`
	Name           string                 `json:"name,omitempty"`
	Ticks          uint64                 `json:"ticks"`
	RootStatus     behavior.Status        `json:"root_status"`
	Paused         bool                   `json:"paused"`
	TickIntervalMS int64                  `json:"tick_interval_ms"`
	JobID          string                 `json:"job_id,omitempty"`
	JobStatus      string                 `json:"job_status,omitempty"`
	JobError       string                 `json:"job_error,omitempty"`
	Stats          map[string]any         `json:"stats,omitempty"`
	Tree           *behavior.NodeSnapshot `json:"tree,omitempty"`
}

type Option func(*Engine)

// WithLink sets the connection instead of dialing MQTT in Run.
func WithLink(l Link) Option {
	return func(e *Engine) { e.Link = l }
}

// WithClock sets the time source of the heartbeat timer.
func WithClock(c behavior.TimeSource) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets where the workload's chatter goes.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine ticks two trees on one goroutine: the workload, and a housekeeping
// tree that applies commands, watches the connection and sends heartbeats.
type Engine struct {
	Config     Config
	Link       Link
	Jobs       *JobManager
	Blackboard *behavior.Blackboard

	clock  behavior.TimeSource
	logger *log.Logger
	now    func() time.Time

	cmdChan      chan Command
	miner        *miner.Miner
	params       miner.Params
	workload     *behavior.PrioritySelector
	housekeeping *behavior.Parallel
	interval     time.Duration
	paused       bool
	ticks        uint64

	lastConnectAttempt time.Time
}

func NewEngine(cfg Config, opts ...Option) *Engine {
	cfg = cfg.WithDefaults()
	e := &Engine{
		Config:     cfg,
		Jobs:       NewJobManager(),
		Blackboard: behavior.NewBlackboard(),
		now:        time.Now,
		cmdChan:    make(chan Command, 16),
		params:     cfg.Scenario,
		interval:   cfg.TickInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = behavior.NewWallClock()
	}
	if e.logger == nil {
		e.logger = log.New(log.Writer(), "[miner] ", log.LstdFlags)
	}
	e.rebuildWorkload()
	e.housekeeping = e.buildHousekeeping()
	return e
}

func (e *Engine) Miner() *miner.Miner { return e.miner }
func (e *Engine) Workload() behavior.Node { return e.workload }
func (e *Engine) Housekeeping() behavior.Node { return e.housekeeping }
func (e *Engine) Interval() time.Duration { return e.interval }
func (e *Engine) Paused() bool { return e.paused }
func (e *Engine) Ticks() uint64 { return e.ticks }

// Run connects to MQTT unless a link was given and ticks until ctx is
// cancelled. Trees still running are aborted before Run returns.
func (e *Engine) Run(ctx context.Context) {
	if e.Link == nil {
		e.Connect()
	}

	current := e.interval
	ticker := time.NewTicker(current)
	defer ticker.Stop()

	log.Printf("agent: engine started for %s (tick %s)", e.Config.AgentID, current)

	for {
		select {
		case <-ctx.Done():
			e.Stop()
			log.Printf("agent: engine stopped after %d ticks", e.ticks)
			return
		case <-ticker.C:
			e.Tick()
			if e.interval != current {
				current = e.interval
				ticker.Reset(current)
			}
		}
	}
}

// Tick advances the workload, unless paused, and then the housekeeping tree.
// A finished Parallel keeps its children's results, so housekeeping that
// failed on the last tick is rebuilt before it runs again.
func (e *Engine) Tick() {
	if !e.paused {
		e.workload.Tick()
		e.ticks++
	}
	if e.housekeeping.IsFinished() {
		e.housekeeping = e.buildHousekeeping()
	}
	e.housekeeping.Tick()
}

// Stop aborts whatever is running and publishes a final heartbeat.
func (e *Engine) Stop() {
	if e.workload.IsRunning() {
		e.workload.Abort()
	}
	if e.housekeeping.IsRunning() {
		e.housekeeping.Abort()
	}
	if e.Link != nil && e.Link.IsConnected() {
		e.Link.PublishRetained(StatusTopic(e.Config.AgentID), e.buildStatusPayload("stopped"))
	}
}

// Connect dials the broker and subscribes to the agent's command topics on
// every (re)connect.
func (e *Engine) Connect() {
	onConnect := func(c mqttlib.Client) {
		log.Printf("MQTT Connected")
		for _, topic := range []string{CommandTopic(e.Config.AgentID), BroadcastTopic} {
			log.Printf("Subscribing to %s", topic)
			if token := c.Subscribe(topic, 0, e.HandleMessage); token.Wait() && token.Error() != nil {
				log.Printf("subscribe %s error: %v", topic, token.Error())
			}
		}
	}
	e.Link = mqttc.NewClientWithHandler("agent-"+e.Config.AgentID, e.Config.MQTTBroker, onConnect)
}

func (e *Engine) HandleMessage(_ mqttlib.Client, msg mqttlib.Message) {
	e.handlePayload(msg.Payload())
}

func (e *Engine) handlePayload(payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		log.Printf("invalid command JSON: %v", err)
		return
	}
	if cmd.Type == "" {
		log.Printf("command %s has no type", cmd.ID)
		return
	}
	e.Enqueue(cmd)
}

// Enqueue hands cmd to the tick goroutine without blocking. It reports false
// when the queue is full and the command was dropped.
func (e *Engine) Enqueue(cmd Command) bool {
	select {
	case e.cmdChan <- cmd:
		log.Printf("Queued command: %s", cmd.Type)
		return true
	default:
		log.Printf("command queue full, dropping command: %s", cmd.Type)
		return false
	}
}

func (e *Engine) rebuildWorkload() {
	e.miner = miner.New(e.params, e.logger)
	e.workload = e.miner.Tree()
}

func (e *Engine) buildHousekeeping() *behavior.Parallel {
	heartbeat := behavior.NewSequence(behavior.WithName("heartbeat")).
		AddChild(behavior.NewWait(e.clock, e.Config.HeartbeatInterval.Seconds(), 0, behavior.WithName("wait heartbeat"))).
		AddChild(behavior.NewAction(e.checkNetwork, behavior.WithName("check network"))).
		AddChild(behavior.NewAction(e.sendHeartbeat, behavior.WithName("publish status")))

	return behavior.NewParallel(behavior.RequireAll, behavior.RequireOne, behavior.WithName("housekeeping")).
		AddChild(behavior.NewAction(e.processCommands, behavior.WithName("commands"))).
		AddChild(behavior.NewAction(e.maintainConnection, behavior.WithName("connection"))).
		AddChild(behavior.Repeat().SetChild(heartbeat))
}

// --- Leaf Nodes ---

// processCommands applies every queued command. It never finishes.
func (e *Engine) processCommands() behavior.Status {
	for {
		select {
		case cmd := <-e.cmdChan:
			e.apply(cmd)
		default:
			return behavior.Running
		}
	}
}

func (e *Engine) apply(cmd Command) {
	action := e.mapCommandToAction(cmd)
	job := e.Jobs.Run(cmd.ID, cmd.Type, action)
	if job.Status == JobStatusFailed {
		log.Printf("agent: command %s (%s) failed: %s", cmd.Type, cmd.ID, job.Error)
	}
	e.Blackboard.Set(KeyLastCommand, cmd.ID)
}

func (e *Engine) maintainConnection() behavior.Status {
	if e.Link == nil {
		return behavior.Failure
	}
	if !e.Link.IsConnected() {
		if e.now().Sub(e.lastConnectAttempt) > reconnectBackoff {
			log.Println("MQTT disconnected, attempting reconnect...")
			e.Link.Reconnect()
			e.lastConnectAttempt = e.now()
		}
		return behavior.Failure
	}
	return behavior.Running
}

func (e *Engine) checkNetwork() behavior.Status {
	currentIP := DetectIPv4()
	if lastIP := e.Blackboard.GetString(KeyIPAddress); currentIP != lastIP {
		if lastIP != "" {
			log.Printf("IP changed from %s to %s", lastIP, currentIP)
		}
		e.Blackboard.Set(KeyIPAddress, currentIP)
	}
	return behavior.Success
}

func (e *Engine) sendHeartbeat() behavior.Status {
	if e.Link == nil || !e.Link.IsConnected() {
		return behavior.Failure
	}
	status := "ok"
	if e.paused {
		status = "paused"
	}
	e.Link.PublishRetained(StatusTopic(e.Config.AgentID), e.buildStatusPayload(status))
	return behavior.Success
}

// Heartbeat builds the current status message.
func (e *Engine) Heartbeat(status string) Heartbeat {
	tree := behavior.Snapshot(e.workload)
	hb := Heartbeat{
		Status:         status,
		TS:             e.now().UTC().Format(time.RFC3339),
		IP:             e.Blackboard.GetString(KeyIPAddress),
		Name:           e.Config.Name,
		Ticks:          e.ticks,
		RootStatus:     e.workload.Status(),
		Paused:         e.paused,
		TickIntervalMS: e.interval.Milliseconds(),
		Stats:          e.miner.Stats(),
		Tree:           &tree,
	}
	if job, ok := e.Jobs.LastJob(); ok {
		hb.JobID = job.ID
		hb.JobStatus = string(job.Status)
		hb.JobError = job.Error
	}
	return hb
}

func (e *Engine) buildStatusPayload(status string) []byte {
	buf, err := json.Marshal(e.Heartbeat(status))
	if err != nil {
		log.Printf("agent: encode heartbeat: %v", err)
		return nil
	}
	return buf
}
