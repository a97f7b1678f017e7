package controller

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamBuffer    = 8
	streamPingEvery = 30 * time.Second
	streamWriteWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHub fans heartbeats out to per-agent subscribers. Slow subscribers
// miss messages rather than stall ingestion.
type StreamHub struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}
}

func NewStreamHub() *StreamHub {
	return &StreamHub{subs: make(map[string]map[chan []byte]struct{})}
}

// Subscribe registers for heartbeats from agentID. The returned func must be
// called to release the subscription; it closes the channel.
func (h *StreamHub) Subscribe(agentID string) (<-chan []byte, func()) {
	ch := make(chan []byte, streamBuffer)
	h.mu.Lock()
	if h.subs[agentID] == nil {
		h.subs[agentID] = make(map[chan []byte]struct{})
	}
	h.subs[agentID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[agentID], ch)
			if len(h.subs[agentID]) == 0 {
				delete(h.subs, agentID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *StreamHub) Publish(agentID string, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[agentID] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribers reports how many streams are open for agentID.
func (h *StreamHub) Subscribers(agentID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[agentID])
}

type streamMessage struct {
	Type      string          `json:"type"` // "snapshot" or "heartbeat"
	AgentID   string          `json:"agent_id"`
	Tree      json.RawMessage `json:"tree,omitempty"`
	Stats     json.RawMessage `json:"stats,omitempty"`
	Heartbeat json.RawMessage `json:"heartbeat,omitempty"`
}

// HandleStream upgrades to a websocket that carries the agent's stored
// snapshot followed by each heartbeat it publishes.
func (c *Controller) HandleStream(w http.ResponseWriter, r *http.Request) {
	id, err := parseAgentSubresource(r.URL.Path, "stream")
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}
	a, ok := c.lookupAgent(w, r, id)
	if !ok {
		return
	}

	// Subscribe before reading the snapshot so no heartbeat falls between.
	updates, cancel := c.Streams.Subscribe(a.AgentID)
	defer cancel()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}
	defer ws.Close()

	snap, err := c.DB.GetSnapshot(r.Context(), a.AgentID)
	switch {
	case err == nil:
		if err := writeStream(ws, streamMessage{Type: "snapshot", AgentID: a.AgentID, Tree: snap.TreeJSON, Stats: snap.StatsJSON}); err != nil {
			return
		}
	case !errors.Is(err, sql.ErrNoRows):
		log.Printf("stream snapshot for %s: %v", a.AgentID, err)
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case msg, ok := <-updates:
			if !ok {
				return
			}
			if err := writeStream(ws, streamMessage{Type: "heartbeat", AgentID: a.AgentID, Heartbeat: msg}); err != nil {
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeStream(ws *websocket.Conn, msg streamMessage) error {
	_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return ws.WriteJSON(msg)
}
