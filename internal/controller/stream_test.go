package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/bt-fleet/internal/agent"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestStreamHub_FanOut(t *testing.T) {
	t.Parallel()

	h := NewStreamHub()
	a, cancelA := h.Subscribe("m1")
	b, cancelB := h.Subscribe("m1")
	other, cancelOther := h.Subscribe("m2")
	defer cancelOther()
	require.Equal(t, 2, h.Subscribers("m1"))

	h.Publish("m1", []byte("hello"))
	require.Equal(t, []byte("hello"), <-a)
	require.Equal(t, []byte("hello"), <-b)
	require.Empty(t, other)

	cancelA()
	cancelA()
	_, open := <-a
	require.False(t, open)
	require.Equal(t, 1, h.Subscribers("m1"))

	cancelB()
	require.Zero(t, h.Subscribers("m1"))
}

func TestStreamHub_DropsForSlowSubscriber(t *testing.T) {
	t.Parallel()

	h := NewStreamHub()
	ch, cancel := h.Subscribe("m1")
	defer cancel()
	for i := 0; i < streamBuffer+5; i++ {
		h.Publish("m1", []byte(fmt.Sprint(i)))
	}
	require.Len(t, ch, streamBuffer)
	require.Equal(t, []byte("0"), <-ch)
}

func TestHandleStream(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	a := ingestAgent(t, c, "m1")

	srv := httptest.NewServer(http.HandlerFunc(c.HandleStream))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + fmt.Sprintf("/api/agents/%d/stream", a.ID)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first streamMessage
	require.NoError(t, ws.ReadJSON(&first))
	require.Equal(t, "snapshot", first.Type)
	require.Equal(t, "m1", first.AgentID)
	require.JSONEq(t, `{"name":"miner","status":"RUNNING"}`, string(first.Tree))

	_, err = c.IngestHeartbeat(context.Background(), "m1", heartbeatPayload(t, sampleHeartbeat(42)))
	require.NoError(t, err)

	var next streamMessage
	require.NoError(t, ws.ReadJSON(&next))
	require.Equal(t, "heartbeat", next.Type)
	var hb agent.Heartbeat
	require.NoError(t, json.Unmarshal(next.Heartbeat, &hb))
	require.Equal(t, uint64(42), hb.Ticks)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return c.Streams.Subscribers("m1") == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHandleStream_UnknownAgent(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	rec := do(t, c.HandleStream, http.MethodGet, "/api/agents/7/stream", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, c.HandleStream, http.MethodGet, "/api/agents/x/stream", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
