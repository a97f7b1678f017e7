package httpserver

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
)

type sseMessage struct {
	event string
	data  string
}

// SSEBroker fans named events out to every connected dashboard. Clients that
// cannot keep up miss events.
type SSEBroker struct {
	clients    map[chan sseMessage]bool
	newClients chan chan sseMessage
	defunct    chan chan sseMessage
	messages   chan sseMessage
	mutex      sync.Mutex
}

func NewSSEBroker() *SSEBroker {
	b := &SSEBroker{
		clients:    make(map[chan sseMessage]bool),
		newClients: make(chan chan sseMessage),
		defunct:    make(chan chan sseMessage),
		messages:   make(chan sseMessage),
	}
	go b.start()
	return b
}

func (b *SSEBroker) start() {
	for {
		select {
		case s := <-b.newClients:
			b.mutex.Lock()
			b.clients[s] = true
			b.mutex.Unlock()
			log.Println("added event client")

		case s := <-b.defunct:
			b.mutex.Lock()
			delete(b.clients, s)
			close(s)
			b.mutex.Unlock()
			log.Println("removed event client")

		case msg := <-b.messages:
			b.mutex.Lock()
			for s := range b.clients {
				select {
				case s <- msg:
				default:
				}
			}
			b.mutex.Unlock()
		}
	}
}

// Clients reports how many dashboards are connected.
func (b *SSEBroker) Clients() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.clients)
}

func (b *SSEBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	messageChan := make(chan sseMessage, 16)
	b.newClients <- messageChan

	notify := r.Context().Done()

	go func() {
		<-notify
		b.defunct <- messageChan
	}()

	// Open the stream so clients see headers before the first event.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		msg, open := <-messageChan
		if !open {
			break
		}
		if msg.event != "" {
			fmt.Fprintf(w, "event: %s\n", msg.event)
		}
		for _, line := range strings.Split(msg.data, "\n") {
			fmt.Fprintf(w, "data: %s\n", line)
		}
		fmt.Fprint(w, "\n")
		flusher.Flush()
	}
}

// Broadcast sends data to every client as the named event. An empty event
// name sends an unnamed message.
func (b *SSEBroker) Broadcast(event, data string) {
	b.messages <- sseMessage{event: event, data: data}
}
