// Package stream pushes live pipeline output to websocket viewers and serves
// the HTTP endpoints of a running pipeline.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = 2 * time.Second

// Message is one websocket message; Type is websocket.TextMessage or websocket.BinaryMessage.
type Message struct {
	Type int
	Data []byte
}

// Hub fans messages out to every registered viewer connection.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []Message
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	log        logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []Message, 1),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		log:        log.WithField("stage", "HUB"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mutex.Lock()
		for client := range h.clients {
			client.Close()
			delete(h.clients, client)
		}
		h.mutex.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mutex.Unlock()
			h.log.Infof("Viewer connected. Total: %d", n)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			n := len(h.clients)
			h.mutex.Unlock()
			h.log.Infof("Viewer disconnected. Total: %d", n)

		case messages := <-h.broadcast:
			h.send(messages)
		}
	}
}

func (h *Hub) send(messages []Message) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		for _, m := range messages {
			if err := client.WriteMessage(m.Type, m.Data); err != nil {
				h.log.Debugf("Dropping viewer: %v", err)
				delete(h.clients, client)
				client.Close()
				break
			}
		}
	}
}

// Register adds a viewer. It returns false when the hub is not running anymore.
func (h *Hub) Register(client *websocket.Conn) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues messages for every viewer without waiting. The messages of
// one call are sent back to back. It returns false when the hub is still busy
// with the previous broadcast.
func (h *Hub) Broadcast(messages ...Message) bool {
	select {
	case h.broadcast <- messages:
		return true
	default:
		return false
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
