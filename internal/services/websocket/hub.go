package websocket

import (
	"context"
	"sync"
	"time"

	"detectsuite/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single write to a viewer.
	writeWait = 10 * time.Second
	// viewerQueue is how many messages a viewer may lag behind before it is dropped.
	viewerQueue = 32
)

// Subscription ties a viewer connection to the session it watches.
type Subscription struct {
	Conn    *websocket.Conn
	Session string
}

type message struct {
	session string
	payload []byte
}

// viewer is a registered connection with its own outgoing queue. Only the
// hub goroutine closes send.
type viewer struct {
	conn    *websocket.Conn
	session string
	send    chan []byte
}

// HubService fans out per-session messages to the viewers of that session.
// Network writes happen in one goroutine per viewer, so a viewer that stops
// reading is dropped instead of stalling the hub.
type HubService struct {
	clients    map[*websocket.Conn]*viewer
	broadcast  chan message
	register   chan Subscription
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]*viewer),
		broadcast:  make(chan message, 16),
		register:   make(chan Subscription),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *HubService) Run() {
	for {
		select {
		case sub := <-h.register:
			v := &viewer{conn: sub.Conn, session: sub.Session, send: make(chan []byte, viewerQueue)}
			h.mutex.Lock()
			h.clients[sub.Conn] = v
			total := len(h.clients)
			h.mutex.Unlock()
			go h.writePump(v)
			h.logger.Info("Viewer connected to session %s. Total: %d", sub.Session, total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if v, ok := h.clients[client]; ok {
				h.drop(v)
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", total)

		case msg := <-h.broadcast:
			h.mutex.Lock()
			for _, v := range h.clients {
				if v.session != msg.session {
					continue
				}
				select {
				case v.send <- msg.payload:
				default:
					h.logger.Warning("Viewer of session %s is not reading, dropping it", v.session)
					h.drop(v)
				}
			}
			h.mutex.Unlock()

		case <-h.done:
			h.mutex.Lock()
			for _, v := range h.clients {
				h.drop(v)
			}
			h.mutex.Unlock()
			return
		}
	}
}

// drop forgets a viewer and closes its connection. Callers hold the mutex.
func (h *HubService) drop(v *viewer) {
	delete(h.clients, v.conn)
	close(v.send)
	v.conn.Close()
}

func (h *HubService) writePump(v *viewer) {
	for payload := range v.send {
		v.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := v.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Error("Error sending message: %v", err)
			// The reader sees the closed connection and unregisters.
			v.conn.Close()
			for range v.send {
			}
			return
		}
	}
}

// Stop ends Run and closes all viewer connections.
func (h *HubService) Stop() {
	close(h.done)
}

func (h *HubService) Register(client *websocket.Conn, session string) {
	select {
	case h.register <- Subscription{Conn: client, Session: session}:
	case <-h.done:
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues payload for every viewer of session. It gives up when ctx
// is done or the hub has stopped, and reports whether the message was queued.
func (h *HubService) Broadcast(ctx context.Context, payload []byte, session string) bool {
	select {
	case h.broadcast <- message{session: session, payload: payload}:
		return true
	case <-ctx.Done():
		return false
	case <-h.done:
		return false
	}
}

// GetClientCount returns the number of viewers of session, or of all
// sessions when session is empty.
func (h *HubService) GetClientCount(session string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if session == "" {
		return len(h.clients)
	}
	n := 0
	for _, v := range h.clients {
		if v.session == session {
			n++
		}
	}
	return n
}
