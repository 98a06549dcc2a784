// Package hub fans progress events out to WebSocket clients watching a run.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/settle/internal/domain"
)

// Connection represents a single WebSocket connection.
type Connection struct {
	ID    string
	RunID string
	Conn  *websocket.Conn
	Send  chan []byte
	hub   *Hub
	mu    sync.Mutex
}

// Hub manages all WebSocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Runs maps run_id to set of connection IDs
	runs map[string]map[string]bool

	// Channels for registration/unregistration
	register   chan *Connection
	unregister chan *Connection

	// Broadcast channel for sending to the watchers of a run
	broadcast chan *RunMessage

	// Closed when Run returns
	done chan struct{}

	mu sync.RWMutex
}

// RunMessage is used to broadcast a message to a run's watchers.
type RunMessage struct {
	RunID string
	Data  []byte
}

// Ensure Hub is a progress sink.
var _ domain.ProgressSink = (*Hub)(nil)

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		runs:        make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *RunMessage, 256),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if conn.RunID != "" {
				if h.runs[conn.RunID] == nil {
					h.runs[conn.RunID] = make(map[string]bool)
				}
				h.runs[conn.RunID][conn.ID] = true
			}
			h.mu.Unlock()
			log.Printf("INFO: connection registered: %s (run: %s)", conn.ID, conn.RunID)

		case conn := <-h.unregister:
			h.remove(conn)
			log.Printf("INFO: connection unregistered: %s", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Connection
			for connID := range h.runs[msg.RunID] {
				if conn, exists := h.connections[connID]; exists {
					select {
					case conn.Send <- msg.Data:
					default:
						log.Printf("WARN: connection %s buffer full, closing", connID)
						slow = append(slow, conn)
					}
				}
			}
			h.mu.RUnlock()
			for _, conn := range slow {
				h.remove(conn)
			}
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if conn.RunID != "" && h.runs[conn.RunID] != nil {
		delete(h.runs[conn.RunID], conn.ID)
		if len(h.runs[conn.RunID]) == 0 {
			delete(h.runs, conn.RunID)
		}
	}
	close(conn.Send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		conns = append(conns, conn)
	}
	h.mu.Unlock()
	for _, conn := range conns {
		h.remove(conn)
	}
}

// NewConnection creates a new connection watching runID.
func (h *Hub) NewConnection(ws *websocket.Conn, runID string) *Connection {
	return &Connection{
		ID:    uuid.New().String(),
		RunID: runID,
		Conn:  ws,
		Send:  make(chan []byte, 256),
		hub:   h,
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Broadcast sends a message to all connections watching a run. The message is
// dropped when the hub is backed up; progress delivery never blocks a run.
func (h *Hub) Broadcast(runID string, data []byte) {
	select {
	case h.broadcast <- &RunMessage{RunID: runID, Data: data}:
	default:
		log.Printf("WARN: hub backlog full, dropping message for run %s", runID)
	}
}

// BroadcastJSON sends a JSON message to all connections watching a run.
func (h *Hub) BroadcastJSON(runID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(runID, data)
	return nil
}

// Notify broadcasts a progress event to the run's watchers.
func (h *Hub) Notify(ev domain.ProgressEvent) {
	if !h.HasActiveConnections(ev.RunID) {
		return
	}
	if err := h.BroadcastJSON(ev.RunID, ev); err != nil {
		log.Printf("WARN: failed to encode progress event: %v", err)
	}
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasActiveConnections checks if a run has any watchers.
func (h *Hub) HasActiveConnections(runID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.runs[runID]) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
