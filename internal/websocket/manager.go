package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/telefetch-project/telefetch/internal/logger"
)

// Manager manages WebSocket connections and broadcasts events
type Manager struct {
	connections       map[string]*Connection
	connectionCounter int

	eventChan chan *Event

	mu sync.RWMutex
	wg sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// Connection represents one connected admin client
type Connection struct {
	ID     string
	Send   chan *Event
	mu     sync.Mutex
	closed bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The admin surface binds to localhost; cross-origin checks add
	// nothing there.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewManager creates a new WebSocket manager
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		connections: make(map[string]*Connection),
		eventChan:   make(chan *Event, 256),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the broadcast and heartbeat loops
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.run()

	m.wg.Add(1)
	go m.heartbeatLoop()

	logger.Info("WebSocket manager started")
}

// Stop stops the manager and closes all connections
func (m *Manager) Stop() {
	logger.Info("Stopping WebSocket manager...")

	m.cancel()

	m.mu.Lock()
	for _, conn := range m.connections {
		conn.mu.Lock()
		if !conn.closed {
			conn.closed = true
			close(conn.Send)
		}
		conn.mu.Unlock()
	}
	m.connections = make(map[string]*Connection)
	m.mu.Unlock()

	m.wg.Wait()

	logger.Info("WebSocket manager stopped")
}

// run is the main event loop
func (m *Manager) run() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event := <-m.eventChan:
			m.broadcastEvent(event)
		}
	}
}

// heartbeatLoop sends periodic heartbeat messages
func (m *Manager) heartbeatLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if m.GetConnectionCount() > 0 {
				m.Broadcast(NewHeartbeatEvent())
			}
		}
	}
}

// Broadcast sends an event to all connected clients
func (m *Manager) Broadcast(event *Event) {
	select {
	case m.eventChan <- event:
	case <-m.ctx.Done():
		logger.Debug("dropping event: manager stopped")
	}
}

// broadcastEvent fans the event out to every connection
func (m *Manager) broadcastEvent(event *Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for connID, conn := range m.connections {
		conn.mu.Lock()
		closed := conn.closed
		conn.mu.Unlock()
		if closed {
			continue
		}
		select {
		case conn.Send <- event:
		default:
			// Slow consumer, drop the connection
			logger.Warnf("send channel of %s full, closing connection", connID)
			go m.closeConnection(connID)
		}
	}
}

// HandleWebSocket upgrades the request and streams events until the
// client disconnects
func (m *Manager) HandleWebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer ws.Close()

	m.mu.Lock()
	m.connectionCounter++
	connID := fmt.Sprintf("conn-%d", m.connectionCounter)
	conn := &Connection{
		ID:   connID,
		Send: make(chan *Event, 64),
	}
	m.connections[connID] = conn
	m.mu.Unlock()

	logger.Infof("WebSocket connection established: %s (total: %d)", connID, m.GetConnectionCount())

	defer func() {
		m.closeConnection(connID)
		logger.Infof("WebSocket connection closed: %s (remaining: %d)", connID, m.GetConnectionCount())
	}()

	// Drain inbound frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-c.Request.Context().Done():
			return
		case event, ok := <-conn.Send:
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := ws.WriteMessage(websocket.TextMessage, []byte(event.String())); err != nil {
				return
			}
		}
	}
}

// GetConnectionCount returns the number of connected clients
func (m *Manager) GetConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// closeConnection closes a specific connection
func (m *Manager) closeConnection(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn, ok := m.connections[connID]; ok {
		conn.mu.Lock()
		if !conn.closed {
			conn.closed = true
			close(conn.Send)
		}
		conn.mu.Unlock()
		delete(m.connections, connID)
	}
}

// BroadcastJobQueued broadcasts a queued event
func (m *Manager) BroadcastJobQueued(jobID, title, mode string, position int) {
	m.Broadcast(NewJobQueuedEvent(jobID, title, mode, position))
}

// BroadcastJobProgress broadcasts a progress event
func (m *Manager) BroadcastJobProgress(jobID, stage string, percent int, downloaded, total int64) {
	m.Broadcast(NewJobProgressEvent(jobID, stage, percent, downloaded, total))
}

// BroadcastJobDone broadcasts a terminal event
func (m *Manager) BroadcastJobDone(jobID, outcome, errorMessage string) {
	m.Broadcast(NewJobDoneEvent(jobID, outcome, errorMessage))
}
