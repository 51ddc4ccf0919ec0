package notifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/condenserhq/condenser/pkg/models"
)

// Client-to-server message types on the real-time channel.
const (
	MsgJoinBatchGroup        = "JoinBatchGroup"
	MsgLeaveBatchGroup       = "LeaveBatchGroup"
	MsgRequestProgressUpdate = "RequestProgressUpdate"
	MsgPing                  = "Ping"
)

// ClientMessage is one inbound WebSocket message.
type ClientMessage struct {
	Type    string `json:"type"`
	BatchID string `json:"batchId,omitempty"`
}

// ConnectedPayload accompanies the EventConnected greeting.
type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
}

// GroupPayload accompanies join/leave acknowledgements.
type GroupPayload struct {
	BatchID string `json:"batchId"`
}

// PongPayload accompanies EventPong.
type PongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// ProgressSource serves on-demand progress snapshots. Implemented by the
// scheduler.
type ProgressSource interface {
	Progress(batchID string) (models.ProgressSnapshot, bool)
}

// ConnectionManager manages WebSocket connections and their batch-group
// memberships. Each process has one instance, fed by the Hub.
type ConnectionManager struct {
	hub      *Hub
	progress ProgressSource
	logger   *slog.Logger

	// Write timeout for a single WebSocket send.
	writeTimeout time.Duration

	// Heartbeat cadence; a connection silent for two intervals is dropped.
	heartbeatInterval time.Duration

	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewConnectionManager creates a manager on top of the hub.
func NewConnectionManager(hub *Hub, progress ProgressSource, writeTimeout, heartbeatInterval time.Duration, logger *slog.Logger) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionManager{
		hub:               hub,
		progress:          progress,
		writeTimeout:      writeTimeout,
		heartbeatInterval: heartbeatInterval,
		logger:            logger.With("component", "ws"),
		connections:       make(map[string]*Connection),
	}
}

// Connection represents a single WebSocket client.
//
// groups is accessed without a lock: all reads and writes happen on the one
// goroutine that owns the connection (HandleConnection's read loop and its
// deferred cleanup).
type Connection struct {
	ID     string
	conn   *websocket.Conn
	groups map[string]*Subscriber

	ctx      context.Context
	cancel   context.CancelFunc
	lastSeen atomic.Int64

	writeMu sync.Mutex
}

// HandleConnection manages the lifecycle of one WebSocket connection.
// Called by the HTTP handler after upgrade; blocks until the connection
// closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:     uuid.New().String(),
		conn:   conn,
		groups: make(map[string]*Subscriber),
		ctx:    ctx,
		cancel: cancel,
	}
	c.lastSeen.Store(time.Now().UnixNano())

	m.register(c)
	defer m.unregister(c)

	m.send(c, newEvent(EventConnected, "", ConnectedPayload{ConnectionID: c.ID}))

	if m.heartbeatInterval > 0 {
		go m.watchdog(c)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		c.lastSeen.Store(time.Now().UnixNano())

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.logger.Warn("invalid websocket message", "connection_id", c.ID, "error", err)
			continue
		}
		m.handleClientMessage(c, &msg)
	}
}

// ActiveConnections returns the count of open WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// NotifySystemStatus broadcasts a system status message to every subscriber.
func (m *ConnectionManager) NotifySystemStatus(message string) {
	m.hub.Broadcast(EventSystemStatusUpdate, map[string]interface{}{
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

func (m *ConnectionManager) register(c *Connection) {
	m.mu.Lock()
	m.connections[c.ID] = c
	m.mu.Unlock()
	m.logger.Info("websocket connected", "connection_id", c.ID)
}

func (m *ConnectionManager) unregister(c *Connection) {
	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	for batchID, sub := range c.groups {
		sub.Close()
		delete(c.groups, batchID)
	}
	c.cancel()
	m.logger.Info("websocket disconnected", "connection_id", c.ID)
}

func (m *ConnectionManager) handleClientMessage(c *Connection, msg *ClientMessage) {
	switch msg.Type {
	case MsgJoinBatchGroup:
		if msg.BatchID == "" {
			m.sendError(c, "batchId is required for JoinBatchGroup")
			return
		}
		if _, joined := c.groups[msg.BatchID]; !joined {
			sub := m.hub.Subscribe(msg.BatchID)
			c.groups[msg.BatchID] = sub
			go m.forward(c, sub)
		}
		m.send(c, newEvent(EventJoinedBatchGroup, msg.BatchID, GroupPayload{BatchID: msg.BatchID}))

	case MsgLeaveBatchGroup:
		if sub, ok := c.groups[msg.BatchID]; ok {
			sub.Close()
			delete(c.groups, msg.BatchID)
		}
		m.send(c, newEvent(EventLeftBatchGroup, msg.BatchID, GroupPayload{BatchID: msg.BatchID}))

	case MsgRequestProgressUpdate:
		if m.progress == nil {
			m.sendError(c, "progress updates not available")
			return
		}
		snap, ok := m.progress.Progress(msg.BatchID)
		if !ok {
			m.sendError(c, "unknown batch "+msg.BatchID)
			return
		}
		m.send(c, newEvent(EventProgressUpdate, msg.BatchID, snap))

	case MsgPing:
		m.send(c, newEvent(EventPong, "", PongPayload{Timestamp: time.Now().UTC()}))

	default:
		m.sendError(c, "unknown message type "+msg.Type)
	}
}

// forward drains a batch-group subscription into the connection. Exits when
// the subscription closes or a send fails.
func (m *ConnectionManager) forward(c *Connection, sub *Subscriber) {
	for ev := range sub.Events() {
		if !m.send(c, ev) {
			c.cancel()
			return
		}
	}
}

// watchdog drops connections that have been silent for two heartbeat
// intervals.
func (m *ConnectionManager) watchdog(c *Connection) {
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			silentFor := time.Since(time.Unix(0, c.lastSeen.Load()))
			if silentFor > 2*m.heartbeatInterval {
				m.logger.Info("websocket heartbeat expired",
					"connection_id", c.ID, "silent_for", silentFor)
				c.cancel()
				_ = c.conn.Close(websocket.StatusGoingAway, "heartbeat expired")
				return
			}
		}
	}
}

func (m *ConnectionManager) sendError(c *Connection, message string) {
	m.send(c, newEvent(EventSystemStatusUpdate, "", map[string]string{"error": message}))
}

func (m *ConnectionManager) send(c *Connection, ev Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		m.logger.Error("failed to marshal event", "type", ev.Type, "error", err)
		return true
	}

	ctx := c.ctx
	if m.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(c.ctx, m.writeTimeout)
		defer cancel()
	}

	c.writeMu.Lock()
	err = c.conn.Write(ctx, websocket.MessageText, data)
	c.writeMu.Unlock()
	if err != nil {
		m.logger.Warn("failed to send to websocket client",
			"connection_id", c.ID, "error", err)
		return false
	}
	return true
}
