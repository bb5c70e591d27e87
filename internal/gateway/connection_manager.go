package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages WebSocket connections for match traffic.
type ConnectionManager struct {
	// Connection pools organized by match ID
	matchConnections map[uuid.UUID]map[*Connection]bool
	mu               sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage

	// onMessage receives every inbound client frame; onClosed fires once
	// when a connection's read loop exits.
	onMessage func(*Connection, []byte)
	onClosed  func(*Connection)
}

// Connection represents a WebSocket connection to a client. SessionID is the
// engine-facing session identity; UserID is the stable identity a client
// reconnects with.
type Connection struct {
	SessionID string
	UserID    string
	Name      string
	MatchID   uuid.UUID
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents a message to fan out to a match's connections.
type BroadcastMessage struct {
	MatchID uuid.UUID
	Data    []byte
	UserID  string // Optional: if set, only send to this user
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		matchConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// SetHandlers wires the inbound message and close callbacks. Must be called
// before the first upgrade.
func (cm *ConnectionManager) SetHandlers(onMessage func(*Connection, []byte), onClosed func(*Connection)) {
	cm.onMessage = onMessage
	cm.onClosed = onClosed
}

// Start begins processing broadcast messages.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts its
// pumps. The returned connection already carries a fresh session id.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID, name string, matchID uuid.UUID) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		SessionID:   uuid.New().String(),
		UserID:      userID,
		Name:        name,
		MatchID:     matchID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("session_id", connection.SessionID).
		Str("user_id", userID).
		Str("match_id", matchID.String()).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.matchConnections[conn.MatchID] == nil {
		cm.matchConnections[conn.MatchID] = make(map[*Connection]bool)
	}
	cm.matchConnections[conn.MatchID][conn] = true

	log.Debug().
		Str("session_id", conn.SessionID).
		Str("match_id", conn.MatchID.String()).
		Int("total_connections", len(cm.matchConnections[conn.MatchID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.matchConnections[conn.MatchID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)

			if len(connections) == 0 {
				delete(cm.matchConnections, conn.MatchID)
			}

			log.Info().
				Str("session_id", conn.SessionID).
				Str("user_id", conn.UserID).
				Str("match_id", conn.MatchID.String()).
				Msg("connection unregistered")
		}
	}
}

// BroadcastToMatch fans raw bytes out to every connection in a match.
func (cm *ConnectionManager) BroadcastToMatch(matchID uuid.UUID, data []byte) {
	select {
	case cm.broadcastCh <- BroadcastMessage{MatchID: matchID, Data: data}:
	default:
		log.Warn().Str("match_id", matchID.String()).Msg("broadcast channel full, dropping message")
	}
}

// SendToUser sends raw bytes to one user's connections in a match.
func (cm *ConnectionManager) SendToUser(matchID uuid.UUID, userID string, data []byte) {
	select {
	case cm.broadcastCh <- BroadcastMessage{MatchID: matchID, Data: data, UserID: userID}:
	default:
		log.Warn().
			Str("match_id", matchID.String()).
			Str("user_id", userID).
			Msg("broadcast channel full, dropping user message")
	}
}

// Connections returns a snapshot of a match's live connections.
func (cm *ConnectionManager) Connections(matchID uuid.UUID) []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var out []*Connection
	for conn := range cm.matchConnections[matchID] {
		out = append(out, conn)
	}
	return out
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.matchConnections[message.MatchID]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	// Snapshot so the lock is not held while writing.
	var targets []*Connection
	for conn := range connections {
		if message.UserID != "" && conn.UserID != message.UserID {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		conn.send(message.Data)
	}
}

// send queues data on one connection, dropping the connection if its buffer
// is full.
func (c *Connection) send(data []byte) {
	select {
	case c.Send <- data:
	default:
		log.Warn().
			Str("session_id", c.SessionID).
			Str("user_id", c.UserID).
			Msg("connection send buffer full, closing connection")
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}
}

// SendMessage marshals and queues one server message on this connection.
func (c *Connection) SendMessage(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("failed to marshal server message")
		return
	}
	c.send(data)
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	matchCounts := make(map[string]int)

	for matchID, connections := range cm.matchConnections {
		count := len(connections)
		totalConnections += count
		matchCounts[matchID.String()] = count
	}

	return map[string]interface{}{
		"total_connections": totalConnections,
		"active_matches":    len(cm.matchConnections),
		"match_connections": matchCounts,
	}
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("session_id", c.SessionID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("session_id", c.SessionID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection. When the
// loop exits the close callback fires, which reports an involuntary drop to
// the engine.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
		if c.Manager.onClosed != nil {
			c.Manager.onClosed(c)
		}
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("session_id", c.SessionID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.Manager.onMessage != nil {
			c.Manager.onMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
