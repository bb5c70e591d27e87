package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/okabelabs/turnroom/internal/match"
	"github.com/okabelabs/turnroom/internal/match/publish"
)

// Service is the transport-facing facade: it owns the room registry and the
// connection manager, translates client frames into engine transitions, and
// fans engine events back out to sockets.
type Service struct {
	registry *Registry
	manager  *ConnectionManager
	base     publish.Publisher

	mu     sync.Mutex
	joined map[*Connection]bool

	defaults match.Settings
}

// NewService wires a service on the given clock. Engine events are forwarded
// to base after being fanned out to the match's sockets.
func NewService(clk clockwork.Clock, base publish.Publisher, config ConnectionConfig, defaults match.Settings) *Service {
	s := &Service{
		registry: NewRegistry(clk),
		manager:  NewConnectionManager(config),
		base:     base,
		joined:   make(map[*Connection]bool),
		defaults: defaults,
	}
	s.manager.SetHandlers(s.handleClientMessage, s.handleClosed)
	return s
}

// Registry exposes the room registry for game registration.
func (s *Service) Registry() *Registry { return s.registry }

// Start runs the connection manager's broadcast loop until ctx is done, then
// disposes every room.
func (s *Service) Start(ctx context.Context) {
	s.manager.Start(ctx)
	s.registry.DisposeAll()
}

// CreateMatch builds a room for the named game with the service's default
// settings.
func (s *Service) CreateMatch(game string) (*Room, error) {
	var room *Room
	publisher := publish.PublisherFunc(func(ctx context.Context, event publish.Event) error {
		s.fanOut(room, event)
		return s.base.Publish(ctx, event)
	})

	created, err := s.registry.Create(game, s.defaults, publisher)
	if err != nil {
		return nil, err
	}
	room = created
	return room, nil
}

// fanOut delivers one engine event to the match's sockets: the raw event to
// everyone, then a per-viewer state snapshot so each client sees the board
// through its own visibility filter.
func (s *Service) fanOut(room *Room, event publish.Event) {
	if room == nil {
		return
	}

	data, err := json.Marshal(ServerMessage{
		Type:    ServerEvent,
		MatchID: room.ID.String(),
		Event:   &event,
	})
	if err != nil {
		log.Error().Err(err).Str("event_type", event.Type).Msg("failed to marshal event broadcast")
	} else {
		s.manager.BroadcastToMatch(room.ID, data)
	}

	s.pushState(room)
}

// pushState sends each connected viewer its own snapshot.
func (s *Service) pushState(room *Room) {
	for _, conn := range s.manager.Connections(room.ID) {
		conn.SendMessage(ServerMessage{
			Type:    ServerState,
			MatchID: room.ID.String(),
			State:   room.Engine.ViewFor(conn.UserID),
		})
	}
}

// handleClientMessage routes one inbound frame to the engine. Engine
// rejections go back to the sender as typed error messages and never touch
// the match.
func (s *Service) handleClientMessage(conn *Connection, raw []byte) {
	room, ok := s.registry.Get(conn.MatchID)
	if !ok {
		conn.SendMessage(errorMessage(conn.MatchID.String(), match.ErrDisposed))
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		conn.SendMessage(errorMessage(room.ID.String(), match.NewInvalidAction("malformed message")))
		return
	}

	switch msg.Type {
	case ClientJoin:
		err := room.Engine.Connect(conn.SessionID, match.Identity{UserID: conn.UserID, Name: conn.Name})
		if err != nil {
			conn.SendMessage(errorMessage(room.ID.String(), err))
			return
		}
		s.mu.Lock()
		s.joined[conn] = true
		s.mu.Unlock()
		conn.SendMessage(ServerMessage{
			Type:    ServerState,
			MatchID: room.ID.String(),
			State:   room.Engine.ViewFor(conn.UserID),
		})

	case ClientMove:
		err := room.Engine.HandleAction(conn.SessionID, match.Action{Role: msg.Role, Data: msg.Data})
		if err != nil {
			conn.SendMessage(errorMessage(room.ID.String(), err))
		}

	case ClientLeave:
		s.mu.Lock()
		delete(s.joined, conn)
		s.mu.Unlock()
		if err := room.Engine.Disconnect(conn.SessionID, true); err != nil {
			conn.SendMessage(errorMessage(room.ID.String(), err))
		}

	default:
		conn.SendMessage(errorMessage(room.ID.String(), match.NewInvalidAction("unknown message type %q", msg.Type)))
	}
}

// handleClosed reports an abrupt socket loss as a non-consented disconnect,
// which opens the engine's reconnection window for the seat.
func (s *Service) handleClosed(conn *Connection) {
	s.mu.Lock()
	wasJoined := s.joined[conn]
	delete(s.joined, conn)
	s.mu.Unlock()
	if !wasJoined {
		return
	}

	room, ok := s.registry.Get(conn.MatchID)
	if !ok {
		return
	}
	if err := room.Engine.Disconnect(conn.SessionID, false); err != nil {
		log.Warn().
			Err(err).
			Str("match_id", room.ID.String()).
			Str("session_id", conn.SessionID).
			Msg("disconnect on socket close failed")
	}
}

// HandleCreateMatch creates a room for the game named in the query and
// returns its id.
func (s *Service) HandleCreateMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	game := r.URL.Query().Get("game")
	if game == "" {
		http.Error(w, "game is required", http.StatusBadRequest)
		return
	}

	room, err := s.CreateMatch(game)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"match_id": room.ID.String(),
		"game":     room.Game,
	})
}

// HandleMatchSocket upgrades a client onto a match's socket. The client
// joins the match by sending a join frame once connected; reconnection works
// by presenting the same user_id on a fresh socket.
func (s *Service) HandleMatchSocket(w http.ResponseWriter, r *http.Request) {
	matchIDStr := r.URL.Query().Get("match_id")
	if matchIDStr == "" {
		http.Error(w, "match_id is required", http.StatusBadRequest)
		return
	}
	matchID, err := uuid.Parse(matchIDStr)
	if err != nil {
		http.Error(w, "invalid match_id format", http.StatusBadRequest)
		return
	}
	if _, ok := s.registry.Get(matchID); !ok {
		http.Error(w, "unknown match", http.StatusNotFound)
		return
	}

	// In production identity would come from a JWT or session; the query
	// parameter keeps local clients simple.
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = userID
	}

	if _, err := s.manager.UpgradeConnection(w, r, userID, name, matchID); err != nil {
		log.Error().
			Err(err).
			Str("match_id", matchID.String()).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections and
// rooms.
func (s *Service) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := s.manager.GetConnectionStats()
	stats["active_rooms"] = s.registry.Len()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(stats)
}

// RegisterRoutes registers the service's HTTP surface with a mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/matches", s.HandleCreateMatch)
	mux.HandleFunc("/ws/match", s.HandleMatchSocket)
	mux.HandleFunc("/ws/stats", s.HandleConnectionStats)
}
