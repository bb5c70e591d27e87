package gateway

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/okabelabs/turnroom/internal/match"
	"github.com/okabelabs/turnroom/internal/match/publish"
)

// RulesFactory builds a fresh rules capability for one match.
type RulesFactory func() match.Rules

// Room pairs a live engine with the game it runs.
type Room struct {
	ID     uuid.UUID
	Game   string
	Engine *match.Engine
}

// Registry owns every live room and the catalog of playable games.
type Registry struct {
	mu        sync.RWMutex
	clk       clockwork.Clock
	factories map[string]RulesFactory
	rooms     map[uuid.UUID]*Room
}

// NewRegistry creates an empty registry on the given clock.
func NewRegistry(clk clockwork.Clock) *Registry {
	return &Registry{
		clk:       clk,
		factories: make(map[string]RulesFactory),
		rooms:     make(map[uuid.UUID]*Room),
	}
}

// RegisterGame adds a game to the catalog. Later registrations replace
// earlier ones under the same name.
func (r *Registry) RegisterGame(name string, factory RulesFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Games lists the registered game names.
func (r *Registry) Games() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Create builds and initializes a room for the named game. The publisher
// receives every event the new engine emits.
func (r *Registry) Create(game string, settings match.Settings, publisher publish.Publisher) (*Room, error) {
	r.mu.Lock()
	factory, ok := r.factories[game]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown game %q", game)
	}

	engine := match.New(factory(), match.WithPublisher(publisher))
	if err := engine.Init(r.clk, settings); err != nil {
		return nil, fmt.Errorf("create %s match: %w", game, err)
	}

	room := &Room{ID: engine.ID(), Game: game, Engine: engine}
	r.mu.Lock()
	r.rooms[room.ID] = room
	r.mu.Unlock()

	log.Info().
		Str("match_id", room.ID.String()).
		Str("game", game).
		Msg("room created")
	return room, nil
}

// Get returns the live room for a match id.
func (r *Registry) Get(id uuid.UUID) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

// Remove disposes a room's engine and drops it from the registry.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	room, ok := r.rooms[id]
	delete(r.rooms, id)
	r.mu.Unlock()

	if ok {
		room.Engine.Dispose()
		log.Info().
			Str("match_id", id.String()).
			Str("game", room.Game).
			Msg("room removed")
	}
}

// Len returns the live room count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// DisposeAll tears down every room, for shutdown.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.rooms = make(map[uuid.UUID]*Room)
	r.mu.Unlock()

	for _, room := range rooms {
		room.Engine.Dispose()
	}
}
