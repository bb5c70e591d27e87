package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okabelabs/turnroom/internal/games/tictactoe"
	"github.com/okabelabs/turnroom/internal/gateway"
	"github.com/okabelabs/turnroom/internal/match"
	"github.com/okabelabs/turnroom/internal/match/publish"
)

// frame mirrors ServerMessage on the client side, with the state left raw.
type frame struct {
	Type    string             `json:"type"`
	MatchID string             `json:"match_id"`
	Event   *publish.Event     `json:"event,omitempty"`
	State   json.RawMessage    `json:"state,omitempty"`
	Error   *gateway.ErrorBody `json:"error,omitempty"`
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialClient(t *testing.T, serverURL string, matchID uuid.UUID, userID string) *testClient {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") +
		"/ws/match?match_id=" + matchID.String() + "&user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(msg gateway.ClientMessage) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// waitFor reads frames until one satisfies the predicate or the deadline
// passes. Interleaved frames of other types are skipped.
func (c *testClient) waitFor(pred func(frame) bool) frame {
	c.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		var f frame
		require.NoError(c.t, c.conn.ReadJSON(&f), "timed out waiting for frame")
		if pred(f) {
			return f
		}
	}
}

func (c *testClient) waitForEvent(eventType string) frame {
	return c.waitFor(func(f frame) bool {
		return f.Type == gateway.ServerEvent && f.Event != nil && f.Event.Type == eventType
	})
}

func newTestService(t *testing.T) (*gateway.Service, *httptest.Server) {
	t.Helper()
	service := gateway.NewService(
		clockwork.NewRealClock(),
		publish.NopPublisher{},
		gateway.DefaultConnectionConfig(),
		match.Settings{},
	)
	service.Registry().RegisterGame("tictactoe", func() match.Rules { return tictactoe.NewRules() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go service.Start(ctx)

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return service, server
}

func TestRegistryGameCatalog(t *testing.T) {
	registry := gateway.NewRegistry(clockwork.NewRealClock())
	registry.RegisterGame("tictactoe", func() match.Rules { return tictactoe.NewRules() })

	_, err := registry.Create("chess", match.Settings{}, publish.NopPublisher{})
	require.Error(t, err)

	room, err := registry.Create("tictactoe", match.Settings{}, publish.NopPublisher{})
	require.NoError(t, err)
	require.Equal(t, 1, registry.Len())

	got, ok := registry.Get(room.ID)
	require.True(t, ok)
	assert.Same(t, room, got)

	registry.Remove(room.ID)
	assert.Equal(t, 0, registry.Len())
	_, ok = registry.Get(room.ID)
	assert.False(t, ok)

	// A removed room's engine is disposed.
	err = room.Engine.Connect("s-1", match.Identity{UserID: "u-1"})
	assert.Equal(t, match.CodeDisposed, match.CodeOf(err))
}

func TestCreateMatchEndpoint(t *testing.T) {
	_, server := newTestService(t)

	resp, err := http.Post(server.URL+"/matches?game=tictactoe", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "tictactoe", body["game"])
	_, err = uuid.Parse(body["match_id"])
	assert.NoError(t, err)

	// Unknown game is a client error.
	resp, err = http.Post(server.URL+"/matches?game=backgammon", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSocketLifecycle(t *testing.T) {
	service, server := newTestService(t)

	room, err := service.CreateMatch("tictactoe")
	require.NoError(t, err)

	ana := dialClient(t, server.URL, room.ID, "ana")
	ana.send(gateway.ClientMessage{Type: gateway.ClientJoin})
	joinAck := ana.waitFor(func(f frame) bool { return f.Type == gateway.ServerState })
	assert.Equal(t, room.ID.String(), joinAck.MatchID)

	bo := dialClient(t, server.URL, room.ID, "bo")
	bo.send(gateway.ClientMessage{Type: gateway.ClientJoin})

	// The second join fills the roster and starts the match; both sides see
	// the event.
	ana.waitForEvent("match.started")
	bo.waitForEvent("match.started")

	// Ana drew X and opens on the center cell.
	raw, err := json.Marshal(tictactoe.MovePayload{Cell: 4})
	require.NoError(t, err)
	ana.send(gateway.ClientMessage{Type: gateway.ClientMove, Data: raw})

	moveFrame := bo.waitForEvent("move.accepted")
	var movePayload struct {
		Notation string `json:"notation"`
		UserID   string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(moveFrame.Event.Payload, &movePayload))
	assert.Equal(t, "Xb2", movePayload.Notation)
	assert.Equal(t, "ana", movePayload.UserID)

	// The per-viewer snapshot after the move reflects the turn change.
	stateFrame := bo.waitFor(func(f frame) bool {
		if f.Type != gateway.ServerState {
			return false
		}
		var state match.State
		return json.Unmarshal(f.State, &state) == nil &&
			state.CurrentTurn != nil && state.CurrentTurn.UserID == "bo"
	})
	var state match.State
	require.NoError(t, json.Unmarshal(stateFrame.State, &state))
	assert.Len(t, state.Moves, 1)

	// Moving out of turn comes back as a typed error to the sender only.
	ana.send(gateway.ClientMessage{Type: gateway.ClientMove, Data: raw})
	errFrame := ana.waitFor(func(f frame) bool { return f.Type == gateway.ServerError })
	assert.Equal(t, string(match.CodeInvalidAction), errFrame.Error.Code)
}

func TestAbruptCloseOpensReconnectionWindow(t *testing.T) {
	service, server := newTestService(t)

	room, err := service.CreateMatch("tictactoe")
	require.NoError(t, err)

	ana := dialClient(t, server.URL, room.ID, "ana")
	ana.send(gateway.ClientMessage{Type: gateway.ClientJoin})
	ana.waitFor(func(f frame) bool { return f.Type == gateway.ServerState })

	bo := dialClient(t, server.URL, room.ID, "bo")
	bo.send(gateway.ClientMessage{Type: gateway.ClientJoin})
	bo.waitForEvent("match.started")

	// Kill Bo's socket without a leave frame: the seat goes offline but is
	// not freed.
	bo.conn.Close()
	require.Eventually(t, func() bool {
		state := room.Engine.State()
		return len(state.Participants) == 2 &&
			state.Participants[1].Connection == match.ConnectionOffline
	}, 5*time.Second, 10*time.Millisecond)

	// A fresh socket with the same user id resumes the seat.
	bo2 := dialClient(t, server.URL, room.ID, "bo")
	bo2.send(gateway.ClientMessage{Type: gateway.ClientJoin})
	bo2.waitFor(func(f frame) bool { return f.Type == gateway.ServerState })

	state := room.Engine.State()
	assert.Equal(t, match.ConnectionOnline, state.Participants[1].Connection)
	assert.Equal(t, tictactoe.RoleO, state.Participants[1].Role)
}

func TestConsentedLeaveFreesSeat(t *testing.T) {
	service, server := newTestService(t)

	room, err := service.CreateMatch("tictactoe")
	require.NoError(t, err)

	ana := dialClient(t, server.URL, room.ID, "ana")
	ana.send(gateway.ClientMessage{Type: gateway.ClientJoin})
	ana.waitFor(func(f frame) bool { return f.Type == gateway.ServerState })

	ana.send(gateway.ClientMessage{Type: gateway.ClientLeave})
	require.Eventually(t, func() bool {
		return len(room.Engine.State().Participants) == 0
	}, 5*time.Second, 10*time.Millisecond)
}
