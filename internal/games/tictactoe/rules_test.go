package tictactoe_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okabelabs/turnroom/internal/games/tictactoe"
	"github.com/okabelabs/turnroom/internal/match"
	"github.com/okabelabs/turnroom/internal/match/publish"
)

func newMatch(t *testing.T, settings match.Settings) (*match.Engine, *tictactoe.Rules, *clockwork.FakeClock) {
	t.Helper()
	clk := clockwork.NewFakeClock()
	rules := tictactoe.NewRules()
	engine := match.New(rules, match.WithPublisher(publish.NopPublisher{}))
	require.NoError(t, engine.Init(clk, settings))
	t.Cleanup(engine.Dispose)
	return engine, rules, clk
}

func claim(t *testing.T, engine *match.Engine, sessionID string, cell int) error {
	t.Helper()
	raw, err := json.Marshal(tictactoe.MovePayload{Cell: cell})
	require.NoError(t, err)
	return engine.HandleAction(sessionID, match.Action{Data: raw})
}

func roleOf(engine *match.Engine, userID string) string {
	for _, p := range engine.State().Participants {
		if p.UserID == userID {
			return p.Role
		}
	}
	return ""
}

func TestRolesAssignedInJoinOrder(t *testing.T) {
	engine, _, _ := newMatch(t, match.Settings{})

	require.NoError(t, engine.Connect("s-ana", match.Identity{UserID: "ana", Name: "Ana"}))
	require.NoError(t, engine.Connect("s-bo", match.Identity{UserID: "bo", Name: "Bo"}))

	assert.Equal(t, tictactoe.RoleX, roleOf(engine, "ana"))
	assert.Equal(t, tictactoe.RoleO, roleOf(engine, "bo"))

	state := engine.State()
	require.True(t, state.Started)
	require.NotNil(t, state.CurrentTurn)
	assert.Equal(t, "ana", state.CurrentTurn.UserID, "X moves first")
}

func TestRandomSeatOrderStillCoversBothRoles(t *testing.T) {
	engine, _, _ := newMatch(t, match.Settings{SeatOrder: tictactoe.SeatOrderRandom})

	require.NoError(t, engine.Connect("s-ana", match.Identity{UserID: "ana", Name: "Ana"}))
	require.NoError(t, engine.Connect("s-bo", match.Identity{UserID: "bo", Name: "Bo"}))

	roles := map[string]bool{roleOf(engine, "ana"): true, roleOf(engine, "bo"): true}
	assert.True(t, roles[tictactoe.RoleX])
	assert.True(t, roles[tictactoe.RoleO])

	// Whoever drew X opens the game.
	state := engine.State()
	require.NotNil(t, state.CurrentTurn)
	assert.Equal(t, tictactoe.RoleX, state.CurrentTurn.Role)
}

func TestIllegalMovesRejected(t *testing.T) {
	engine, _, _ := newMatch(t, match.Settings{})
	require.NoError(t, engine.Connect("s-ana", match.Identity{UserID: "ana", Name: "Ana"}))
	require.NoError(t, engine.Connect("s-bo", match.Identity{UserID: "bo", Name: "Bo"}))

	// O cannot move before X.
	err := claim(t, engine, "s-bo", 4)
	require.Equal(t, match.CodeInvalidAction, match.CodeOf(err))

	require.NoError(t, claim(t, engine, "s-ana", 4))

	// Occupied cell.
	err = claim(t, engine, "s-bo", 4)
	require.Equal(t, match.CodeInvalidAction, match.CodeOf(err))

	// Out of range.
	err = claim(t, engine, "s-bo", 9)
	require.Equal(t, match.CodeInvalidAction, match.CodeOf(err))

	// Malformed payload.
	err = engine.HandleAction("s-bo", match.Action{Data: json.RawMessage(`"north"`)})
	require.Equal(t, match.CodeInvalidAction, match.CodeOf(err))

	// Only the accepted claim reached the history, and the turn never moved.
	state := engine.State()
	require.Len(t, state.Moves, 1)
	assert.Equal(t, "Xb2", state.Moves[0].Notation)
	assert.Equal(t, "bo", state.CurrentTurn.UserID)
}

func TestWinOnDecisiveLine(t *testing.T) {
	engine, rules, _ := newMatch(t, match.Settings{})
	require.NoError(t, engine.Connect("s-ana", match.Identity{UserID: "ana", Name: "Ana"}))
	require.NoError(t, engine.Connect("s-bo", match.Identity{UserID: "bo", Name: "Bo"}))

	// X takes the top row.
	require.NoError(t, claim(t, engine, "s-ana", 0))
	require.NoError(t, claim(t, engine, "s-bo", 3))
	require.NoError(t, claim(t, engine, "s-ana", 1))
	require.NoError(t, claim(t, engine, "s-bo", 4))
	require.NoError(t, claim(t, engine, "s-ana", 2))

	state := engine.State()
	require.True(t, state.Ended)
	require.NotNil(t, state.Result)
	require.Len(t, state.Result.Winners, 1)
	assert.Equal(t, "ana", state.Result.Winners[0].UserID)
	assert.Nil(t, state.CurrentTurn)

	board := rules.Board()
	assert.Equal(t, tictactoe.RoleX, board[0])
	assert.Equal(t, tictactoe.RoleX, board[1])
	assert.Equal(t, tictactoe.RoleX, board[2])
}

func TestMoveNotationReadsRoleAndCell(t *testing.T) {
	engine, _, _ := newMatch(t, match.Settings{})
	require.NoError(t, engine.Connect("s-ana", match.Identity{UserID: "ana", Name: "Ana"}))
	require.NoError(t, engine.Connect("s-bo", match.Identity{UserID: "bo", Name: "Bo"}))

	require.NoError(t, claim(t, engine, "s-ana", 0))
	require.NoError(t, claim(t, engine, "s-bo", 8))

	state := engine.State()
	require.Len(t, state.Moves, 2)
	assert.Equal(t, "Xa3", state.Moves[0].Notation)
	assert.Equal(t, "Oc1", state.Moves[1].Notation)
}

// TestFullMatchLifecycle walks one complete match through every transition:
// join with auto-start, moves with grace credit, a mid-match drop and rejoin
// inside the reconnection window, a drawn finish, and terminal rejection.
func TestFullMatchLifecycle(t *testing.T) {
	engine, _, clk := newMatch(t, match.Settings{
		InitialClock:       30 * time.Second,
		GraceCredit:        20 * time.Second,
		MinimumGraceCredit: 10 * time.Second,
		ReconnectionWindow: 60 * time.Second,
	})

	require.NoError(t, engine.Connect("s-ana", match.Identity{UserID: "ana", Name: "Ana"}))
	require.False(t, engine.Started())
	require.NoError(t, engine.Connect("s-bo", match.Identity{UserID: "bo", Name: "Bo"}))
	require.True(t, engine.Started(), "match starts when the roster fills")

	// Ana thinks for 5s, then claims the center. Yielding below the initial
	// budget credits the default grace: 25s + 20s.
	clk.Advance(5 * time.Second)
	require.NoError(t, claim(t, engine, "s-ana", 4))

	state := engine.State()
	assert.Equal(t, int64(45_000), state.Participants[0].RemainingTime.AsMilliseconds)
	assert.Equal(t, "bo", state.CurrentTurn.UserID)

	// Bo drops mid-turn and rejoins on a fresh session inside the window.
	require.NoError(t, engine.Disconnect("s-bo", false))
	clk.Advance(10 * time.Second)
	require.NoError(t, engine.Connect("s-bo-2", match.Identity{UserID: "bo", Name: "Bo"}))

	state = engine.State()
	bo := state.Participants[1]
	assert.Equal(t, "s-bo-2", bo.SessionID)
	assert.Equal(t, match.ConnectionOnline, bo.Connection)
	assert.Equal(t, tictactoe.RoleO, bo.Role)
	assert.Equal(t, "bo", state.CurrentTurn.UserID, "the rejoined seat still holds the turn")
	assert.LessOrEqual(t, bo.RemainingTime.AsMilliseconds, int64(20_000),
		"time kept running against the dropped turn holder")

	// Play to a draw: the sequence fills the board with no decisive line.
	require.NoError(t, claim(t, engine, "s-bo-2", 8))
	require.NoError(t, claim(t, engine, "s-ana", 0))
	require.NoError(t, claim(t, engine, "s-bo-2", 2))
	require.NoError(t, claim(t, engine, "s-ana", 5))
	require.NoError(t, claim(t, engine, "s-bo-2", 3))
	require.NoError(t, claim(t, engine, "s-ana", 6))
	require.NoError(t, claim(t, engine, "s-bo-2", 1))
	require.NoError(t, claim(t, engine, "s-ana", 7))

	state = engine.State()
	require.True(t, state.Ended)
	require.NotNil(t, state.Result)
	assert.True(t, state.Result.Draw)
	assert.Empty(t, state.Result.Winners)
	assert.Len(t, state.Moves, 9)

	// The finished match refuses further play but keeps its history.
	err := claim(t, engine, "s-ana", 4)
	assert.Equal(t, match.CodeAlreadyEnded, match.CodeOf(err))
	assert.Len(t, engine.State().Moves, 9)
}
