// Package tictactoe is a complete rules capability for the match engine: a
// two-seat tic-tac-toe game. It doubles as the conformance fixture for
// engine behavior that needs a concrete game.
package tictactoe

import (
	"encoding/json"
	"math/rand"

	"github.com/okabelabs/turnroom/internal/match"
)

// Roles are the two seats. X always moves first.
const (
	RoleX = "X"
	RoleO = "O"
)

// SeatOrderRandom assigns the first joiner a random role instead of X.
const SeatOrderRandom = "random"

const boardCells = 9

var decisiveLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

var cellNames = [boardCells]string{
	"a3", "b3", "c3",
	"a2", "b2", "c2",
	"a1", "b1", "c1",
}

// MovePayload is the action data a client sends: the cell index, row-major
// from the top-left.
type MovePayload struct {
	Cell int `json:"cell"`
}

// Rules implements match.Rules for tic-tac-toe. One instance serves exactly
// one match; the engine serializes every hook invocation.
type Rules struct {
	order string
	board [boardCells]string
}

// NewRules creates a tic-tac-toe rules capability.
func NewRules() *Rules {
	return &Rules{}
}

// OnInit reports the fixed two-seat bounds and records the seat order policy.
func (r *Rules) OnInit(settings match.Settings) (int, int) {
	r.order = settings.SeatOrder
	return 2, 2
}

// OnJoin assigns a role. Rejoins inherit the previous seat's role. First
// joins take X then O in join order, unless the seat order is random, in
// which case the first joiner flips a coin and the second takes what is
// left.
func (r *Rules) OnJoin(t match.Table, identity match.Identity, existing *match.Participant) (*match.Participant, error) {
	p := &match.Participant{}
	if existing != nil {
		p.Role = existing.Role
		return p, nil
	}

	seated := t.Participants()
	if len(seated) == 0 {
		p.Role = RoleX
		if r.order == SeatOrderRandom && rand.Intn(2) == 0 {
			p.Role = RoleO
		}
		return p, nil
	}

	p.Role = RoleO
	if seated[0].Role == RoleO {
		p.Role = RoleX
	}
	return p, nil
}

// OnStart gives the first turn to the X seat.
func (r *Rules) OnStart(t match.Table) error {
	t.SetTurn(r.participantByRole(t, RoleX))
	return nil
}

// OnMove validates and applies one cell claim, then either passes the turn
// or finishes the match.
func (r *Rules) OnMove(t match.Table, p *match.Participant, action match.Action) error {
	current := t.State().CurrentTurn
	if current == nil || current.UserID != p.UserID {
		return match.NewInvalidAction("not your turn")
	}

	var payload MovePayload
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return match.NewInvalidAction("malformed move payload")
	}
	if payload.Cell < 0 || payload.Cell >= boardCells {
		return match.NewInvalidAction("cell %d out of range", payload.Cell)
	}
	if r.board[payload.Cell] != "" {
		return match.NewInvalidAction("cell %s already taken", cellNames[payload.Cell])
	}

	r.board[payload.Cell] = p.Role
	t.RecordMove(p, p.Role+cellNames[payload.Cell])

	if winner := r.winningRole(); winner != "" {
		result := match.Result{}
		if w := r.participantByRole(t, winner); w != nil {
			result.Winners = []match.Identity{w.Identity()}
		}
		t.Finish(result)
		return nil
	}
	if r.full() {
		t.Finish(match.Result{Draw: true})
		return nil
	}

	next := RoleO
	if p.Role == RoleO {
		next = RoleX
	}
	t.SetTurn(r.participantByRole(t, next))
	return nil
}

// OnDispose has nothing to release; the board dies with the rules value.
func (r *Rules) OnDispose() {}

// Board returns a copy of the current board for rendering and tests.
func (r *Rules) Board() [boardCells]string {
	return r.board
}

func (r *Rules) participantByRole(t match.Table, role string) *match.Participant {
	for _, p := range t.Participants() {
		if p.Role == role {
			return p
		}
	}
	return nil
}

func (r *Rules) winningRole() string {
	for _, line := range decisiveLines {
		role := r.board[line[0]]
		if role != "" && role == r.board[line[1]] && role == r.board[line[2]] {
			return role
		}
	}
	return ""
}

func (r *Rules) full() bool {
	for _, cell := range r.board {
		if cell == "" {
			return false
		}
	}
	return true
}
