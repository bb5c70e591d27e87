package match

import (
	"encoding/json"
	"time"
)

// Identity is the stable, transport-authenticated identity of a seat holder.
// UserID is the join-equality key; the transport session id changes on every
// reconnect while UserID does not.
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// ConnectionStatus tracks the liveness of a participant's transport session.
type ConnectionStatus string

const (
	ConnectionUnknown ConnectionStatus = "unknown"
	ConnectionOnline  ConnectionStatus = "online"
	ConnectionOffline ConnectionStatus = "offline"
)

// ClockState mirrors a participant's countdown timer into the authoritative
// state tree so it replicates to viewers.
type ClockState struct {
	Minutes        int   `json:"minutes"`
	Seconds        int   `json:"seconds"`
	AsMilliseconds int64 `json:"as_milliseconds"`
}

func clockStateOf(remaining time.Duration) ClockState {
	return ClockState{
		Minutes:        int(remaining.Minutes()) % 60,
		Seconds:        int(remaining.Seconds()) % 60,
		AsMilliseconds: remaining.Milliseconds(),
	}
}

// Participant is one seat in a match. A participant value is replaced
// wholesale on reconnect: the replacement inherits Connection, RemainingTime,
// and turn ownership from the stale value, which is then discarded together
// with its countdown. At most one participant exists per UserID.
type Participant struct {
	SessionID     string           `json:"session_id"`
	UserID        string           `json:"user_id"`
	Name          string           `json:"name"`
	Role          string           `json:"role,omitempty"`
	Connection    ConnectionStatus `json:"connection"`
	RemainingTime ClockState       `json:"remaining_time"`
}

// Identity returns the participant's stable identity.
func (p *Participant) Identity() Identity {
	return Identity{UserID: p.UserID, Name: p.Name}
}

// Move is an immutable record appended to the match history.
type Move struct {
	Notation string `json:"notation"`
	UserID   string `json:"user_id"`
}

// Result is set exactly once when the rules module concludes the match. Once
// set, the match is terminal and no further action is processed.
type Result struct {
	Draw    bool       `json:"draw"`
	Winners []Identity `json:"winners,omitempty"`
}

// Action is the envelope for a client move payload. Role, when present, is
// the seat the client claims to act for; the engine rejects the action if it
// does not match the resolved participant's seat. Data is interpreted by the
// rules module.
type Action struct {
	Role string          `json:"role,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// State is the authoritative state tree of one match. The live tree is owned
// exclusively by the engine; Engine.State returns a deep copy that is safe to
// hand to transport and replication collaborators.
type State struct {
	Started      bool           `json:"started"`
	Ended        bool           `json:"ended"`
	Participants []*Participant `json:"participants"`
	CurrentTurn  *Participant   `json:"current_turn,omitempty"`
	Moves        []Move         `json:"moves"`
	Result       *Result        `json:"result,omitempty"`
}

// Copy returns a deep copy of the state tree.
func (s *State) Copy() *State {
	out := &State{
		Started: s.Started,
		Ended:   s.Ended,
		Moves:   append([]Move(nil), s.Moves...),
	}
	for _, p := range s.Participants {
		clone := *p
		out.Participants = append(out.Participants, &clone)
		if s.CurrentTurn == p {
			out.CurrentTurn = &clone
		}
	}
	if s.Result != nil {
		result := Result{Draw: s.Result.Draw, Winners: append([]Identity(nil), s.Result.Winners...)}
		out.Result = &result
	}
	return out
}
