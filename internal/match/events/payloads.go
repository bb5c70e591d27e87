// Package events defines the payloads the match engine emits after mutating
// transitions. They are shared between the engine, the publisher backends,
// and the websocket gateway.
package events

import "time"

// Event type identifiers, used as publish subjects and websocket frame types.
const (
	TypeParticipantJoined       = "participant.joined"
	TypeParticipantDisconnected = "participant.disconnected"
	TypeParticipantReconnected  = "participant.reconnected"
	TypeSeatReleased            = "seat.released"
	TypeMatchStarted            = "match.started"
	TypeTurnChanged             = "turn.changed"
	TypeMoveAccepted            = "move.accepted"
	TypeMatchEnded              = "match.ended"
	TypeClockExpired            = "clock.expired"
)

// ParticipantJoinedPayload is emitted after a successful admission, both for
// first joins and for seat-resuming rejoins.
type ParticipantJoinedPayload struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Role        string    `json:"role,omitempty"`
	Rejoined    bool      `json:"rejoined"`
	SeatCount   int       `json:"seat_count"`
	SeatLimit   int       `json:"seat_limit"`
	JoinedAt    time.Time `json:"joined_at"`
	RemainingMs int64     `json:"remaining_ms"`
}

// ParticipantDisconnectedPayload is emitted when a session drops. A
// non-consented disconnect opens a reconnection window.
type ParticipantDisconnectedPayload struct {
	UserID         string    `json:"user_id"`
	Consented      bool      `json:"consented"`
	WindowMs       int64     `json:"window_ms,omitempty"`
	DisconnectedAt time.Time `json:"disconnected_at"`
}

// ParticipantReconnectedPayload is emitted when a dropped session resumes
// inside its reconnection window.
type ParticipantReconnectedPayload struct {
	UserID        string    `json:"user_id"`
	HoldsTurn     bool      `json:"holds_turn"`
	ReconnectedAt time.Time `json:"reconnected_at"`
}

// SeatReleasedPayload is emitted when a reconnection window elapses and the
// seat is finalized as abandoned.
type SeatReleasedPayload struct {
	UserID     string    `json:"user_id"`
	SeatFreed  bool      `json:"seat_freed"` // true pre-start; false once started
	ReleasedAt time.Time `json:"released_at"`
}

// MatchStartedPayload is emitted when the roster fills and the match starts.
type MatchStartedPayload struct {
	StartedAt      time.Time `json:"started_at"`
	Participants   int       `json:"participants"`
	InitialClockMs int64     `json:"initial_clock_ms"`
	CurrentTurn    string    `json:"current_turn,omitempty"`
}

// TurnChangedPayload is emitted when turn ownership changes. Clients count
// the clock down locally from RemainingMs; the server stays authoritative.
type TurnChangedPayload struct {
	UserID      string `json:"user_id,omitempty"`
	Role        string `json:"role,omitempty"`
	RemainingMs int64  `json:"remaining_ms"`
}

// MoveAcceptedPayload is emitted after the rules module accepts a move.
type MoveAcceptedPayload struct {
	UserID   string    `json:"user_id"`
	Notation string    `json:"notation"`
	MoveNum  int       `json:"move_num"`
	MadeAt   time.Time `json:"made_at"`
}

// MatchEndedPayload is emitted when the result is set and the match turns
// terminal.
type MatchEndedPayload struct {
	Draw    bool      `json:"draw"`
	Winners []string  `json:"winners,omitempty"`
	EndedAt time.Time `json:"ended_at"`
}

// ClockExpiredPayload is emitted when a running clock first crosses zero.
// The engine does not forfeit on expiry; consumers decide policy.
type ClockExpiredPayload struct {
	UserID    string    `json:"user_id"`
	ExpiredAt time.Time `json:"expired_at"`
}
