package gateway

import (
	"encoding/json"

	"github.com/okabelabs/turnroom/internal/match"
	"github.com/okabelabs/turnroom/internal/match/publish"
)

// Client message types. A connected socket speaks a three-verb protocol:
// claim a seat, act, or leave for good. Everything else (reconnection,
// timers, broadcasts) is engine-driven.
const (
	ClientJoin  = "join"
	ClientMove  = "move"
	ClientLeave = "leave"
)

// ClientMessage is the envelope for everything a client sends after the
// upgrade. Data is forwarded to the rules capability untouched.
type ClientMessage struct {
	Type string          `json:"type"`
	Role string          `json:"role,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Server message types.
const (
	ServerState = "state"
	ServerEvent = "event"
	ServerError = "error"
)

// ServerMessage is the envelope for everything sent to a client.
type ServerMessage struct {
	Type    string         `json:"type"`
	MatchID string         `json:"match_id"`
	Event   *publish.Event `json:"event,omitempty"`
	State   any            `json:"state,omitempty"`
	Error   *ErrorBody     `json:"error,omitempty"`
}

// ErrorBody carries a typed engine rejection to the client.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorMessage(matchID string, err error) ServerMessage {
	body := &ErrorBody{Code: string(match.CodeOf(err)), Message: err.Error()}
	if body.Code == "" {
		body.Code = "INTERNAL"
	}
	return ServerMessage{Type: ServerError, MatchID: matchID, Error: body}
}
