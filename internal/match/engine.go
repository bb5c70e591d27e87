// Package match implements the generic lifecycle engine for multiplayer
// turn-based matches: admission and seat assignment, turn-ordered action
// processing, per-participant countdown clocks with grace restoration, and
// disconnect/reconnect continuity. Game-specific decisions are delegated to
// an injected Rules capability.
package match

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/okabelabs/turnroom/internal/match/clock"
	"github.com/okabelabs/turnroom/internal/match/events"
	"github.com/okabelabs/turnroom/internal/match/publish"
)

// Engine is the state machine for one match. Every transition - connect,
// disconnect, reconnect, action, dispose - and every clock tick is applied
// through a single mutex, so no two transitions for the same match ever
// interleave. Different engines share nothing and run fully independently.
//
// Start policy: the engine auto-starts the instant the roster reaches the
// maximum participant count. There is no per-client readiness acknowledgment.
type Engine struct {
	mu sync.Mutex

	id        uuid.UUID
	clk       clockwork.Clock
	settings  Settings
	rules     Rules
	publisher publish.Publisher

	initialized bool
	disposed    bool

	state  State
	roster roster
	clocks *turnClocks
	broker *reconnectBroker

	min, max int

	// expired tracks seats whose clock already crossed zero so the expiry
	// hook fires once per charge.
	expired map[string]bool

	pending []publish.Event
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithPublisher sets the event publisher. Defaults to a log publisher.
func WithPublisher(p publish.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithID sets the match id. Defaults to a fresh uuid.
func WithID(id uuid.UUID) Option {
	return func(e *Engine) { e.id = id }
}

// New creates an engine bound to a rules capability. The engine is unusable
// until Init.
func New(rules Rules, opts ...Option) *Engine {
	e := &Engine{
		id:        uuid.New(),
		rules:     rules,
		publisher: publish.NewLogPublisher(),
		expired:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ID returns the match id.
func (e *Engine) ID() uuid.UUID { return e.id }

// Init stores the clock source and settings and asks the rules capability
// for the participant bounds. It must be called exactly once before any
// other transition.
func (e *Engine) Init(clk clockwork.Clock, settings Settings) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return ErrDisposed
	}
	if e.initialized {
		return fmt.Errorf("match %s: already initialized", e.id)
	}

	e.clk = clk
	e.settings = settings.withDefaults()

	e.min, e.max = e.rules.OnInit(e.settings)
	if e.min < 1 || e.max < e.min {
		return fmt.Errorf("match %s: invalid participant bounds [%d, %d]", e.id, e.min, e.max)
	}

	e.clocks = newTurnClocks(e.settings)
	e.broker = newReconnectBroker(clk, e.settings.ReconnectionWindow, e.onWindowExpired)
	e.initialized = true

	log.Info().
		Str("match_id", e.id.String()).
		Int("min_participants", e.min).
		Int("max_participants", e.max).
		Dur("initial_clock", e.settings.InitialClock).
		Msg("match initialized")
	return nil
}

// Started reports whether the match has started.
func (e *Engine) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Started
}

// Ended reports whether the match is terminal.
func (e *Engine) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Ended
}

// Ready reports whether the roster holds the maximum participant count.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized && e.roster.len() == e.max
}

// MinClients returns the minimum participant bound.
func (e *Engine) MinClients() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.min
}

// MaxClients returns the maximum participant bound.
func (e *Engine) MaxClients() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.max
}

// ViewFor returns the state snapshot one viewer may see, after the
// visibility hook.
func (e *Engine) ViewFor(viewerUserID string) any {
	e.mu.Lock()
	settings := e.settings
	state := e.state.Copy()
	e.mu.Unlock()
	return settings.ViewFor(viewerUserID, state)
}

// State returns a deep copy of the authoritative state tree.
func (e *Engine) State() *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Copy()
}

// Connect admits a session for an identity. A first join claims a fresh
// seat through the rules capability; a join with a known user id resumes
// that seat with a replacement participant carrying over connection status,
// remaining time, and turn ownership. When admission completes the roster,
// the match starts synchronously.
func (e *Engine) Connect(sessionID string, identity Identity) error {
	e.mu.Lock()
	err := e.connectLocked(sessionID, identity)
	out := e.takePending()
	e.mu.Unlock()
	e.emit(out)
	return err
}

func (e *Engine) connectLocked(sessionID string, identity Identity) error {
	if e.disposed {
		return ErrDisposed
	}
	if !e.initialized {
		return fmt.Errorf("match %s: not initialized", e.id)
	}

	seat := e.roster.indexByUserID(identity.UserID)
	rejoined := seat != -1

	if !rejoined {
		// No late joins as new participants once the match started, and no
		// new seats past the maximum.
		if e.state.Started || e.roster.len() == e.max {
			return ErrUnavailableSeat
		}

		p, err := e.rules.OnJoin(table{e}, identity, nil)
		if err != nil {
			return fmt.Errorf("join %s: %w", identity.UserID, err)
		}
		e.adoptParticipant(p, sessionID, identity)

		seat = e.roster.add(p)
		e.clocks.add(e.newCountdown(p, e.settings.InitialClock))
		p.RemainingTime = clockStateOf(e.settings.InitialClock)
		p.Connection = ConnectionOnline
	} else {
		old := e.roster.participants[seat]

		p, err := e.rules.OnJoin(table{e}, identity, old)
		if err != nil {
			return fmt.Errorf("rejoin %s: %w", identity.UserID, err)
		}
		e.adoptParticipant(p, sessionID, identity)

		// The replacement inherits the stale participant's budget; the
		// stale countdown is retired with the stale value.
		remaining := e.clocks.at(seat).Remaining()
		replacement := e.newCountdown(p, remaining)
		e.clocks.swap(seat, replacement)

		heldTurn := e.state.CurrentTurn == old
		e.roster.replace(seat, p)
		if heldTurn {
			e.state.CurrentTurn = p
		}

		e.broker.resume(p.UserID)
		p.Connection = ConnectionOnline
		p.RemainingTime = clockStateOf(remaining)

		if e.state.Started && heldTurn && e.state.Result == nil {
			replacement.Resume()
		}
	}
	e.state.Participants = e.roster.participants

	log.Info().
		Str("match_id", e.id.String()).
		Str("session_id", sessionID).
		Str("user_id", identity.UserID).
		Bool("rejoined", rejoined).
		Int("seats", e.roster.len()).
		Int("max_seats", e.max).
		Msg("participant connected")

	p := e.roster.participants[seat]
	e.emitLocked(events.TypeParticipantJoined, events.ParticipantJoinedPayload{
		UserID:      p.UserID,
		Name:        p.Name,
		Role:        p.Role,
		Rejoined:    rejoined,
		SeatCount:   e.roster.len(),
		SeatLimit:   e.max,
		JoinedAt:    e.clk.Now(),
		RemainingMs: p.RemainingTime.AsMilliseconds,
	})

	if !e.state.Started && e.roster.len() == e.max {
		return e.startLocked()
	}
	return nil
}

// adoptParticipant stamps engine-owned identity fields onto a participant
// returned by the rules capability.
func (e *Engine) adoptParticipant(p *Participant, sessionID string, identity Identity) {
	p.SessionID = sessionID
	p.UserID = identity.UserID
	p.Name = identity.Name
	if p.Connection == "" {
		p.Connection = ConnectionUnknown
	}
}

func (e *Engine) startLocked() error {
	e.state.Started = true
	if err := e.rules.OnStart(table{e}); err != nil {
		e.state.Started = false
		return fmt.Errorf("start match %s: %w", e.id, err)
	}

	currentTurn := ""
	if e.state.CurrentTurn != nil {
		currentTurn = e.state.CurrentTurn.UserID
	}
	log.Info().
		Str("match_id", e.id.String()).
		Str("current_turn", currentTurn).
		Msg("match started")

	e.emitLocked(events.TypeMatchStarted, events.MatchStartedPayload{
		StartedAt:      e.clk.Now(),
		Participants:   e.roster.len(),
		InitialClockMs: e.settings.InitialClock.Milliseconds(),
		CurrentTurn:    currentTurn,
	})
	return nil
}

// Disconnect marks the session's participant offline. A consented leave
// finalizes the seat immediately; an involuntary drop opens a reconnection
// window and defers finalization to its expiry.
func (e *Engine) Disconnect(sessionID string, consented bool) error {
	e.mu.Lock()
	err := e.disconnectLocked(sessionID, consented)
	out := e.takePending()
	e.mu.Unlock()
	e.emit(out)
	return err
}

func (e *Engine) disconnectLocked(sessionID string, consented bool) error {
	if e.disposed {
		return ErrDisposed
	}
	p := e.roster.findBySessionID(sessionID)
	if p == nil {
		return ErrUnknownClient
	}

	p.Connection = ConnectionOffline

	log.Info().
		Str("match_id", e.id.String()).
		Str("user_id", p.UserID).
		Bool("consented", consented).
		Msg("participant disconnected")

	payload := events.ParticipantDisconnectedPayload{
		UserID:         p.UserID,
		Consented:      consented,
		DisconnectedAt: e.clk.Now(),
	}
	if consented {
		e.emitLocked(events.TypeParticipantDisconnected, payload)
		e.finalizeSeatLocked(p)
		return nil
	}

	payload.WindowMs = e.settings.ReconnectionWindow.Milliseconds()
	e.emitLocked(events.TypeParticipantDisconnected, payload)
	e.broker.open(p.UserID)
	return nil
}

// Reconnect marks the session's participant online again and resumes its
// clock when it holds the current turn.
func (e *Engine) Reconnect(sessionID string) error {
	e.mu.Lock()
	err := e.reconnectLocked(sessionID)
	out := e.takePending()
	e.mu.Unlock()
	e.emit(out)
	return err
}

func (e *Engine) reconnectLocked(sessionID string) error {
	if e.disposed {
		return ErrDisposed
	}
	p := e.roster.findBySessionID(sessionID)
	if p == nil {
		return ErrUnknownClient
	}

	p.Connection = ConnectionOnline
	e.broker.resume(p.UserID)

	holdsTurn := e.state.CurrentTurn == p
	if e.state.Started && holdsTurn && e.state.Result == nil {
		e.clocks.resume(e.roster.indexByUserID(p.UserID))
	}

	log.Info().
		Str("match_id", e.id.String()).
		Str("user_id", p.UserID).
		Bool("holds_turn", holdsTurn).
		Msg("participant reconnected")

	e.emitLocked(events.TypeParticipantReconnected, events.ParticipantReconnectedPayload{
		UserID:        p.UserID,
		HoldsTurn:     holdsTurn,
		ReconnectedAt: e.clk.Now(),
	})
	return nil
}

// HandleAction validates and applies a client action. A rejected action
// leaves move history, turn ownership, and clocks untouched.
func (e *Engine) HandleAction(sessionID string, action Action) error {
	e.mu.Lock()
	err := e.handleActionLocked(sessionID, action)
	out := e.takePending()
	e.mu.Unlock()
	e.emit(out)
	return err
}

func (e *Engine) handleActionLocked(sessionID string, action Action) error {
	if e.disposed {
		return ErrDisposed
	}
	if e.state.Result != nil {
		return ErrAlreadyEnded
	}

	p := e.roster.findBySessionID(sessionID)
	if p == nil {
		return ErrUnknownClient
	}
	if action.Role != "" && action.Role != p.Role {
		return ErrInvalidParticipant
	}

	movesBefore := len(e.state.Moves)
	if err := e.rules.OnMove(table{e}, p, action); err != nil {
		return err
	}

	for i, move := range e.state.Moves[movesBefore:] {
		e.emitLocked(events.TypeMoveAccepted, events.MoveAcceptedPayload{
			UserID:   move.UserID,
			Notation: move.Notation,
			MoveNum:  movesBefore + i + 1,
			MadeAt:   e.clk.Now(),
		})
	}
	return nil
}

// Dispose clears all clocks and reconnection windows and releases the rules
// capability. Idempotent; any later transition fails with ErrDisposed.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	if e.clocks != nil {
		e.clocks.clearAll()
	}
	if e.broker != nil {
		e.broker.cancelAll()
	}
	e.rules.OnDispose()
	e.mu.Unlock()

	log.Info().Str("match_id", e.id.String()).Msg("match disposed")
}

// onWindowExpired finalizes a seat whose reconnection window elapsed. It is
// invoked from the broker's timer goroutine and re-enters through the engine
// mutex like any other transition.
func (e *Engine) onWindowExpired(userID string) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	if p := e.roster.findByUserID(userID); p != nil && p.Connection == ConnectionOffline {
		e.finalizeSeatLocked(p)
	}
	out := e.takePending()
	e.mu.Unlock()
	e.emit(out)
}

// finalizeSeatLocked abandons a seat. Before start the seat is freed; once
// started the participant stays, irrecoverably offline, and its clock keeps
// counting down on its turn. Forfeiture on abandonment is policy left to the
// rules module or an outer supervisor.
func (e *Engine) finalizeSeatLocked(p *Participant) {
	freed := !e.state.Started
	if freed {
		if seat := e.roster.indexByUserID(p.UserID); seat != -1 {
			e.clocks.release(seat)
			e.roster.remove(p)
			e.state.Participants = e.roster.participants
		}
		if e.state.CurrentTurn == p {
			e.state.CurrentTurn = nil
		}
		delete(e.expired, p.UserID)
	}

	log.Info().
		Str("match_id", e.id.String()).
		Str("user_id", p.UserID).
		Bool("seat_freed", freed).
		Msg("seat finalized")

	e.emitLocked(events.TypeSeatReleased, events.SeatReleasedPayload{
		UserID:     p.UserID,
		SeatFreed:  freed,
		ReleasedAt: e.clk.Now(),
	})
}

// setTurnLocked moves turn ownership from the current holder to p. The
// previous holder's clock is paused and credited grace; p's clock resumes.
func (e *Engine) setTurnLocked(p *Participant) {
	prev := e.state.CurrentTurn
	if prev == p {
		return
	}

	if prev != nil {
		e.clocks.pauseWithGrace(e.roster.indexByUserID(prev.UserID))
	}
	e.state.CurrentTurn = p

	payload := events.TurnChangedPayload{}
	if p != nil {
		seat := e.roster.indexByUserID(p.UserID)
		e.clocks.resume(seat)
		payload.UserID = p.UserID
		payload.Role = p.Role
		payload.RemainingMs = p.RemainingTime.AsMilliseconds
	}
	e.emitLocked(events.TypeTurnChanged, payload)
}

// finishLocked sets the result exactly once and makes the match terminal.
func (e *Engine) finishLocked(result Result) {
	if e.state.Result != nil {
		log.Warn().Str("match_id", e.id.String()).Msg("result already set; ignoring")
		return
	}

	r := result
	e.state.Result = &r
	e.state.Ended = true
	e.state.CurrentTurn = nil
	e.clocks.pauseAll()

	winners := make([]string, 0, len(r.Winners))
	for _, w := range r.Winners {
		winners = append(winners, w.UserID)
	}
	log.Info().
		Str("match_id", e.id.String()).
		Bool("draw", r.Draw).
		Strs("winners", winners).
		Msg("match ended")

	e.emitLocked(events.TypeMatchEnded, events.MatchEndedPayload{
		Draw:    r.Draw,
		Winners: winners,
		EndedAt: e.clk.Now(),
	})
}

// newCountdown builds a countdown whose ticks mirror into the participant
// state and flow through the engine's serialization point.
func (e *Engine) newCountdown(p *Participant, initial time.Duration) *clock.Countdown {
	return clock.NewCountdown(e.clk, initial, clock.Config{
		Interval: e.settings.TickInterval,
		OnTick: func(remaining time.Duration) {
			p.RemainingTime = clockStateOf(remaining)
			if remaining <= 0 && !e.expired[p.UserID] {
				e.expired[p.UserID] = true
				e.emitLocked(events.TypeClockExpired, events.ClockExpiredPayload{
					UserID:    p.UserID,
					ExpiredAt: e.clk.Now(),
				})
				if e.settings.OnClockExpired != nil {
					e.settings.OnClockExpired(p.Identity())
				}
			}
		},
		Dispatch: e.dispatchTick,
	})
}

// dispatchTick applies an asynchronous clock tick through the engine mutex so
// ticks never race client-driven transitions.
func (e *Engine) dispatchTick(fn func()) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	fn()
	out := e.takePending()
	e.mu.Unlock()
	e.emit(out)
}

func (e *Engine) emitLocked(eventType string, payload any) {
	e.pending = append(e.pending, publish.NewEvent(e.id, eventType, e.clk.Now(), payload))
}

func (e *Engine) takePending() []publish.Event {
	out := e.pending
	e.pending = nil
	return out
}

// emit publishes queued events outside the engine mutex. Publish failures are
// logged, never propagated: event delivery must not corrupt or reject a
// transition that already committed.
func (e *Engine) emit(out []publish.Event) {
	for _, event := range out {
		if err := e.publisher.Publish(context.Background(), event); err != nil {
			log.Warn().
				Err(err).
				Str("match_id", e.id.String()).
				Str("event_type", event.Type).
				Msg("failed to publish match event")
		}
	}
}

// table adapts the engine to the Table surface handed to rules hooks. Hooks
// run with the engine mutex held.
type table struct{ e *Engine }

func (t table) State() *State                { return &t.e.state }
func (t table) Participants() []*Participant { return t.e.roster.participants }
func (t table) SetTurn(p *Participant)       { t.e.setTurnLocked(p) }
func (t table) Finish(result Result)         { t.e.finishLocked(result) }
func (t table) RecordMove(p *Participant, notation string) {
	t.e.state.Moves = append(t.e.state.Moves, Move{Notation: notation, UserID: p.UserID})
}
