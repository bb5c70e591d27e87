package match

// Rules is the pluggable game-specific capability. The engine holds it as an
// abstract dependency and never inspects concrete game state: seat
// assignment, move legality, and result computation all live behind these
// four hooks plus the start hook.
//
// Every hook runs on the engine's serialization context; implementations must
// not call back into exported Engine methods.
type Rules interface {
	// OnInit reports the participant bounds for this game.
	OnInit(settings Settings) (minParticipants, maxParticipants int)

	// OnJoin produces the participant for an admitted identity. existing is
	// non-nil on reconnect, in which case game-specific seat data (such as
	// the role) must carry over from it. The table exposes the current
	// roster for seat assignment; the hook must not mutate through it.
	OnJoin(t Table, identity Identity, existing *Participant) (*Participant, error)

	// OnStart initializes game state once the roster is complete. It must
	// set the initial turn through the table.
	OnStart(t Table) error

	// OnMove applies a validated participant's action. It may record moves,
	// pass the turn, and finish the match through the table. Returning an
	// error rejects the action without mutating engine state.
	OnMove(t Table, p *Participant, action Action) error

	// OnDispose releases any game-specific resources. Called exactly once.
	OnDispose()
}

// Table is the narrow surface the engine exposes to the rules module while a
// hook is running. All mutations go through it so the engine can keep timers
// and turn ownership consistent.
type Table interface {
	// State returns the live state tree. The rules module may read it freely
	// but must mutate only through the methods below.
	State() *State

	// Participants returns the seated participants in join order.
	Participants() []*Participant

	// SetTurn passes the turn, pausing and crediting the previous holder's
	// clock and resuming the next holder's. A nil participant leaves the
	// match with no active turn.
	SetTurn(p *Participant)

	// RecordMove appends an immutable move record to the history.
	RecordMove(p *Participant, notation string)

	// Finish sets the result and makes the match terminal.
	Finish(result Result)
}
