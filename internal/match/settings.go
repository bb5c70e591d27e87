package match

import "time"

// Timing defaults. These are configuration, not law: every one of them can be
// overridden through Settings.
const (
	DefaultInitialClock       = 30 * time.Second
	DefaultGraceCredit        = 20 * time.Second
	DefaultMinimumGraceCredit = 10 * time.Second
	DefaultReconnectionWindow = 60 * time.Second
)

// Settings configures one match engine instance.
type Settings struct {
	// InitialClock is the time budget each participant starts with.
	InitialClock time.Duration `json:"initial_clock"`

	// GraceCredit is credited to a participant's clock when their turn ends
	// and their remaining time is at or below InitialClock.
	GraceCredit time.Duration `json:"grace_credit"`

	// MinimumGraceCredit is credited instead when the clock is already above
	// InitialClock, so rapid turn exchanges cannot accumulate unbounded time.
	MinimumGraceCredit time.Duration `json:"minimum_grace_credit"`

	// TickInterval is the countdown tick granularity. Defaults to 1s.
	TickInterval time.Duration `json:"tick_interval"`

	// ReconnectionWindow bounds how long an abruptly-disconnected
	// participant may resume the same seat before it is finalized.
	ReconnectionWindow time.Duration `json:"reconnection_window"`

	// SeatOrder is passed through to the rules module's seat assignment
	// (e.g. "fifo" or "random"). Interpretation is game-specific.
	SeatOrder string `json:"seat_order,omitempty"`

	// OnClockExpired, when set, fires once the first time a running clock
	// crosses zero. The engine itself never forfeits on expiry; that policy
	// belongs to the rules module or an outer supervisor.
	OnClockExpired func(identity Identity) `json:"-"`

	// Visibility, when set, reshapes a state snapshot per viewer before the
	// transport sends it, e.g. to hide an opponent's hand. It must be pure:
	// it receives a detached copy and returns what the viewer may see. Nil
	// means every viewer sees the full state.
	Visibility func(viewerUserID string, state *State) any `json:"-"`
}

// ViewFor applies the visibility hook for one viewer. The engine does not
// call this itself; the transport layer does, once per recipient.
func (s Settings) ViewFor(viewerUserID string, state *State) any {
	if s.Visibility == nil {
		return state
	}
	return s.Visibility(viewerUserID, state)
}

// withDefaults fills zero-valued timing settings.
func (s Settings) withDefaults() Settings {
	if s.InitialClock <= 0 {
		s.InitialClock = DefaultInitialClock
	}
	if s.GraceCredit <= 0 {
		s.GraceCredit = DefaultGraceCredit
	}
	if s.MinimumGraceCredit <= 0 {
		s.MinimumGraceCredit = DefaultMinimumGraceCredit
	}
	if s.TickInterval <= 0 {
		s.TickInterval = time.Second
	}
	if s.ReconnectionWindow <= 0 {
		s.ReconnectionWindow = DefaultReconnectionWindow
	}
	return s
}
