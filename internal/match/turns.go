package match

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okabelabs/turnroom/internal/match/clock"
)

// turnClocks owns every participant countdown, held in an arena indexed by
// seat index rather than by participant value. Participant values are
// replaced wholesale on reconnect; the seat index stays stable, so clocks
// never dangle on a stale value.
type turnClocks struct {
	clocks []*clock.Countdown

	initial time.Duration
	grace   time.Duration
	minimum time.Duration
}

func newTurnClocks(s Settings) *turnClocks {
	return &turnClocks{
		initial: s.InitialClock,
		grace:   s.GraceCredit,
		minimum: s.MinimumGraceCredit,
	}
}

func (tc *turnClocks) add(c *clock.Countdown) {
	tc.clocks = append(tc.clocks, c)
}

func (tc *turnClocks) at(seat int) *clock.Countdown {
	if seat < 0 || seat >= len(tc.clocks) {
		return nil
	}
	return tc.clocks[seat]
}

// swap retires the clock at a seat and installs its replacement. Used on
// reconnect, when the stale participant's timer is discarded.
func (tc *turnClocks) swap(seat int, c *clock.Countdown) {
	if old := tc.at(seat); old != nil {
		old.Clear()
	}
	tc.clocks[seat] = c
}

// release clears the clock at a seat and drops it from the arena, keeping
// the arena aligned with the roster. Only valid before the match starts;
// started matches never lose seats.
func (tc *turnClocks) release(seat int) {
	if c := tc.at(seat); c != nil {
		c.Clear()
	}
	tc.clocks = append(tc.clocks[:seat], tc.clocks[seat+1:]...)
}

// pauseWithGrace pauses the clock for the seat that just yielded the turn and
// credits grace time. A clock already above the initial budget receives the
// minimum credit instead of the default one, which keeps rapid turn
// exchanges from accumulating unbounded time while still restoring a fair
// buffer after genuine waiting.
func (tc *turnClocks) pauseWithGrace(seat int) {
	c := tc.at(seat)
	if c == nil || c.Paused() {
		return
	}
	c.Pause()

	credit := tc.grace
	if c.Remaining() > tc.initial {
		credit = tc.minimum
	}
	c.Increase(credit)

	log.Debug().
		Int("seat", seat).
		Dur("credit", credit).
		Dur("remaining", c.Remaining()).
		Msg("turn clock paused with grace credit")
}

func (tc *turnClocks) resume(seat int) {
	if c := tc.at(seat); c != nil {
		c.Resume()
	}
}

func (tc *turnClocks) pauseAll() {
	for _, c := range tc.clocks {
		c.Pause()
	}
}

func (tc *turnClocks) clearAll() {
	for _, c := range tc.clocks {
		c.Clear()
	}
}
