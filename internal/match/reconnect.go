package match

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// reconnectBroker grants a bounded grace window for an abruptly-disconnected
// participant to resume the same seat before the seat is finalized. A second
// disconnect for an identity with an open window cancels that window and
// starts a fresh one.
type reconnectBroker struct {
	clock  clockwork.Clock
	window time.Duration

	// expire is invoked through the engine's serialization point when a
	// window elapses without resumption.
	expire func(userID string)

	mu      sync.Mutex
	pending map[string]*reconnectWindow
}

type reconnectWindow struct {
	timer  clockwork.Timer
	cancel chan struct{}
}

func newReconnectBroker(clk clockwork.Clock, window time.Duration, expire func(userID string)) *reconnectBroker {
	return &reconnectBroker{
		clock:   clk,
		window:  window,
		expire:  expire,
		pending: make(map[string]*reconnectWindow),
	}
}

// open starts (or restarts) the reconnection window for a user id.
func (b *reconnectBroker) open(userID string) {
	b.mu.Lock()
	if existing, ok := b.pending[userID]; ok {
		close(existing.cancel)
		stopAndDrainTimer(existing.timer)
		log.Debug().Str("user_id", userID).Msg("restarted reconnection window")
	}
	w := &reconnectWindow{
		timer:  b.clock.NewTimer(b.window),
		cancel: make(chan struct{}),
	}
	b.pending[userID] = w
	b.mu.Unlock()

	go func() {
		select {
		case <-w.timer.Chan():
			b.mu.Lock()
			if b.pending[userID] == w {
				delete(b.pending, userID)
			}
			b.mu.Unlock()
			b.expire(userID)
		case <-w.cancel:
		}
	}()
}

// resume cancels the pending window for a user id, reporting whether one was
// open.
func (b *reconnectBroker) resume(userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.pending[userID]
	if !ok {
		return false
	}
	close(w.cancel)
	stopAndDrainTimer(w.timer)
	delete(b.pending, userID)
	return true
}

// cancelAll drops every pending window. Safe to call from teardown paths.
func (b *reconnectBroker) cancelAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for userID, w := range b.pending {
		close(w.cancel)
		stopAndDrainTimer(w.timer)
		delete(b.pending, userID)
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel so the
// waiting goroutine cannot leak a stale fire.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
