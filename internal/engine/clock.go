package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/omakhlouk/ets-simulation/internal/ledger"
)

// Clock counts the phase timer down in real time.
type Clock struct {
	Game     *Game
	Interval time.Duration // one timer second, default 1s
	Ticks    uint64        // ticks processed since start

	// OnAdvance is called after the clock stepped the game to a new phase.
	OnAdvance func(phase ledger.Phase, round int)
}

// NewClock creates a clock for g with a one second interval.
func NewClock(g *Game) *Clock {
	return &Clock{Game: g, Interval: time.Second}
}

// Run drives the timer until ctx is cancelled.
func (c *Clock) Run(ctx context.Context) {
	interval := c.Interval
	if interval <= 0 {
		interval = time.Second
	}
	slog.Info("phase clock started", "interval", interval)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("phase clock stopped", "ticks", c.Ticks)
			return
		case <-t.C:
			c.step()
		}
	}
}

func (c *Clock) step() {
	c.Ticks++
	if !c.Game.TickTimer() {
		return
	}
	s := c.Game.State()
	slog.Info("phase timer expired, advanced", "round", s.CurrentRound, "phase", s.CurrentPhase)
	if c.OnAdvance != nil {
		c.OnAdvance(s.CurrentPhase, s.CurrentRound)
	}
}

// TickTimer counts the phase timer down one second. When it is out, manual
// time control is off and no full run is active, the phase is stepped as
// if the facilitator had advanced it. It reports whether that happened.
func (g *Game) TickTimer() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.state
	if g.timerPaused || s.SessionID == "" || s.CurrentPhase == ledger.PhaseCompleted {
		return false
	}
	if s.PhaseTimer > 0 {
		s.PhaseTimer--
		if s.PhaseTimer > 0 {
			return false
		}
	}
	if s.IsManualMode || g.running {
		return false
	}
	g.stepPhase()
	return true
}
