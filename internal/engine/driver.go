package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omakhlouk/ets-simulation/internal/ledger"
	"github.com/omakhlouk/ets-simulation/internal/npc"
)

// ErrSimulationRunning is returned when a full run is already in progress.
var ErrSimulationRunning = errors.New("engine: simulation already running")

// RunFullSimulation plays every round and phase with NPCs only, pacing
// phases with the configured delays. It blocks until the run ends.
//
// Pause takes effect at the next phase boundary. Cancelling ctx stops the
// run at the next boundary or delay; the phase in progress always finishes.
// A failure inside a phase ends the run with an error log entry and leaves
// the Game usable.
func (g *Game) RunFullSimulation(ctx context.Context) (err error) {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return ErrSimulationRunning
	}
	g.running = true
	g.paused = false
	g.resume = make(chan struct{})
	rounds := g.state.TotalRounds
	g.log(LogSystem, "Starting full simulation")
	slog.Info("full simulation started", "session", g.state.SessionID, "rounds", rounds)
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.running = false
		g.paused = false
		switch {
		case err == nil:
			slog.Info("full simulation completed", "session", g.state.SessionID)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			g.log(LogSystem, "Simulation aborted")
			slog.Warn("full simulation aborted", "session", g.state.SessionID)
		default:
			g.log(LogError, "Simulation error occurred")
			slog.Error("full simulation failed", "session", g.state.SessionID, "err", err)
		}
		g.save()
	}()

	for round := 1; round <= rounds; round++ {
		if err := g.awaitResume(ctx); err != nil {
			return err
		}
		if err := g.locked(func() {
			g.log(LogRound, fmt.Sprintf("Starting Round %d", round))
			g.state.CurrentRound = round
		}); err != nil {
			return err
		}

		for _, phase := range ledger.Phases {
			if err := g.awaitResume(ctx); err != nil {
				return err
			}
			if err := g.runPhase(ctx, phase); err != nil {
				return err
			}
		}

		if err := g.locked(func() {
			g.log(LogRound, fmt.Sprintf("Round %d completed", round))
			if round < rounds {
				for _, p := range g.state.Players {
					p.PhaseProgress.Reset()
				}
			}
		}); err != nil {
			return err
		}
	}

	return g.locked(func() {
		g.state.CurrentPhase = ledger.PhaseCompleted
		g.state.PhaseTimer = 0
		g.log(LogComplete, "Full simulation completed!")
	})
}

func (g *Game) runPhase(ctx context.Context, phase ledger.Phase) error {
	if err := g.locked(func() {
		g.state.SetPhase(phase, g.now())
		g.log(LogPhase, fmt.Sprintf("Starting %s phase simulation", phase))
		g.record(npc.Pass(g.state.Players, phase, npc.FullRun, g.market(), g.rng))
	}); err != nil {
		return err
	}

	if phase == ledger.PhaseOTCOffsets {
		if err := g.locked(func() {
			g.record(npc.AmbientOTC(g.state.Players, g.market(), g.rng))
		}); err != nil {
			return err
		}
		if err := g.sleep(ctx, g.tradeDelay); err != nil {
			return err
		}
		if err := g.locked(func() {
			g.record(npc.AmbientOffsets(g.state.Players, g.market()))
		}); err != nil {
			return err
		}
	}

	if err := g.locked(func() {
		g.state.score()
		g.save()
	}); err != nil {
		return err
	}
	if err := g.sleep(ctx, g.phaseDelay); err != nil {
		return err
	}
	return g.locked(func() {
		g.log(LogPhase, fmt.Sprintf("%s phase completed", phase))
	})
}

// locked runs one step of the driver under the game lock and turns a panic
// into an error.
func (g *Game) locked(fn func()) (err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simulation step panicked: %v", r)
		}
	}()
	fn()
	return nil
}

// sleep waits d or until ctx is done.
func (g *Game) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// awaitResume blocks while the run is paused.
func (g *Game) awaitResume(ctx context.Context) error {
	g.mu.Lock()
	paused, resume := g.paused, g.resume
	g.mu.Unlock()
	if !paused {
		return ctx.Err()
	}
	select {
	case <-resume:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PauseSimulation suspends a full run at the next phase boundary and stops
// the phase clock.
func (g *Game) PauseSimulation() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.timerPaused = true
	g.resume = make(chan struct{})
	g.log(LogSystem, "Simulation paused")
}

// ResumeSimulation continues a paused run and restarts the phase clock.
func (g *Game) ResumeSimulation() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timerPaused = false
	if !g.paused {
		return
	}
	g.paused = false
	close(g.resume)
	g.log(LogSystem, "Simulation resumed")
}

// SimulationRunning reports whether a full run is in progress.
func (g *Game) SimulationRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// SimulationPaused reports whether a pause has been requested.
func (g *Game) SimulationPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}
