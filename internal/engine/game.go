package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/omakhlouk/ets-simulation/internal/catalog"
	"github.com/omakhlouk/ets-simulation/internal/ledger"
	"github.com/omakhlouk/ets-simulation/internal/npc"
)

// ErrUnknownEvent is returned by TriggerEvent for ids not in the catalog.
var ErrUnknownEvent = errors.New("engine: unknown market event")

// Store persists the serialized game state.
type Store interface {
	SaveState(ctx context.Context, data []byte) error
}

// Options configure a Game. Zero values get working defaults.
type Options struct {
	Catalog  *catalog.Catalog
	Defaults Settings
	Store    Store
	Rand     *rand.Rand
	Now      func() time.Time

	// Driver pacing between phases and between the two ambient passes.
	PhaseDelay time.Duration
	TradeDelay time.Duration

	// OnLog is called for every activity log entry, with the game locked.
	// It must not call back into the Game.
	OnLog func(LogEntry)
}

// Default driver pacing.
const (
	DefaultPhaseDelay = 3 * time.Second
	DefaultTradeDelay = time.Second
)

const saveTimeout = 5 * time.Second

// Game owns one GameState and serializes every read and write to it.
// Failed player actions are silent: they leave the state untouched and the
// returned snapshot shows no change.
type Game struct {
	mu       sync.Mutex
	state    *GameState
	catalog  *catalog.Catalog
	defaults Settings
	store    Store
	rng      *rand.Rand
	now      func() time.Time
	onLog    func(LogEntry)

	phaseDelay time.Duration
	tradeDelay time.Duration

	timerPaused bool

	// Full simulation run control, see driver.go.
	running bool
	paused  bool
	resume  chan struct{}
}

// NewGame creates a controller holding a fresh, uninitialized session.
func NewGame(opts Options) *Game {
	g := &Game{
		catalog:    opts.Catalog,
		defaults:   opts.Defaults,
		store:      opts.Store,
		rng:        opts.Rand,
		now:        opts.Now,
		onLog:      opts.OnLog,
		phaseDelay: opts.PhaseDelay,
		tradeDelay: opts.TradeDelay,
	}
	if g.catalog == nil {
		g.catalog = catalog.Default()
	}
	if g.defaults.TotalRounds == 0 {
		g.defaults = DefaultSettings()
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.phaseDelay < 0 {
		g.phaseDelay = 0
	}
	if g.tradeDelay < 0 {
		g.tradeDelay = 0
	}
	g.state = NewGameState("", g.defaults)
	return g
}

// Catalog returns the reference data the game assigns from.
func (g *Game) Catalog() *catalog.Catalog {
	return g.catalog
}

// Restore replaces the current state with a persisted one.
func (g *Game) Restore(data []byte) error {
	s, err := RestoreState(data, g.defaults)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
	return nil
}

// State returns a deep copy of the current state.
func (g *Game) State() *GameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Clone()
}

// Logs returns the activity log, newest first.
func (g *Game) Logs() []LogEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]LogEntry{}, g.state.GameLogs...)
}

// Initialize starts a new session with the default settings overlaid by a
// partial JSON patch. A demo session is seated with NPCs.
func (g *Game) Initialize(sessionID string, patch []byte) error {
	settings, err := g.defaults.Merge(patch)
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = NewGameState(sessionID, settings)
	g.timerPaused = false
	g.log(LogSystem, fmt.Sprintf("Session %s initialized with %d rounds", sessionID, settings.TotalRounds))
	slog.Info("session initialized", "session", sessionID, "rounds", settings.TotalRounds)

	if sessionID == DemoSessionID {
		g.addNPCs(DemoNPCs)
	}
	g.save()
	return nil
}

// UpdateSettings overlays a partial JSON patch onto the session settings.
func (g *Game) UpdateSettings(patch []byte) error {
	var manual struct {
		ManualTimeControl *bool `json:"manualTimeControl"`
	}
	if err := json.Unmarshal(patch, &manual); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	settings, err := g.state.Settings.Merge(patch)
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	g.state.Settings = settings
	if manual.ManualTimeControl != nil {
		g.state.IsManualMode = *manual.ManualTimeControl
	}
	g.save()
	return nil
}

// JoinGame seats a player. A name already seated is updated in place: a
// non-nil profile replaces the old one and the session id is taken over.
// It returns a snapshot of the player, or nil for an empty name.
func (g *Game) JoinGame(sessionID, name string, profile *catalog.CompanyProfile) *ledger.Player {
	if name == "" {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.join(sessionID, name, profile)
	g.save()
	return p.Clone()
}

func (g *Game) join(sessionID, name string, profile *catalog.CompanyProfile) *ledger.Player {
	g.state.SessionID = sessionID
	if profile != nil {
		cp := *profile
		profile = &cp
	}
	if p := g.state.PlayerByName(name); p != nil {
		p.Assign(profile)
		return p
	}

	p := ledger.NewPlayer(uuid.NewString(), name, profile, g.now())
	g.state.Players = append(g.state.Players, p)
	if !npc.IsNPC(name) {
		g.log(LogPlayer, fmt.Sprintf("%s joined the session", name))
	}
	return p
}

// AddNPCs seats count NPCs on a sector-balanced selection of companies
// not already in play. It returns snapshots of the new players.
func (g *Game) AddNPCs(count int) []*ledger.Player {
	g.mu.Lock()
	defer g.mu.Unlock()
	added := g.addNPCs(count)
	g.save()
	out := make([]*ledger.Player, len(added))
	for i, p := range added {
		out[i] = p.Clone()
	}
	return out
}

func (g *Game) addNPCs(count int) []*ledger.Player {
	if count <= 0 {
		return nil
	}

	taken := map[string]bool{}
	seq := 0
	for _, p := range g.state.Players {
		if p.Profile != nil {
			taken[p.Profile.ID] = true
		}
		if npc.IsNPC(p.Name) {
			seq++
		}
	}

	var added []*ledger.Player
	for len(added) < count {
		pool := &catalog.Catalog{}
		for _, c := range g.catalog.Companies {
			if !taken[c.ID] {
				pool.Companies = append(pool.Companies, c)
			}
		}
		if len(pool.Companies) == 0 {
			break
		}

		picks := pool.BalancedSelection(g.rng, count-len(added))
		if len(picks) == 0 {
			// The round robin only hit exhausted sectors.
			picks = pool.Companies[g.rng.Intn(len(pool.Companies)):][:1]
		}
		for _, profile := range picks {
			seq++
			name := npc.Name(seq)
			for g.state.PlayerByName(name) != nil {
				seq++
				name = npc.Name(seq)
			}
			p := g.join(g.state.SessionID, name, &profile)
			taken[profile.ID] = true
			added = append(added, p)
			g.log(LogPlayer, fmt.Sprintf("%s joined as %s", name, profile.Name))
		}
	}
	g.log(LogSystem, fmt.Sprintf("Added %d NPC players to the simulation", len(added)))
	return added
}

// InvestAbatement buys one of the player's abatement options.
func (g *Game) InvestAbatement(playerID string, opt ledger.Option) *ledger.Player {
	return g.act(playerID, func(p *ledger.Player) (LogType, string, bool) {
		o, _ := p.Option(opt)
		cost := p.OptionCost(opt)
		if !p.InvestAbatement(opt, g.now()) {
			return "", "", false
		}
		return LogAbatement, fmt.Sprintf("%s invested in %s for $%s", p.Name, o.Name, npc.Money(cost)), true
	})
}

// PurchaseAllowances buys allowances at the caller's price. Non-positive
// prices are rejected.
func (g *Game) PurchaseAllowances(playerID string, amount int, price float64) *ledger.Player {
	return g.act(playerID, func(p *ledger.Player) (LogType, string, bool) {
		if !p.PurchaseAllowances(amount, price, g.now()) {
			return "", "", false
		}
		return LogTrade, fmt.Sprintf("%s purchased %s allowances at $%s/tCO₂e",
			p.Name, humanize.Comma(int64(amount)), humanize.Ftoa(price)), true
	})
}

// PurchaseOffsets buys offsets at the fixed offset price.
func (g *Game) PurchaseOffsets(playerID string, amount int) *ledger.Player {
	return g.act(playerID, func(p *ledger.Player) (LogType, string, bool) {
		price := ledger.OffsetPrice(g.state.Settings.ReservePrice)
		if !p.PurchaseOffsets(amount, price, g.now()) {
			return "", "", false
		}
		return LogOffset, fmt.Sprintf("%s purchased %s carbon offsets for $%s",
			p.Name, humanize.Comma(int64(amount)), npc.Money(float64(amount)*price)), true
	})
}

// UpdateActualEmissions overwrites a player's reported emissions.
func (g *Game) UpdateActualEmissions(playerID string, tons int) *ledger.Player {
	return g.act(playerID, func(p *ledger.Player) (LogType, string, bool) {
		p.UpdateActualEmissions(tons, g.now())
		return LogPlayer, fmt.Sprintf("%s reported %s tCO₂e", p.Name, humanize.Comma(int64(tons))), true
	})
}

// RecordOTCTrade books an over-the-counter allowance purchase.
func (g *Game) RecordOTCTrade(playerID string, amount int, price float64) *ledger.Player {
	return g.act(playerID, func(p *ledger.Player) (LogType, string, bool) {
		if !p.RecordOTCTrade(amount, price, g.now()) {
			return "", "", false
		}
		return LogTrade, fmt.Sprintf("%s purchased %s allowances via OTC at $%.2f/tCO₂e",
			p.Name, humanize.Comma(int64(amount)), price), true
	})
}

// act runs fn on one player and logs and saves on success. Unknown
// players yield nil.
func (g *Game) act(playerID string, fn func(p *ledger.Player) (LogType, string, bool)) *ledger.Player {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.state.Player(playerID)
	if p == nil {
		return nil
	}
	if typ, msg, ok := fn(p); ok {
		g.log(typ, msg)
		g.save()
	}
	return p.Clone()
}

// Advance moves the session to the next phase.
func (g *Game) Advance() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.advance()
	g.save()
}

func (g *Game) advance() {
	round := g.state.CurrentRound
	g.state.Advance(g.now())
	switch {
	case g.state.CurrentPhase == ledger.PhaseCompleted:
		g.log(LogComplete, "Game completed")
	case g.state.CurrentRound != round:
		g.state.ExpireEvents()
		g.log(LogRound, fmt.Sprintf("Starting Round %d", g.state.CurrentRound))
	default:
		g.log(LogPhase, fmt.Sprintf("%s phase started", g.state.CurrentPhase))
	}
}

// SetPhase force-jumps to phase.
func (g *Game) SetPhase(phase ledger.Phase) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.SetPhase(phase, g.now())
	g.log(LogPhase, fmt.Sprintf("Facilitator set phase to %s", phase))
	g.save()
}

// MarkComplete flags phase as done for a player.
func (g *Game) MarkComplete(playerID string, phase ledger.Phase) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.state.MarkComplete(playerID, phase) {
		return false
	}
	g.save()
	return true
}

// CanAdvance reports whether every human finished the current phase.
func (g *Game) CanAdvance() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.CanAdvance()
}

// IsOTCMarketOpen reports whether OTC trading is allowed in the current phase.
func (g *Game) IsOTCMarketOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.IsOTCMarketOpen()
}

// SimulateNPCs runs the single-step NPC pass for the current phase and
// rescores.
func (g *Game) SimulateNPCs() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.simulateNPCs()
	g.save()
}

func (g *Game) simulateNPCs() {
	g.record(npc.Pass(g.state.Players, g.state.CurrentPhase, npc.SingleStep, g.market(), g.rng))
	g.log(LogSimulation, fmt.Sprintf("NPC simulation completed for %d NPCs", npc.Count(g.state.Players)))
	g.state.score()
}

// StepPhase is the facilitator's advance: NPCs act in the current phase,
// the session advances and everyone is rescored.
func (g *Game) StepPhase() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stepPhase()
}

func (g *Game) stepPhase() {
	if g.state.CurrentPhase == ledger.PhaseCompleted {
		return
	}
	g.simulateNPCs()
	g.advance()
	g.state.score()
	g.save()
}

// CalculateCompliance recomputes compliance for every player.
func (g *Game) CalculateCompliance() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.CalculateCompliance()
	g.save()
}

// CalculateBadges recomputes badges for every player.
func (g *Game) CalculateBadges() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.CalculateBadges()
	g.save()
}

// Leaderboard ranks the players.
func (g *Game) Leaderboard() []Standing {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Leaderboard()
}

// MarketData returns an indicative market snapshot.
func (g *Game) MarketData() MarketData {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.MarketData(g.rng)
}

// PauseTimer stops the phase clock.
func (g *Game) PauseTimer() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timerPaused = true
}

// ResumeTimer restarts the phase clock.
func (g *Game) ResumeTimer() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timerPaused = false
}

// TimerPaused reports whether the phase clock is stopped.
func (g *Game) TimerPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timerPaused
}

// SetPhaseTimer overwrites the seconds left in the current phase.
func (g *Game) SetPhaseTimer(seconds int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.PhaseTimer = max(0, seconds)
	g.save()
}

// TriggerEvent applies a catalog market event to the session.
func (g *Game) TriggerEvent(id string) error {
	e, ok := g.catalog.Event(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, id)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.ApplyEvent(e)
	g.log(LogEvent, fmt.Sprintf("Market event: %s (%s)", e.Name, e.Impact))
	g.save()
	return nil
}

// AvailableEvents lists the catalog events eligible in the current state.
func (g *Game) AvailableEvents() []catalog.MarketEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return AvailableEvents(g.catalog, g.state)
}

func (g *Game) market() npc.Market {
	return npc.Market{ReservePrice: g.state.Settings.ReservePrice, Now: g.now()}
}

// record logs NPC outcomes in order.
func (g *Game) record(outcomes []npc.Outcome) {
	for _, o := range outcomes {
		g.log(LogType(o.Kind.String()), o.Message)
	}
}

func (g *Game) log(typ LogType, msg string) {
	e := NewLogEntry(typ, msg, g.now())
	g.state.AddLog(e)
	if g.onLog != nil {
		g.onLog(e)
	}
}

// SessionID returns the current session id.
func (g *Game) SessionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.SessionID
}

// Snapshot serializes the current state in the persisted format.
func (g *Game) Snapshot() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return json.Marshal(g.state)
}

// save hands the state to the store. Errors are logged, never returned.
func (g *Game) save() {
	if g.store == nil {
		return
	}
	data, err := json.Marshal(g.state)
	if err != nil {
		slog.Error("encode game state", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := g.store.SaveState(ctx, data); err != nil {
		slog.Error("save game state", "session", g.state.SessionID, "err", err)
	}
}
