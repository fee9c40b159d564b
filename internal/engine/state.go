// Package engine runs a trading game: the round and phase state machine,
// compliance scoring, the NPC simulation driver and the phase clock.
//
// GameState is a plain value with pure methods. Game owns one GameState and
// serializes every access to it.
package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/omakhlouk/ets-simulation/internal/catalog"
	"github.com/omakhlouk/ets-simulation/internal/ledger"
)

// DemoSessionID starts with NPCs already seated.
const DemoSessionID = "999999"

// DemoNPCs is how many NPCs a demo session seats.
const DemoNPCs = 5

// MaxLogs caps the activity log.
const MaxLogs = 50

// fallbackPhaseSeconds is used for phases without a configured duration.
const fallbackPhaseSeconds = 300

// PhaseDurations are per-phase lengths in minutes. Zero means unset.
type PhaseDurations struct {
	Setup      int `json:"setup" yaml:"setup"`
	Planning   int `json:"planning" yaml:"planning"`
	Auction1   int `json:"auction1" yaml:"auction1"`
	OTCOffsets int `json:"otc-offsets,omitempty" yaml:"otc-offsets,omitempty"`
	Auction2   int `json:"auction2" yaml:"auction2"`
	Reporting  int `json:"reporting" yaml:"reporting"`
	Compliance int `json:"compliance" yaml:"compliance"`
}

// Seconds returns the timer for phase p.
func (d PhaseDurations) Seconds(p ledger.Phase) int {
	var m int
	switch p {
	case ledger.PhasePlanning:
		m = d.Planning
	case ledger.PhaseAuction1:
		m = d.Auction1
	case ledger.PhaseOTCOffsets:
		m = d.OTCOffsets
	case ledger.PhaseAuction2:
		m = d.Auction2
	case ledger.PhaseReporting:
		m = d.Reporting
	case ledger.PhaseCompliance:
		m = d.Compliance
	}
	if m <= 0 {
		return fallbackPhaseSeconds
	}
	return m * 60
}

// Settings configure a session. They are read by every component and
// changed only through Initialize and UpdateSettings.
type Settings struct {
	Cap                     int            `json:"cap" yaml:"cap"`
	SystemCap               int            `json:"systemCap" yaml:"systemCap"`
	Penalty                 float64        `json:"penalty" yaml:"penalty"` // per uncovered ton
	AllocationRatio         float64        `json:"allocationRatio" yaml:"allocationRatio"`
	AuctionRatio            float64        `json:"auctionRatio" yaml:"auctionRatio"`
	ReservePrice            float64        `json:"reservePrice" yaml:"reservePrice"`
	OffsetsEnabled          bool           `json:"offsetsEnabled" yaml:"offsetsEnabled"`
	RoundDuration           int            `json:"roundDuration" yaml:"roundDuration"`
	TotalRounds             int            `json:"totalRounds" yaml:"totalRounds"`
	CapType                 string         `json:"capType" yaml:"capType"`                   // absolute, rate-based
	AllocationMethod        string         `json:"allocationMethod" yaml:"allocationMethod"` // free, auction, mixed
	BankingEnabled          bool           `json:"bankingEnabled" yaml:"bankingEnabled"`
	ExpectedPlayers         int            `json:"expectedPlayers" yaml:"expectedPlayers"`
	HumanPlayers            int            `json:"humanPlayers" yaml:"humanPlayers"`
	CapReduction            float64        `json:"capReduction" yaml:"capReduction"`
	BaselineEmissions       int            `json:"baselineEmissions" yaml:"baselineEmissions"`
	EmergencyReserveEnabled bool           `json:"emergencyReserveEnabled" yaml:"emergencyReserveEnabled"`
	ManualTimeControl       bool           `json:"manualTimeControl" yaml:"manualTimeControl"`
	MarketEvents            []string       `json:"marketEvents,omitempty" yaml:"marketEvents,omitempty"`
	PhaseDurations          PhaseDurations `json:"phaseDurations" yaml:"phaseDurations"`
}

// DefaultSettings returns the settings of a fresh session.
func DefaultSettings() Settings {
	return Settings{
		Cap:               500000,
		SystemCap:         500000,
		Penalty:           100,
		AllocationRatio:   60,
		AuctionRatio:      40,
		ReservePrice:      25,
		OffsetsEnabled:    true,
		RoundDuration:     15,
		TotalRounds:       3,
		CapType:           "absolute",
		AllocationMethod:  "mixed",
		BankingEnabled:    true,
		ExpectedPlayers:   6,
		HumanPlayers:      4,
		CapReduction:      15,
		ManualTimeControl: true,
		PhaseDurations: PhaseDurations{
			Setup:      5,
			Planning:   15,
			Auction1:   5,
			Auction2:   5,
			Reporting:  10,
			Compliance: 5,
		},
	}
}

// Merge overlays a partial JSON document onto s. Keys absent from patch
// keep their current value.
func (s Settings) Merge(patch []byte) (Settings, error) {
	out := s.clone()
	if len(patch) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(patch, &out); err != nil {
		return s, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}

// Validate rejects settings the engine cannot run with.
func (s Settings) Validate() error {
	switch {
	case s.TotalRounds < 1:
		return fmt.Errorf("totalRounds must be at least 1, got %d", s.TotalRounds)
	case s.ReservePrice < 0:
		return fmt.Errorf("reservePrice must not be negative, got %v", s.ReservePrice)
	case s.Penalty < 0:
		return fmt.Errorf("penalty must not be negative, got %v", s.Penalty)
	}
	return nil
}

func (s Settings) clone() Settings {
	cp := s
	cp.MarketEvents = append([]string(nil), s.MarketEvents...)
	return cp
}

func (s Settings) pricing() ledger.Pricing {
	return ledger.Pricing{PenaltyRate: s.Penalty, ReservePrice: s.ReservePrice}
}

// LogType classifies activity log entries.
type LogType string

const (
	LogSystem     LogType = "system"
	LogPlayer     LogType = "player"
	LogPhase      LogType = "phase"
	LogRound      LogType = "round"
	LogAbatement  LogType = "abatement"
	LogTrade      LogType = "trade"
	LogOffset     LogType = "offset"
	LogSimulation LogType = "simulation"
	LogComplete   LogType = "complete"
	LogError      LogType = "error"
	LogEvent      LogType = "event"
)

// LogEntry is one line of the activity log shown to players.
type LogEntry struct {
	ID        string    `json:"id"`
	Type      LogType   `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLogEntry stamps a message with a fresh id.
func NewLogEntry(typ LogType, msg string, now time.Time) LogEntry {
	return LogEntry{ID: uuid.NewString(), Type: typ, Message: msg, Timestamp: now}
}

// ActiveEvent is a market event applied to the game and the rounds it spans.
type ActiveEvent struct {
	catalog.MarketEvent
	StartRound int `json:"startRound"`
	EndRound   int `json:"endRound"`
}

// GameState is the aggregate root of one session.
type GameState struct {
	SessionID      string           `json:"sessionId"`
	CurrentRound   int              `json:"currentRound"`
	TotalRounds    int              `json:"totalRounds"`
	CurrentPhase   ledger.Phase     `json:"currentPhase"`
	PhaseTimer     int              `json:"phaseTimer"` // seconds left
	PhaseStartTime time.Time        `json:"phaseStartTime"`
	Players        []*ledger.Player `json:"players"`
	Settings       Settings         `json:"settings"`

	SystemCap       int `json:"systemCap"`
	TotalEmissions  int `json:"totalEmissions"`
	ComplianceCount int `json:"complianceCount"`

	AllowancePriceModifier float64       `json:"allowancePriceModifier,omitempty"`
	ActiveEvents           []ActiveEvent `json:"activeEvents"`

	IsManualMode bool       `json:"isManualMode"`
	GameLogs     []LogEntry `json:"gameLogs"` // newest first
}

// NewGameState returns the state of a fresh session.
func NewGameState(sessionID string, settings Settings) *GameState {
	cp := settings.SystemCap
	if cp == 0 {
		cp = settings.Cap
	}
	return &GameState{
		SessionID:    sessionID,
		CurrentRound: 1,
		TotalRounds:  settings.TotalRounds,
		CurrentPhase: ledger.PhasePlanning,
		Players:      []*ledger.Player{},
		Settings:     settings.clone(),
		SystemCap:    cp,
		ActiveEvents: []ActiveEvent{},
		IsManualMode: settings.ManualTimeControl,
		GameLogs:     []LogEntry{},
	}
}

// RestoreState decodes a persisted state onto defaults. Fields missing
// from older records are backfilled so a reload never yields a state the
// engine cannot run.
func RestoreState(data []byte, defaults Settings) (*GameState, error) {
	s := NewGameState("", defaults)
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode game state: %w", err)
	}

	var raw struct {
		Players []map[string]json.RawMessage `json:"players"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode game state players: %w", err)
	}

	if s.Players == nil {
		s.Players = []*ledger.Player{}
	}
	kept := s.Players[:0]
	for i, p := range s.Players {
		if p == nil {
			continue
		}
		if p.Badges == nil {
			p.Badges = []ledger.Badge{}
		}
		if p.Profile != nil {
			if i >= len(raw.Players) || !present(raw.Players[i], "actualEmissions") {
				p.ActualEmissions = p.Profile.Emissions
			}
			p.SyncBudget()
		}
		kept = append(kept, p)
	}
	s.Players = kept

	if s.GameLogs == nil {
		s.GameLogs = []LogEntry{}
	}
	if len(s.GameLogs) > MaxLogs {
		s.GameLogs = s.GameLogs[:MaxLogs]
	}
	if s.ActiveEvents == nil {
		s.ActiveEvents = []ActiveEvent{}
	}
	if s.Settings.TotalRounds < 1 {
		s.Settings.TotalRounds = defaults.TotalRounds
	}
	if s.TotalRounds < 1 {
		s.TotalRounds = s.Settings.TotalRounds
	}
	if s.CurrentRound < 1 {
		s.CurrentRound = 1
	}
	if s.CurrentPhase == "" {
		s.CurrentPhase = ledger.PhasePlanning
	}
	if s.SystemCap == 0 {
		s.SystemCap = s.Settings.Cap
	}
	s.IsManualMode = s.Settings.ManualTimeControl
	return s, nil
}

// present reports whether key was stored with a non-null value.
func present(fields map[string]json.RawMessage, key string) bool {
	v, ok := fields[key]
	return ok && string(v) != "null"
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *GameState) Clone() *GameState {
	cp := *s
	cp.Settings = s.Settings.clone()
	cp.Players = make([]*ledger.Player, len(s.Players))
	for i, p := range s.Players {
		cp.Players[i] = p.Clone()
	}
	cp.ActiveEvents = append([]ActiveEvent{}, s.ActiveEvents...)
	cp.GameLogs = append([]LogEntry{}, s.GameLogs...)
	return &cp
}

// Player finds a player by id.
func (s *GameState) Player(id string) *ledger.Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// PlayerByName finds a player by display name.
func (s *GameState) PlayerByName(name string) *ledger.Player {
	for _, p := range s.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// AddLog prepends an entry and trims the log to MaxLogs.
func (s *GameState) AddLog(e LogEntry) {
	logs := make([]LogEntry, 0, min(len(s.GameLogs)+1, MaxLogs))
	logs = append(logs, e)
	for _, old := range s.GameLogs {
		if len(logs) == MaxLogs {
			break
		}
		logs = append(logs, old)
	}
	s.GameLogs = logs
}
