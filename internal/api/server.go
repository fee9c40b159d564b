// Package api serves the game over HTTP.
// GET endpoints are public (observation and rendering).
// Player POST endpoints are rate limited per IP.
// Facilitator POST endpoints require a bearer token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/omakhlouk/ets-simulation/internal/catalog"
	"github.com/omakhlouk/ets-simulation/internal/engine"
	"github.com/omakhlouk/ets-simulation/internal/ledger"
)

const maxBody = 1 << 20

// LogArchive serves activity log entries older than the in-game window.
type LogArchive interface {
	RecentLogs(ctx context.Context, sessionID string, limit int) ([]engine.LogEntry, error)
}

// Server serves one Game over HTTP.
type Server struct {
	Game     *engine.Game
	Hub      *Hub       // nil disables /api/v1/ws
	Archive  LogArchive // nil disables archived log queries
	Limiter  *RateLimiter
	Port     int
	AdminKey string // Bearer token for facilitator endpoints. Empty = disabled.

	// ctx bounds full simulation runs started over the API.
	ctx context.Context
}

// Handler builds the route table. Full runs started through it stop when
// ctx is done.
func (s *Server) Handler(ctx context.Context) http.Handler {
	s.ctx = ctx
	limiter := s.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(10, 20)
	}
	player := func(h http.HandlerFunc) http.HandlerFunc {
		return limiter.Middleware(postOnly(h))
	}
	admin := func(h http.HandlerFunc) http.HandlerFunc {
		return s.adminOnly(postOnly(h))
	}

	mux := http.NewServeMux()

	// Observation.
	mux.HandleFunc("/api/v1/state", s.handleState)
	mux.HandleFunc("/api/v1/logs", s.handleLogs)
	mux.HandleFunc("/api/v1/market", s.handleMarket)
	mux.HandleFunc("/api/v1/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/api/v1/instructions", s.handleInstructions)
	mux.HandleFunc("/api/v1/can-advance", s.handleCanAdvance)
	mux.HandleFunc("/api/v1/companies", s.handleCompanies)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/badges", s.handleBadges)
	if s.Hub != nil {
		mux.HandleFunc("/api/v1/ws", s.Hub.ServeWs)
	}

	// Player actions.
	mux.HandleFunc("/api/v1/join", player(s.handleJoin))
	mux.HandleFunc("/api/v1/invest", player(s.handleInvest))
	mux.HandleFunc("/api/v1/allowances", player(s.handleAllowances))
	mux.HandleFunc("/api/v1/offsets", player(s.handleOffsets))
	mux.HandleFunc("/api/v1/emissions", player(s.handleEmissions))
	mux.HandleFunc("/api/v1/otc", player(s.handleOTC))
	mux.HandleFunc("/api/v1/complete", player(s.handleComplete))

	// Facilitator control plane.
	mux.HandleFunc("/api/v1/init", admin(s.handleInit))
	mux.HandleFunc("/api/v1/settings", admin(s.handleSettings))
	mux.HandleFunc("/api/v1/advance", admin(s.handleAdvance))
	mux.HandleFunc("/api/v1/phase", admin(s.handlePhase))
	mux.HandleFunc("/api/v1/npcs", admin(s.handleNPCs))
	mux.HandleFunc("/api/v1/npcs/simulate", admin(s.handleSimulateNPCs))
	mux.HandleFunc("/api/v1/score", admin(s.handleScore))
	mux.HandleFunc("/api/v1/simulate", admin(s.handleSimulate))
	mux.HandleFunc("/api/v1/simulate/pause", admin(s.handlePause))
	mux.HandleFunc("/api/v1/simulate/resume", admin(s.handleResume))
	mux.HandleFunc("/api/v1/timer", admin(s.handleTimer))
	mux.HandleFunc("/api/v1/event", admin(s.handleTriggerEvent))

	return corsMiddleware(mux)
}

// Start serves the API until ctx is done.
func (s *Server) Start(ctx context.Context) {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "ws", s.Hub != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP shutdown", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of extra origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "facilitator endpoints disabled (no ETSSIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func postOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// decode reads a JSON body into v. It answers 400 and returns false on
// malformed input. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

func writePlayer(w http.ResponseWriter, p *ledger.Player) {
	if p == nil {
		http.Error(w, "player not found", http.StatusNotFound)
		return
	}
	writeJSON(w, p)
}

// ── Observation ──────────────────────────────────────────────────────

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Game.State())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := engine.MaxLogs
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	if r.URL.Query().Get("archived") != "true" {
		logs := s.Game.Logs()
		if len(logs) > limit {
			logs = logs[:limit]
		}
		writeJSON(w, logs)
		return
	}

	if s.Archive == nil {
		http.Error(w, "log archive not available", http.StatusServiceUnavailable)
		return
	}
	logs, err := s.Archive.RecentLogs(r.Context(), s.Game.State().SessionID, limit)
	if err != nil {
		slog.Error("archived logs query failed", "error", err)
		http.Error(w, "log archive query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, logs)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Game.MarketData())
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Game.Leaderboard())
}

func (s *Server) handleInstructions(w http.ResponseWriter, r *http.Request) {
	phase := ledger.Phase(r.URL.Query().Get("phase"))
	if phase == "" {
		phase = s.Game.State().CurrentPhase
	}
	writeJSON(w, map[string]string{
		"phase":        string(phase),
		"instructions": engine.PhaseInstructions(phase),
	})
}

func (s *Server) handleCanAdvance(w http.ResponseWriter, r *http.Request) {
	st := s.Game.State()
	writeJSON(w, map[string]any{
		"canAdvance": s.Game.CanAdvance(),
		"otcOpen":    s.Game.IsOTCMarketOpen(),
		"phase":      st.CurrentPhase,
		"round":      st.CurrentRound,
		"humans":     st.Humans(),
	})
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	cat := s.Game.Catalog()
	if sector := r.URL.Query().Get("sector"); sector != "" {
		writeJSON(w, cat.BySectors(catalog.Category(sector)))
		return
	}
	writeJSON(w, cat.Companies)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"available": s.Game.AvailableEvents(),
		"active":    s.Game.State().CurrentEvents(),
	})
}

func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	all := ledger.AllBadges()
	out := make([]ledger.BadgeInfo, len(all))
	for i, b := range all {
		out[i] = b.Info()
	}
	writeJSON(w, out)
}

// ── Player actions ───────────────────────────────────────────────────

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Name      string `json:"name"`
		CompanyID string `json:"companyId,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	var profile *catalog.CompanyProfile
	if req.CompanyID != "" {
		c, ok := s.Game.Catalog().Company(req.CompanyID)
		if !ok {
			http.Error(w, "company not found", http.StatusNotFound)
			return
		}
		profile = &c
	}
	writePlayer(w, s.Game.JoinGame(req.SessionID, req.Name, profile))
}

func (s *Server) handleInvest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string        `json:"playerId"`
		Option   ledger.Option `json:"option"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Option != ledger.Option1 && req.Option != ledger.Option2 {
		http.Error(w, "option must be option1 or option2", http.StatusBadRequest)
		return
	}
	writePlayer(w, s.Game.InvestAbatement(req.PlayerID, req.Option))
}

func (s *Server) handleAllowances(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string  `json:"playerId"`
		Amount   int     `json:"amount"`
		Price    float64 `json:"price"`
	}
	if !decode(w, r, &req) {
		return
	}
	writePlayer(w, s.Game.PurchaseAllowances(req.PlayerID, req.Amount, req.Price))
}

func (s *Server) handleOffsets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"playerId"`
		Amount   int    `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	writePlayer(w, s.Game.PurchaseOffsets(req.PlayerID, req.Amount))
}

func (s *Server) handleEmissions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID  string `json:"playerId"`
		Emissions int    `json:"emissions"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Emissions < 0 {
		http.Error(w, "emissions must not be negative", http.StatusBadRequest)
		return
	}
	writePlayer(w, s.Game.UpdateActualEmissions(req.PlayerID, req.Emissions))
}

func (s *Server) handleOTC(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string  `json:"playerId"`
		Amount   int     `json:"amount"`
		Price    float64 `json:"price"`
	}
	if !decode(w, r, &req) {
		return
	}
	if !s.Game.IsOTCMarketOpen() {
		http.Error(w, "otc market closed in this phase", http.StatusConflict)
		return
	}
	writePlayer(w, s.Game.RecordOTCTrade(req.PlayerID, req.Amount, req.Price))
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string       `json:"playerId"`
		Phase    ledger.Phase `json:"phase"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Phase == "" {
		req.Phase = s.Game.State().CurrentPhase
	}
	writeJSON(w, map[string]any{
		"marked":     s.Game.MarkComplete(req.PlayerID, req.Phase),
		"canAdvance": s.Game.CanAdvance(),
	})
}

// ── Facilitator ──────────────────────────────────────────────────────

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string          `json:"sessionId"`
		Settings  json.RawMessage `json:"settings,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		http.Error(w, "sessionId required", http.StatusBadRequest)
		return
	}
	if err := s.Game.Initialize(req.SessionID, req.Settings); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.Game.State())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var patch json.RawMessage
	if !decode(w, r, &patch) {
		return
	}
	if len(patch) == 0 {
		http.Error(w, "settings patch required", http.StatusBadRequest)
		return
	}
	if err := s.Game.UpdateSettings(patch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.Game.State().Settings)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SimulateNPCs bool `json:"simulateNpcs"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.SimulateNPCs {
		s.Game.StepPhase()
	} else {
		s.Game.Advance()
	}
	st := s.Game.State()
	writeJSON(w, map[string]any{"phase": st.CurrentPhase, "round": st.CurrentRound, "phaseTimer": st.PhaseTimer})
}

func (s *Server) handlePhase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phase ledger.Phase `json:"phase"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Phase == "" {
		http.Error(w, "phase required", http.StatusBadRequest)
		return
	}
	s.Game.SetPhase(req.Phase)
	st := s.Game.State()
	writeJSON(w, map[string]any{"phase": st.CurrentPhase, "round": st.CurrentRound, "phaseTimer": st.PhaseTimer})
}

func (s *Server) handleNPCs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Count < 1 || req.Count > len(s.Game.Catalog().Companies) {
		http.Error(w, "count out of range", http.StatusBadRequest)
		return
	}
	writeJSON(w, s.Game.AddNPCs(req.Count))
}

func (s *Server) handleSimulateNPCs(w http.ResponseWriter, r *http.Request) {
	s.Game.SimulateNPCs()
	writeJSON(w, s.Game.Leaderboard())
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	s.Game.CalculateCompliance()
	s.Game.CalculateBadges()
	writeJSON(w, s.Game.Leaderboard())
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if s.Game.SimulationRunning() {
		http.Error(w, engine.ErrSimulationRunning.Error(), http.StatusConflict)
		return
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		if err := s.Game.RunFullSimulation(ctx); err != nil && !errors.Is(err, engine.ErrSimulationRunning) {
			slog.Warn("full simulation ended early", "error", err)
		}
	}()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]any{"running": true})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.Game.PauseSimulation()
	writeJSON(w, map[string]any{"running": s.Game.SimulationRunning(), "paused": s.Game.SimulationPaused()})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.Game.ResumeSimulation()
	writeJSON(w, map[string]any{"running": s.Game.SimulationRunning(), "paused": s.Game.SimulationPaused()})
}

func (s *Server) handleTimer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action  string `json:"action"` // pause, resume, set
		Seconds int    `json:"seconds,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}
	switch req.Action {
	case "pause":
		s.Game.PauseTimer()
	case "resume":
		s.Game.ResumeTimer()
	case "set":
		s.Game.SetPhaseTimer(req.Seconds)
	default:
		http.Error(w, "action must be pause, resume or set", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"paused": s.Game.TimerPaused(), "phaseTimer": s.Game.State().PhaseTimer})
}

func (s *Server) handleTriggerEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID string `json:"eventId"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.Game.TriggerEvent(req.EventID); err != nil {
		if errors.Is(err, engine.ErrUnknownEvent) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.Game.State().CurrentEvents())
}
