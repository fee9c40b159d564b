package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omakhlouk/ets-simulation/internal/engine"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDialect)
	assert.Equal(t, "data/ets.db", cfg.DSN())
	assert.Equal(t, 3*time.Second, cfg.PhaseDelay)
	assert.Equal(t, time.Second, cfg.TradeDelay)
	assert.Equal(t, engine.DefaultSettings(), cfg.Settings)
}

func TestLoadFromEnvAndSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
totalRounds: 5
reservePrice: 30
manualTimeControl: false
phaseDurations:
  planning: 2
  otc-offsets: 4
`), 0o644))

	t.Setenv("ETSSIM_PORT", "9090")
	t.Setenv("ETSSIM_DB_DIALECT", "postgres")
	t.Setenv("ETSSIM_DB_DSN", "postgres://localhost/ets")
	t.Setenv("ETSSIM_PHASE_DELAY", "250ms")
	t.Setenv("ETSSIM_SEED", "7")
	t.Setenv("ETSSIM_SETTINGS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres://localhost/ets", cfg.DSN())
	assert.Equal(t, 250*time.Millisecond, cfg.PhaseDelay)
	assert.Equal(t, int64(7), cfg.Seed)

	assert.Equal(t, 5, cfg.Settings.TotalRounds)
	assert.Equal(t, 30.0, cfg.Settings.ReservePrice)
	assert.False(t, cfg.Settings.ManualTimeControl)
	assert.Equal(t, 2, cfg.Settings.PhaseDurations.Planning)
	assert.Equal(t, 4, cfg.Settings.PhaseDurations.OTCOffsets)
	assert.Equal(t, 5, cfg.Settings.PhaseDurations.Auction1, "absent keys keep defaults")
	assert.Equal(t, 100.0, cfg.Settings.Penalty)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	t.Setenv("ETSSIM_DB_DIALECT", "postgres")
	_, err := Load()
	assert.ErrorContains(t, err, "ETSSIM_DB_DSN")

	t.Setenv("ETSSIM_DB_DIALECT", "oracle")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("ETSSIM_DB_DIALECT", "sqlite")
	t.Setenv("ETSSIM_PORT", "not-a-port")
	_, err = Load()
	assert.Error(t, err)
}

func TestOverlaySettingsKeepsBaseOnError(t *testing.T) {
	base := engine.DefaultSettings()
	got, err := OverlaySettings(base, []byte("totalRounds: ["))
	assert.Error(t, err)
	assert.Equal(t, base, got)

	_, err = OverlaySettings(base, []byte("totalRounds: 0"))
	require.NoError(t, err, "validation happens in Validate")
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	l, err = ParseLevel(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
