package persistence

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omakhlouk/ets-simulation/internal/engine"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(SQLite, filepath.Join(t.TempDir(), "ets.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStateRoundTrip(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()

	_, err := db.LoadState(ctx)
	assert.ErrorIs(t, err, ErrNoState)

	require.NoError(t, db.SaveState(ctx, []byte(`{"sessionId":"a"}`)))
	require.NoError(t, db.SaveState(ctx, []byte(`{"sessionId":"b"}`)))

	data, err := db.LoadState(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessionId":"b"}`, string(data))
}

func TestGameSavesThroughStore(t *testing.T) {
	db := openTemp(t)
	g := engine.NewGame(engine.Options{Store: db})
	require.NoError(t, g.Initialize(engine.DemoSessionID, nil))

	data, err := db.LoadState(context.Background())
	require.NoError(t, err)
	s, err := engine.RestoreState(data, engine.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, engine.DemoSessionID, s.SessionID)
	assert.Len(t, s.Players, engine.DemoNPCs)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ets.sqlite")
	ctx := context.Background()

	db, err := Open(SQLite, path)
	require.NoError(t, err)
	require.NoError(t, db.SaveMeta(ctx, "started", "yes"))
	require.NoError(t, db.Close())

	db, err = Open(SQLite, path)
	require.NoError(t, err)
	defer db.Close()
	v, err := db.GetMeta(ctx, "started")
	require.NoError(t, err)
	assert.Equal(t, "yes", v)
}

func TestLogsArchivePerSession(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var entries []engine.LogEntry
	for i := 0; i < 5; i++ {
		entries = append(entries, engine.NewLogEntry(engine.LogTrade, fmt.Sprintf("trade %d", i), base.Add(time.Duration(i)*time.Second)))
	}
	require.NoError(t, db.AppendLogs(ctx, "s1", entries...))
	require.NoError(t, db.AppendLogs(ctx, "s2", engine.NewLogEntry(engine.LogSystem, "other", base)))
	require.NoError(t, db.AppendLogs(ctx, "s1"))

	got, err := db.RecentLogs(ctx, "s1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "trade 4", got[0].Message)
	assert.Equal(t, "trade 2", got[2].Message)
	assert.Equal(t, engine.LogTrade, got[0].Type)
	assert.True(t, entries[4].Timestamp.Equal(got[0].Timestamp))
	assert.Equal(t, entries[4].ID, got[0].ID)
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(Dialect("oracle"), "x")
	assert.Error(t, err)
	_, err = Open(Postgres, "")
	assert.Error(t, err)
}
