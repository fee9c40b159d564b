// Package persistence stores the serialized game state and the activity log
// in a SQL key-value table. SQLite is the default; Postgres is supported
// through the pgx stdlib driver.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/omakhlouk/ets-simulation/internal/engine"
)

// Dialect names a supported database.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// StateKey is the meta key holding the serialized game state.
const StateKey = "gameState"

// ErrNoState is returned by LoadState when nothing was saved yet.
var ErrNoState = errors.New("persistence: no saved game state")

// DB wraps a SQL connection for game state persistence.
type DB struct {
	conn    *sqlx.DB
	dialect Dialect
}

// Open opens or creates the database. For SQLite dsn is a file path, for
// Postgres a connection URL.
func Open(dialect Dialect, dsn string) (*DB, error) {
	var conn *sqlx.DB
	var err error
	switch dialect {
	case SQLite, "":
		dialect = SQLite
		conn, err = sqlx.Open("sqlite", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
		if err == nil {
			conn.SetMaxOpenConns(1)
		}
	case Postgres:
		if dsn == "" {
			return nil, errors.New("open db: postgres requires a DSN")
		}
		conn, err = sqlx.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("open db: unsupported dialect %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	db := &DB{conn: conn, dialect: dialect}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("database ready", "dialect", dialect)
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate(ctx context.Context) error {
	seq := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.dialect == Postgres {
		seq = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS game_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS game_logs (
			seq ` + seq + `,
			id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			type TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_logs_session ON game_logs(session_id)`,
	}
	for _, s := range stmts {
		if _, err := db.conn.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// SaveMeta stores a key-value pair, replacing any previous value.
func (db *DB) SaveMeta(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx, db.conn.Rebind(
		`INSERT INTO game_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetMeta retrieves a value. A missing key yields sql.ErrNoRows.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, db.conn.Rebind("SELECT value FROM game_meta WHERE key = ?"), key)
	return value, err
}

// SaveState writes the serialized game state.
func (db *DB) SaveState(ctx context.Context, data []byte) error {
	if err := db.SaveMeta(ctx, StateKey, string(data)); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// LoadState returns the last saved game state, or ErrNoState.
func (db *DB) LoadState(ctx context.Context) ([]byte, error) {
	v, err := db.GetMeta(ctx, StateKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return []byte(v), nil
}

type logRow struct {
	ID        string `db:"id"`
	Type      string `db:"type"`
	Message   string `db:"message"`
	CreatedAt string `db:"created_at"`
}

// AppendLogs archives activity log entries for a session. The in-game log
// keeps only the newest entries; this table keeps all of them.
func (db *DB) AppendLogs(ctx context.Context, sessionID string, entries ...engine.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(
		"INSERT INTO game_logs (id, session_id, type, message, created_at) VALUES (?, ?, ?, ?, ?)"))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx, e.ID, sessionID, string(e.Type), e.Message,
			e.Timestamp.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert log %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// RecentLogs returns the newest limit entries of a session, newest first.
func (db *DB) RecentLogs(ctx context.Context, sessionID string, limit int) ([]engine.LogEntry, error) {
	var rows []logRow
	err := db.conn.SelectContext(ctx, &rows, db.conn.Rebind(
		"SELECT id, type, message, created_at FROM game_logs WHERE session_id = ? ORDER BY seq DESC LIMIT ?"),
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}

	out := make([]engine.LogEntry, 0, len(rows))
	for _, r := range rows {
		ts, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("log %s timestamp: %w", r.ID, err)
		}
		out = append(out, engine.LogEntry{
			ID:        r.ID,
			Type:      engine.LogType(r.Type),
			Message:   r.Message,
			Timestamp: ts,
		})
	}
	return out, nil
}
