package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/omakhlouk/ets-simulation/internal/engine"
	"github.com/omakhlouk/ets-simulation/internal/persistence"
)

const (
	archiveQueue = 1024
	archiveBatch = 64
)

// archiveLogs copies activity log entries into the database in batches
// until ctx is done, then flushes what is queued.
func archiveLogs(ctx context.Context, db *persistence.DB, game *engine.Game, entries <-chan engine.LogEntry) {
	batch := make([]engine.LogEntry, 0, archiveBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.AppendLogs(wctx, game.SessionID(), batch...); err != nil {
			slog.Error("archive logs", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-entries:
			batch = append(batch, e)
		drain:
			for len(batch) < archiveBatch {
				select {
				case e := <-entries:
					batch = append(batch, e)
				default:
					break drain
				}
			}
			flush()
		case <-ctx.Done():
			for {
				select {
				case e := <-entries:
					batch = append(batch, e)
					if len(batch) == archiveBatch {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
