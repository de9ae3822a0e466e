// Package store persists quote-cache entries in SQLite and exports backtest
// results to Parquet files.
package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// QuoteCache is a TTL'd key/value cache for serialized quotes, backed by a
// SQLite database. Keys fingerprint the fetch request (provider, symbol,
// interval, range); payloads are opaque to the store.
type QuoteCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

const quoteCacheSchema = `
CREATE TABLE IF NOT EXISTS quote_cache (
	key        TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL
);`

// NewQuoteCache opens (or creates) a cache database at dbPath. Entries older
// than ttl are treated as absent and lazily removed.
func NewQuoteCache(dbPath string, ttl time.Duration) (*QuoteCache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(quoteCacheSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &QuoteCache{db: db, ttl: ttl, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (c *QuoteCache) Close() error {
	return c.db.Close()
}

// Get returns the cached payload for key and whether a live entry exists.
// Expired entries are deleted on the way out.
func (c *QuoteCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	var createdAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, created_at FROM quote_cache WHERE key = ?`, key,
	).Scan(&payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if c.now().Sub(time.Unix(createdAt, 0)) > c.ttl {
		_, _ = c.db.ExecContext(ctx, `DELETE FROM quote_cache WHERE key = ?`, key)
		return nil, false, nil
	}
	return payload, true, nil
}

// Put stores the payload under key, replacing any previous entry.
func (c *QuoteCache) Put(ctx context.Context, key string, payload []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO quote_cache (key, payload, created_at) VALUES (?, ?, ?)`,
		key, payload, c.now().Unix(),
	)
	return err
}

// Purge removes every expired entry and returns how many were deleted.
func (c *QuoteCache) Purge(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.ttl).Unix()
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM quote_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeLoop runs Purge every interval until the context is cancelled. The
// server starts it in a goroutine at boot.
func (c *QuoteCache) PurgeLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Purge(ctx)
			if err != nil {
				slog.Warn("quote cache purge failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("quote cache purged", "removed", n)
			}
		}
	}
}
