package fulltext

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paperlens/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

// Cache wraps a Fetcher with a SQLite-backed cache so backfills and repeated
// digest runs do not re-download the same paper text.
type Cache struct {
	db    *sql.DB
	inner Fetcher
}

// NewCache opens (or creates) the cache database in dataDir and wraps inner.
func NewCache(dataDir string, inner Fetcher) (*Cache, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "fulltext.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS fulltext (
		id TEXT PRIMARY KEY,
		content TEXT,
		fetched_at DATETIME
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}

	return &Cache{db: db, inner: inner}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Fetch returns cached text when present, otherwise fetches and stores it.
// Cache read/write failures degrade to a plain fetch.
func (c *Cache) Fetch(ctx context.Context, id string, maxChars int) (string, error) {
	var cached string
	err := c.db.QueryRowContext(ctx, "SELECT content FROM fulltext WHERE id = ?", id).Scan(&cached)
	if err == nil && cached != "" {
		return cut(cached, maxChars), nil
	}
	if err != nil && err != sql.ErrNoRows {
		logger.Warn("full-text cache read failed", "id", id, "error", err.Error())
	}

	text, err := c.inner.Fetch(ctx, id, maxChars)
	if err != nil {
		return "", err
	}

	_, err = c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO fulltext (id, content, fetched_at) VALUES (?, ?, ?)",
		id, text, time.Now().UTC())
	if err != nil {
		logger.Warn("full-text cache write failed", "id", id, "error", err.Error())
	}

	return text, nil
}
