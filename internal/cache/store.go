package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

const timeFormat = "2006-01-02 15:04:05"

// Store is a TTL cache for provider results backed by SQLite. Entries
// are keyed by provider name and query hash; expired rows are dropped
// lazily on read.
type Store struct {
	db  *sql.DB
	ttl time.Duration
}

// NewStore creates a Store with the database at
// ~/.omnisearch/cache.db. The directory and database file are created
// if they don't exist.
func NewStore(ttl time.Duration) (*Store, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	cacheDir := filepath.Join(homeDir, ".omnisearch")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .omnisearch directory: %w", err)
	}

	return NewStoreWithPath(filepath.Join(cacheDir, "cache.db"), ttl)
}

// NewStoreWithPath creates a Store with a custom database path. This
// is useful for testing.
func NewStoreWithPath(dbPath string, ttl time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	store := &Store{db: db, ttl: ttl}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	createTableSQL := `
		CREATE TABLE IF NOT EXISTS results_cache (
			provider TEXT NOT NULL,
			query_hash TEXT NOT NULL,
			payload TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			PRIMARY KEY (provider, query_hash)
		);
	`
	if _, err := s.db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create results_cache table: %w", err)
	}

	createIndexSQL := `
		CREATE INDEX IF NOT EXISTS idx_results_cache_expires
		ON results_cache(expires_at);
	`
	if _, err := s.db.Exec(createIndexSQL); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Get returns the cached items for provider+key. A miss, an expired
// row, or an undecodable payload all report found=false.
func (s *Store) Get(ctx context.Context, provider, key string) ([]types.SearchResult, bool, error) {
	query := `
		SELECT payload, expires_at
		FROM results_cache
		WHERE provider = ? AND query_hash = ?
	`
	row := s.db.QueryRowContext(ctx, query, provider, key)

	var payload, expiresAt string
	if err := row.Scan(&payload, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache row: %w", err)
	}

	expiry, err := time.Parse(timeFormat, expiresAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse expires_at: %w", err)
	}
	if time.Now().UTC().After(expiry) {
		_, _ = s.db.ExecContext(ctx,
			`DELETE FROM results_cache WHERE provider = ? AND query_hash = ?`, provider, key)
		return nil, false, nil
	}

	var items []types.SearchResult
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached payload: %w", err)
	}
	return items, true, nil
}

// Put stores items for provider+key, replacing any previous entry and
// restarting its TTL.
func (s *Store) Put(ctx context.Context, provider, key string, items []types.SearchResult) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	upsertSQL := `
		INSERT INTO results_cache (provider, query_hash, payload, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider, query_hash) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at;
	`
	expiresAt := time.Now().UTC().Add(s.ttl).Format(timeFormat)
	if _, err := s.db.ExecContext(ctx, upsertSQL, provider, key, string(payload), expiresAt); err != nil {
		return fmt.Errorf("failed to upsert cache row: %w", err)
	}
	return nil
}

// Purge deletes every expired row and reports how many went away.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM results_cache WHERE expires_at < ?`,
		time.Now().UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
