// Package sqlite provides a single-file blacklist store using modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cory-johannsen/smuggle/internal/moderation"
)

//go:embed schema.sql
var schema string

// BlacklistStore persists blacklist entries in SQLite.
type BlacklistStore struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// Open opens (creating if needed) the database at path and applies the schema.
//
// Precondition: path is non-blank; ":memory:" opens a private in-memory database.
// Postcondition: Returns a ready store or a non-nil error.
func Open(path string) (*BlacklistStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &BlacklistStore{db: db}, nil
}

// Close closes the database handle.
func (s *BlacklistStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *BlacklistStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// IsBlocked implements moderation.Repository.
func (s *BlacklistStore) IsBlocked(ctx context.Context, playerID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM blacklist WHERE player_id = ?`, playerID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query blacklist: %w", err)
	}
	return true, nil
}

// Block implements moderation.Repository. Re-blocking replaces the reason.
func (s *BlacklistStore) Block(ctx context.Context, e moderation.Entry) error {
	blockedAt := e.BlockedAt
	if blockedAt.IsZero() {
		blockedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blacklist (player_id, reason, blocked_at) VALUES (?, ?, ?)
		 ON CONFLICT(player_id) DO UPDATE SET reason = excluded.reason, blocked_at = excluded.blocked_at`,
		e.PlayerID, e.Reason, toMillis(blockedAt),
	)
	if err != nil {
		return fmt.Errorf("insert blacklist entry: %w", err)
	}
	return nil
}

// Unblock implements moderation.Repository.
func (s *BlacklistStore) Unblock(ctx context.Context, playerID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blacklist WHERE player_id = ?`, playerID)
	if err != nil {
		return fmt.Errorf("delete blacklist entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete blacklist entry: %w", err)
	}
	if n == 0 {
		return moderation.ErrNotBlocked
	}
	return nil
}

// List implements moderation.Repository.
func (s *BlacklistStore) List(ctx context.Context) ([]moderation.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT player_id, reason, blocked_at FROM blacklist ORDER BY player_id`)
	if err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}
	defer rows.Close()

	var out []moderation.Entry
	for rows.Next() {
		var (
			e  moderation.Entry
			ms int64
		)
		if err := rows.Scan(&e.PlayerID, &e.Reason, &ms); err != nil {
			return nil, fmt.Errorf("scan blacklist row: %w", err)
		}
		e.BlockedAt = fromMillis(ms)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blacklist: %w", err)
	}
	return out, nil
}

var _ moderation.Repository = (*BlacklistStore)(nil)
