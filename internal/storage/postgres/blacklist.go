package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/smuggle/internal/moderation"
)

// BlacklistRepository stores blocked players in the blacklist table.
type BlacklistRepository struct {
	db *pgxpool.Pool
}

// NewBlacklistRepository creates a BlacklistRepository backed by db.
//
// Precondition: db must be open and migrated.
func NewBlacklistRepository(db *pgxpool.Pool) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

// IsBlocked implements moderation.Repository.
func (r *BlacklistRepository) IsBlocked(ctx context.Context, playerID int64) (bool, error) {
	var blocked bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blacklist WHERE player_id = $1)`,
		playerID,
	).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("querying blacklist: %w", err)
	}
	return blocked, nil
}

// Block implements moderation.Repository. Re-blocking replaces the reason.
func (r *BlacklistRepository) Block(ctx context.Context, e moderation.Entry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO blacklist (player_id, reason, blocked_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (player_id) DO UPDATE SET reason = EXCLUDED.reason, blocked_at = EXCLUDED.blocked_at`,
		e.PlayerID, e.Reason, e.BlockedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting blacklist entry: %w", err)
	}
	return nil
}

// Unblock implements moderation.Repository.
func (r *BlacklistRepository) Unblock(ctx context.Context, playerID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM blacklist WHERE player_id = $1`, playerID)
	if err != nil {
		return fmt.Errorf("deleting blacklist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return moderation.ErrNotBlocked
	}
	return nil
}

// List implements moderation.Repository.
func (r *BlacklistRepository) List(ctx context.Context) ([]moderation.Entry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT player_id, reason, blocked_at FROM blacklist ORDER BY player_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing blacklist: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (moderation.Entry, error) {
		var e moderation.Entry
		err := row.Scan(&e.PlayerID, &e.Reason, &e.BlockedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning blacklist: %w", err)
	}
	return entries, nil
}

var _ moderation.Repository = (*BlacklistRepository)(nil)
