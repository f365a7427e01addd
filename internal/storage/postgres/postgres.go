// Package postgres stores the player blacklist in PostgreSQL through pgx v5.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/smuggle/internal/config"
)

// ApplicationName labels this server's connections in pg_stat_activity.
const ApplicationName = "smuggle"

// DefaultPingTimeout bounds Ping when the caller's context has no deadline.
const DefaultPingTimeout = 2 * time.Second

// ErrSchemaMissing is returned by CheckSchema before migrations have run.
var ErrSchemaMissing = errors.New("blacklist table is missing; run cmd/migrate")

// Store owns the connection pool behind the blacklist repository.
type Store struct {
	pool      *pgxpool.Pool
	blacklist *BlacklistRepository
}

// Open connects to the database described by cfg.
//
// Precondition: cfg must pass config.DatabaseConfig validation.
// Postcondition: Returns a Store whose database answered a ping, or a non-nil error.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	s := &Store{pool: pool, blacklist: NewBlacklistRepository(pool)}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return s, nil
}

// Blacklist returns the repository served by this store.
func (s *Store) Blacklist() *BlacklistRepository { return s.blacklist }

// Ping checks the database answers, within DefaultPingTimeout unless ctx
// already carries a deadline.
func (s *Store) Ping(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultPingTimeout)
		defer cancel()
	}
	return s.pool.Ping(ctx)
}

// CheckSchema reports ErrSchemaMissing when the blacklist table does not exist.
func (s *Store) CheckSchema(ctx context.Context) error {
	var present bool
	if err := s.pool.QueryRow(ctx, `SELECT to_regclass('blacklist') IS NOT NULL`).Scan(&present); err != nil {
		return fmt.Errorf("inspecting schema: %w", err)
	}
	if !present {
		return ErrSchemaMissing
	}
	return nil
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}
