// Package repo provides relational persistence for settings, bot users and
// the product catalog. The primary backend is Postgres via pgx; a SQLite
// backend exists for single-binary deployments.
package repo

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository provides typed access to Postgres resources.
type PGRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New opens a new connection pool to the database.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*PGRepository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	r := &PGRepository{
		pool:   pool,
		logger: logger.With("component", "repo"),
	}

	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

// Close releases the connection pool.
func (r *PGRepository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (r *PGRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// WithTx executes fn within a database transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// RunMigrations applies schema migrations on the connected database.
func (r *PGRepository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	return ApplyMigrations(ctx, r.pool, filesystem)
}

// IsRegistered reports whether the chat identity already completed the
// contact-share flow.
func (r *PGRepository) IsRegistered(ctx context.Context, chatID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM bot_users WHERE chat_id = $1);`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, chatID).Scan(&exists); err != nil {
		return false, fmt.Errorf("is registered: %w", err)
	}
	return exists, nil
}

// UpsertBotUser stores or updates the user profile based on chat ID.
// Re-registering refreshes phone and username rather than erroring.
func (r *PGRepository) UpsertBotUser(ctx context.Context, profile BotUserProfile) (*BotUser, error) {
	const q = `
INSERT INTO bot_users (chat_id, display_name, phone_number, username, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (chat_id) DO UPDATE SET
    display_name = COALESCE(EXCLUDED.display_name, bot_users.display_name),
    phone_number = COALESCE(EXCLUDED.phone_number, bot_users.phone_number),
    username = COALESCE(EXCLUDED.username, bot_users.username),
    updated_at = NOW()
RETURNING id, chat_id, display_name, phone_number, username, registered_at, updated_at;
`
	row := r.pool.QueryRow(ctx, q,
		profile.ChatID,
		profile.DisplayName,
		profile.PhoneNumber,
		profile.Username,
	)

	var u BotUser
	if err := row.Scan(&u.ID, &u.ChatID, &u.DisplayName, &u.PhoneNumber, &u.Username, &u.RegisteredAt, &u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert bot user: %w", err)
	}
	return &u, nil
}
