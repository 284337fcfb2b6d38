package store

import (
	"context"
	"errors"
	"fmt"
	"modbot/internal/core/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var ErrInvalidInstallation = errors.New("installation needs a user id and access token")

const createInstallations = `
CREATE TABLE IF NOT EXISTS user_installations (
	user_id BIGINT PRIMARY KEY,
	access_token TEXT NOT NULL,
	refresh_token TEXT,
	token_expires_at TIMESTAMPTZ,
	installed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_used TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const upsertInstallation = `
INSERT INTO user_installations (user_id, access_token, refresh_token, token_expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE SET
	access_token = EXCLUDED.access_token,
	refresh_token = EXCLUDED.refresh_token,
	token_expires_at = EXCLUDED.token_expires_at,
	last_used = NOW()`

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Postgres persists user app installations.
type Postgres struct {
	db execer
}

func NewPostgres(db execer) *Postgres {
	return &Postgres{db: db}
}

// NewPool connects to databaseURL and verifies the connection.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("error creating database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	return pool, nil
}

func (p *Postgres) Ensure(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createInstallations); err != nil {
		return fmt.Errorf("error creating user_installations table: %w", err)
	}

	return nil
}

func (p *Postgres) UpsertInstallation(ctx context.Context, installation domain.Installation) error {
	if installation.UserID == 0 || installation.AccessToken == "" {
		return ErrInvalidInstallation
	}

	var refreshToken, expiresAt any
	if installation.RefreshToken != "" {
		refreshToken = installation.RefreshToken
	}
	if !installation.ExpiresAt.IsZero() {
		expiresAt = installation.ExpiresAt
	}

	tag, err := p.db.Exec(ctx, upsertInstallation, installation.UserID, installation.AccessToken, refreshToken, expiresAt)
	if err != nil {
		return fmt.Errorf("error storing installation: %w", err)
	}

	log.Debug().Int64("userId", installation.UserID).Int64("rows", tag.RowsAffected()).Msg("stored user installation")

	return nil
}
