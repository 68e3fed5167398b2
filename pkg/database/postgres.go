package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/kyc-attestation-api/pkg/config"
)

// Schema creates the journal tables when they are missing.
const Schema = `
CREATE TABLE IF NOT EXISTS uploads (
	id           UUID PRIMARY KEY,
	owner        TEXT NOT NULL,
	cid          TEXT NOT NULL,
	display_name TEXT NOT NULL,
	byte_size    BIGINT NOT NULL,
	fingerprint  TEXT NOT NULL,
	gateway_url  TEXT NOT NULL,
	status       TEXT NOT NULL,
	tx_hash      TEXT,
	last_error   TEXT,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS uploads_owner_status_idx ON uploads (owner, status);
CREATE TABLE IF NOT EXISTS ledger_actions (
	id          UUID PRIMARY KEY,
	actor       TEXT NOT NULL,
	action      TEXT NOT NULL,
	target      TEXT,
	doc_index   TEXT,
	tx_hash     TEXT,
	outcome     TEXT NOT NULL,
	error_code  TEXT,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_actions_actor_idx ON ledger_actions (actor, created_at DESC);
`

// NewPostgres returns a configured PostgreSQL client with the journal schema applied.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	return db, nil
}
