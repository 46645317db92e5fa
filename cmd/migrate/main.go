package main

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Схема целиком, idempotent: IF NOT EXISTS везде, безопасно гонять на старте.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS portfolios (
		id                 BIGSERIAL PRIMARY KEY,
		user_id            TEXT NOT NULL UNIQUE,
		total_capital      DOUBLE PRECISION NOT NULL DEFAULT 0,
		allocated_capital  DOUBLE PRECISION NOT NULL DEFAULT 0,
		available_capital  DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_active          BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS strategy_allocations (
		id                 BIGSERIAL PRIMARY KEY,
		portfolio_id       BIGINT NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
		strategy_name      TEXT NOT NULL,
		allocation_pct     DOUBLE PRECISION NOT NULL DEFAULT 0,
		allocated_capital  DOUBLE PRECISION NOT NULL DEFAULT 0,
		used_capital       DOUBLE PRECISION NOT NULL DEFAULT 0,
		realized_pnl       DOUBLE PRECISION NOT NULL DEFAULT 0,
		floating_pnl       DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_active          BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE (portfolio_id, strategy_name)
	)`,
	`CREATE TABLE IF NOT EXISTS pair_allocations (
		id                           BIGSERIAL PRIMARY KEY,
		strategy_allocation_id       BIGINT NOT NULL REFERENCES strategy_allocations(id) ON DELETE CASCADE,
		pair                         TEXT NOT NULL,
		allocated_capital            DOUBLE PRECISION NOT NULL DEFAULT 0,
		used_capital                 DOUBLE PRECISION NOT NULL DEFAULT 0,
		realized_pnl                 DOUBLE PRECISION NOT NULL DEFAULT 0,
		floating_pnl                 DOUBLE PRECISION NOT NULL DEFAULT 0,
		floating_loss_threshold_pct  DOUBLE PRECISION NOT NULL DEFAULT 20,
		is_active                    BOOLEAN NOT NULL DEFAULT TRUE,
		risk_breached                BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (strategy_allocation_id, pair)
	)`,
	`CREATE TABLE IF NOT EXISTS risk_events (
		id                  BIGSERIAL PRIMARY KEY,
		pair_allocation_id  BIGINT NOT NULL REFERENCES pair_allocations(id) ON DELETE CASCADE,
		event_type          TEXT NOT NULL,
		trigger_value       DOUBLE PRECISION NOT NULL,
		threshold_value     DOUBLE PRECISION NOT NULL,
		action_taken        TEXT NOT NULL,
		trades_closed       INTEGER NOT NULL DEFAULT 0,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS trading_tasks (
		task_id        TEXT PRIMARY KEY,
		session_id     TEXT NOT NULL,
		pair           TEXT NOT NULL,
		timeframe      TEXT NOT NULL,
		strategy_name  TEXT NOT NULL,
		config         JSONB,
		is_active      BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE INDEX IF NOT EXISTS trading_tasks_session_idx ON trading_tasks (session_id) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS trading_sessions (
		session_id         TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL,
		active_pairs       JSONB,
		active_timeframes  JSONB,
		active_strategies  JSONB,
		is_active          BOOLEAN NOT NULL DEFAULT TRUE,
		broker_connected   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_activity      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

func run() error {
	viper.SetEnvPrefix("")
	viper.AutomaticEnv()
	dsn := viper.GetString("DATABASE_DSN")
	if dsn == "" {
		return errors.New("DATABASE_DSN is required")
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return errors.Wrap(err, "connect")
	}
	defer func() { _ = conn.Close(ctx) }()

	for i, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "statement %d", i)
		}
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("migrate: schema is up to date")
}
