package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type migration struct {
	name string
	sql  string
}

// migrations are applied in order; every statement is idempotent.
var migrations = []migration{
	{
		name: "participants",
		sql: `
		CREATE TABLE IF NOT EXISTS participants (
			id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL DEFAULT '',
			first_name VARCHAR(255) NOT NULL DEFAULT '',
			last_name VARCHAR(255) NOT NULL DEFAULT '',
			referral_code VARCHAR(32) NOT NULL UNIQUE,
			referred_by BIGINT REFERENCES participants(id),
			ticket_count BIGINT NOT NULL DEFAULT 0 CHECK (ticket_count >= 0),
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_participants_tickets
			ON participants(ticket_count DESC) WHERE ticket_count > 0;
	`,
	},
	{
		name: "referrals",
		sql: `
		CREATE TABLE IF NOT EXISTS referrals (
			id BIGSERIAL PRIMARY KEY,
			referrer_id BIGINT NOT NULL REFERENCES participants(id),
			referred_id BIGINT NOT NULL REFERENCES participants(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (referrer_id, referred_id)
		);
		CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals(referrer_id);
	`,
	},
	{
		name: "draws",
		sql: `
		CREATE TABLE IF NOT EXISTS draws (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			prize_description TEXT NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL DEFAULT 'active'
				CHECK (status IN ('active', 'completed', 'cancelled')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			scheduled_end TIMESTAMPTZ,
			ended_at TIMESTAMPTZ,
			winner_id BIGINT REFERENCES participants(id),
			total_tickets BIGINT
		);
		CREATE INDEX IF NOT EXISTS idx_draws_due ON draws(status, scheduled_end);
	`,
	},
}

// Migrate creates the schema.
func Migrate(ctx context.Context, db Execer) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
