package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReferralRepository stores referral edges and credits referrers.
type ReferralRepository struct {
	pool *pgxpool.Pool
}

// NewReferralRepository creates a new ReferralRepository instance.
func NewReferralRepository(pool *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{pool: pool}
}

// Credit records the (referrer, referred) edge and adds tickets to the
// referrer in one transaction. It returns false without changes when the
// edge already exists. The referred participant's referred_by is set only if
// it was empty.
func (r *ReferralRepository) Credit(ctx context.Context, referrerID, referredID, tickets int64) (bool, error) {
	credited := false

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO referrals (referrer_id, referred_id, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (referrer_id, referred_id) DO NOTHING
		`, referrerID, referredID)
		if err != nil {
			if pgErrorCode(err) == pgForeignKeyViolation {
				return ErrParticipantNotFound
			}
			return fmt.Errorf("failed to insert referral: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		tag, err = tx.Exec(ctx, `
			UPDATE participants
			SET ticket_count = ticket_count + $2
			WHERE id = $1
		`, referrerID, tickets)
		if err != nil {
			return fmt.Errorf("failed to credit tickets: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrParticipantNotFound
		}

		_, err = tx.Exec(ctx, `
			UPDATE participants
			SET referred_by = $1
			WHERE id = $2 AND referred_by IS NULL
		`, referrerID, referredID)
		if err != nil {
			return fmt.Errorf("failed to set referred_by: %w", err)
		}

		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return credited, nil
}

// Exists reports whether the edge has already been recorded.
func (r *ReferralRepository) Exists(ctx context.Context, referrerID, referredID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM referrals WHERE referrer_id = $1 AND referred_id = $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, referrerID, referredID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check referral existence: %w", err)
	}
	return exists, nil
}

// CountByReferrer returns how many people the participant has referred.
func (r *ReferralRepository) CountByReferrer(ctx context.Context, referrerID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM referrals WHERE referrer_id = $1`

	var count int64
	if err := r.pool.QueryRow(ctx, query, referrerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}
	return count, nil
}
