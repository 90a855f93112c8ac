// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"invite2win/internal/model"
)

// Common errors for repository operations.
var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrReferralCodeTaken   = errors.New("referral code already in use")
)

const participantColumns = `id, username, first_name, last_name, referral_code, referred_by, ticket_count, joined_at`

// pgUniqueViolation and pgForeignKeyViolation are PostgreSQL SQLSTATE codes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func scanParticipant(row pgx.Row) (*model.Participant, error) {
	var p model.Participant
	err := row.Scan(
		&p.ID,
		&p.Username,
		&p.FirstName,
		&p.LastName,
		&p.ReferralCode,
		&p.ReferredBy,
		&p.TicketCount,
		&p.JoinedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectParticipants(rows pgx.Rows) ([]*model.Participant, error) {
	defer rows.Close()

	var participants []*model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return participants, nil
}

// ParticipantRepository is the ticket ledger. Ticket counts only change
// through ReferralRepository.Credit.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new ParticipantRepository instance.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

// Create inserts a participant with zero tickets.
// Returns ErrReferralCodeTaken when the code collides with another participant.
func (r *ParticipantRepository) Create(ctx context.Context, p *model.Participant) (*model.Participant, error) {
	query := `
		INSERT INTO participants (id, username, first_name, last_name, referral_code, ticket_count, joined_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW())
		RETURNING ` + participantColumns

	created, err := scanParticipant(r.pool.QueryRow(ctx, query,
		p.ID, p.Username, p.FirstName, p.LastName, p.ReferralCode,
	))
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			// the primary key collision is handled by GetOrCreate
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.ConstraintName == "participants_referral_code_key" {
				return nil, ErrReferralCodeTaken
			}
		}
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}

	return created, nil
}

// GetByID retrieves a participant by Telegram user ID.
func (r *ParticipantRepository) GetByID(ctx context.Context, id int64) (*model.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1`

	p, err := scanParticipant(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

// GetByReferralCode resolves a referral code to its owner.
func (r *ParticipantRepository) GetByReferralCode(ctx context.Context, code string) (*model.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE referral_code = $1`

	p, err := scanParticipant(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant by code: %w", err)
	}
	return p, nil
}

// GetOrCreate returns the participant with p.ID, inserting p if absent.
// The bool result is true when a row was inserted.
func (r *ParticipantRepository) GetOrCreate(ctx context.Context, p *model.Participant) (*model.Participant, bool, error) {
	existing, err := r.GetByID(ctx, p.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrParticipantNotFound) {
		return nil, false, err
	}

	created, err := r.Create(ctx, p)
	if err != nil {
		if errors.Is(err, ErrReferralCodeTaken) {
			return nil, false, err
		}
		// Handle race condition: another request might have created the row
		existing, getErr := r.GetByID(ctx, p.ID)
		if getErr != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	return created, true, nil
}

// UpdateProfile refreshes the Telegram profile fields.
func (r *ParticipantRepository) UpdateProfile(ctx context.Context, id int64, username, firstName, lastName string) error {
	const query = `
		UPDATE participants
		SET username = $2, first_name = $3, last_name = $4
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, username, firstName, lastName)
	if err != nil {
		return fmt.Errorf("failed to update participant profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// ListWithTickets returns every participant holding at least one ticket.
func (r *ParticipantRepository) ListWithTickets(ctx context.Context) ([]*model.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE ticket_count > 0 ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants with tickets: %w", err)
	}
	return collectParticipants(rows)
}

// Top returns up to limit participants ordered by ticket count.
func (r *ParticipantRepository) Top(ctx context.Context, limit int) ([]*model.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM participants
		WHERE ticket_count > 0
		ORDER BY ticket_count DESC, joined_at ASC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top participants: %w", err)
	}
	return collectParticipants(rows)
}

// TotalTickets sums all ticket counts.
func (r *ParticipantRepository) TotalTickets(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(SUM(ticket_count), 0)::BIGINT FROM participants`

	var total int64
	if err := r.pool.QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum tickets: %w", err)
	}
	return total, nil
}
