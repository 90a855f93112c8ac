package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"invite2win/internal/model"
)

var (
	ErrDrawNotFound   = errors.New("draw not found")
	ErrDrawNotActive  = errors.New("draw is not active")
	ErrWinnerNotFound = errors.New("winner is not a known participant")
)

const drawColumns = `id, name, prize_description, status, created_at, scheduled_end, ended_at, winner_id, total_tickets`

func scanDraw(row pgx.Row) (*model.Draw, error) {
	var d model.Draw
	var status string
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Prize,
		&status,
		&d.CreatedAt,
		&d.ScheduledEnd,
		&d.EndedAt,
		&d.WinnerID,
		&d.TotalTickets,
	)
	if err != nil {
		return nil, err
	}
	d.Status = model.DrawStatus(status)
	return &d, nil
}

func collectDraws(rows pgx.Rows) ([]*model.Draw, error) {
	defer rows.Close()

	var draws []*model.Draw
	for rows.Next() {
		d, err := scanDraw(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draw: %w", err)
		}
		draws = append(draws, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating draws: %w", err)
	}

	return draws, nil
}

// Completion is the terminal write for a resolved draw.
// WinnerID and TotalTickets stay nil when nobody was eligible.
type Completion struct {
	WinnerID     *int64
	TotalTickets *int64
	EndedAt      time.Time
}

// DrawRepository handles draw records and their status transitions.
type DrawRepository struct {
	pool *pgxpool.Pool
}

// NewDrawRepository creates a new DrawRepository instance.
func NewDrawRepository(pool *pgxpool.Pool) *DrawRepository {
	return &DrawRepository{pool: pool}
}

// Create inserts an active draw. scheduledEnd may be nil for open-ended draws.
func (r *DrawRepository) Create(ctx context.Context, name, prize string, scheduledEnd *time.Time) (*model.Draw, error) {
	query := `
		INSERT INTO draws (name, prize_description, status, created_at, scheduled_end)
		VALUES ($1, $2, 'active', NOW(), $3)
		RETURNING ` + drawColumns

	d, err := scanDraw(r.pool.QueryRow(ctx, query, name, prize, scheduledEnd))
	if err != nil {
		return nil, fmt.Errorf("failed to create draw: %w", err)
	}
	return d, nil
}

// GetByID retrieves a draw by ID.
func (r *DrawRepository) GetByID(ctx context.Context, id int64) (*model.Draw, error) {
	query := `SELECT ` + drawColumns + ` FROM draws WHERE id = $1`

	d, err := scanDraw(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDrawNotFound
		}
		return nil, fmt.Errorf("failed to get draw: %w", err)
	}
	return d, nil
}

// ListActive returns active draws, oldest first.
func (r *DrawRepository) ListActive(ctx context.Context) ([]*model.Draw, error) {
	query := `SELECT ` + drawColumns + ` FROM draws WHERE status = 'active' ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active draws: %w", err)
	}
	return collectDraws(rows)
}

// ListDue returns active draws whose scheduled end is at or before now.
func (r *DrawRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Draw, error) {
	query := `
		SELECT ` + drawColumns + `
		FROM draws
		WHERE status = 'active' AND scheduled_end IS NOT NULL AND scheduled_end <= $1
		ORDER BY scheduled_end, id`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due draws: %w", err)
	}
	return collectDraws(rows)
}

// Complete moves an active draw to completed. The status is re-checked under
// a row lock, so a draw is completed at most once; the loser of a race gets
// ErrDrawNotActive.
func (r *DrawRepository) Complete(ctx context.Context, id int64, c Completion) (*model.Draw, error) {
	var completed *model.Draw

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM draws WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrDrawNotFound
			}
			return fmt.Errorf("failed to lock draw: %w", err)
		}
		if model.DrawStatus(status) != model.DrawActive {
			return ErrDrawNotActive
		}

		if c.WinnerID != nil {
			var exists bool
			err := tx.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM participants WHERE id = $1)`, *c.WinnerID,
			).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check winner: %w", err)
			}
			if !exists {
				return ErrWinnerNotFound
			}
		}

		query := `
			UPDATE draws
			SET status = 'completed', winner_id = $2, total_tickets = $3, ended_at = $4
			WHERE id = $1
			RETURNING ` + drawColumns

		completed, err = scanDraw(tx.QueryRow(ctx, query, id, c.WinnerID, c.TotalTickets, c.EndedAt))
		if err != nil {
			return fmt.Errorf("failed to complete draw: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return completed, nil
}

// Cancel moves an active draw to cancelled.
func (r *DrawRepository) Cancel(ctx context.Context, id int64, endedAt time.Time) (*model.Draw, error) {
	query := `
		UPDATE draws
		SET status = 'cancelled', ended_at = $2
		WHERE id = $1 AND status = 'active'
		RETURNING ` + drawColumns

	d, err := scanDraw(r.pool.QueryRow(ctx, query, id, endedAt))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to cancel draw: %w", err)
	}

	// Nothing updated: tell missing apart from already closed.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrDrawNotActive
}
