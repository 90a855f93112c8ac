// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"invite2win/internal/membership"
	"invite2win/internal/metrics"
	"invite2win/internal/model"
	"invite2win/internal/pkg/lock"
	"invite2win/internal/repository"
)

// InstantDrawName is the name given to draws created by InstantDraw.
const InstantDrawName = "Instant draw"

// DrawStore persists draws. Implemented by repository.DrawRepository.
type DrawStore interface {
	Create(ctx context.Context, name, prize string, scheduledEnd *time.Time) (*model.Draw, error)
	GetByID(ctx context.Context, id int64) (*model.Draw, error)
	ListActive(ctx context.Context) ([]*model.Draw, error)
	ListDue(ctx context.Context, now time.Time) ([]*model.Draw, error)
	Complete(ctx context.Context, id int64, c repository.Completion) (*model.Draw, error)
	Cancel(ctx context.Context, id int64, endedAt time.Time) (*model.Draw, error)
}

// TicketLedger is the read side of the participant store the engine needs.
type TicketLedger interface {
	ListWithTickets(ctx context.Context) ([]*model.Participant, error)
}

// DrawEngine selects winners and moves draws through their lifecycle.
type DrawEngine struct {
	draws       DrawStore
	ledger      TicketLedger
	oracle      membership.Oracle
	locks       *lock.KeyLock
	concurrency int
	now         func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// EngineOption configures a DrawEngine.
type EngineOption func(*DrawEngine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *DrawEngine) { e.now = now }
}

// WithRand sets the random source used for winner selection.
func WithRand(r *rand.Rand) EngineOption {
	return func(e *DrawEngine) { e.rng = r }
}

// WithMembershipConcurrency bounds parallel oracle lookups per resolution.
func WithMembershipConcurrency(n int) EngineOption {
	return func(e *DrawEngine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewDrawEngine creates a new DrawEngine instance.
func NewDrawEngine(draws DrawStore, ledger TicketLedger, oracle membership.Oracle, opts ...EngineOption) *DrawEngine {
	e := &DrawEngine{
		draws:       draws,
		ledger:      ledger,
		oracle:      oracle,
		locks:       lock.NewKeyLock(),
		concurrency: 8,
		now:         time.Now,
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve picks a winner for an active draw and completes it.
// A missing or already terminal draw yields a not_found / already_closed
// outcome rather than an error. Errors are integrity faults, storage
// failures or context cancellation; in every error case the draw is left
// untouched.
func (e *DrawEngine) Resolve(ctx context.Context, drawID int64) (*model.DrawOutcome, error) {
	start := time.Now()

	var outcome *model.DrawOutcome
	err := e.locks.WithLock(ctx, drawID, func() error {
		var err error
		outcome, err = e.resolveLocked(ctx, drawID)
		return err
	})
	if err != nil {
		metrics.RecordResolution("error", time.Since(start).Seconds())
		log.Error().Err(err).Int64("draw_id", drawID).Msg("Draw resolution failed")
		return nil, err
	}

	metrics.RecordResolution(string(outcome.Kind), time.Since(start).Seconds())
	log.Info().
		Int64("draw_id", drawID).
		Str("outcome", string(outcome.Kind)).
		Int64("winner_id", outcome.WinnerID).
		Int64("total_tickets", outcome.TotalTickets).
		Int("eligible", outcome.EligibleCount).
		Int("candidates", outcome.CandidateCount).
		Msg("Draw resolved")

	return outcome, nil
}

func (e *DrawEngine) resolveLocked(ctx context.Context, drawID int64) (*model.DrawOutcome, error) {
	d, err := e.draws.GetByID(ctx, drawID)
	if err != nil {
		if errors.Is(err, repository.ErrDrawNotFound) {
			return &model.DrawOutcome{Kind: model.OutcomeNotFound, DrawID: drawID}, nil
		}
		return nil, fmt.Errorf("failed to load draw: %w", err)
	}

	outcome := &model.DrawOutcome{
		DrawID:   d.ID,
		DrawName: d.Name,
		Prize:    d.Prize,
	}
	if d.Status != model.DrawActive {
		outcome.Kind = model.OutcomeAlreadyClosed
		return outcome, nil
	}

	holders, err := e.ledger.ListWithTickets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ticket holders: %w", err)
	}
	if _, err := totalTickets(holders); err != nil {
		return nil, err
	}

	candidates := make([]*model.Participant, 0, len(holders))
	for _, p := range holders {
		if p.TicketCount > 0 {
			candidates = append(candidates, p)
		}
	}
	outcome.CandidateCount = len(candidates)

	if len(candidates) == 0 {
		outcome.Kind = model.OutcomeNoParticipants
		return e.complete(ctx, outcome, repository.Completion{})
	}

	eligible, err := e.filterMembers(ctx, candidates)
	if err != nil {
		return nil, err
	}
	outcome.EligibleCount = len(eligible)

	if len(eligible) == 0 {
		outcome.Kind = model.OutcomeNoMembers
		return e.complete(ctx, outcome, repository.Completion{})
	}

	total, err := totalTickets(eligible)
	if err != nil {
		return nil, err
	}

	winner := pickWeighted(eligible, e.roll(total))
	if winner == nil {
		return nil, fmt.Errorf("draw %d: %w", drawID, ErrWinnerMissing)
	}

	outcome.Kind = model.OutcomeWinner
	outcome.WinnerID = winner.ID
	outcome.WinnerUsername = winner.Username
	outcome.WinnerFirstName = winner.FirstName
	outcome.WinnerTickets = winner.TicketCount
	outcome.TotalTickets = total
	outcome.WinChance = winChance(winner.TicketCount, total)

	return e.complete(ctx, outcome, repository.Completion{
		WinnerID:     &winner.ID,
		TotalTickets: &total,
	})
}

// complete performs the terminal write and maps the race outcomes.
func (e *DrawEngine) complete(ctx context.Context, outcome *model.DrawOutcome, c repository.Completion) (*model.DrawOutcome, error) {
	c.EndedAt = e.now()

	_, err := e.draws.Complete(ctx, outcome.DrawID, c)
	switch {
	case err == nil:
		outcome.ResolvedAt = c.EndedAt
		return outcome, nil
	case errors.Is(err, repository.ErrDrawNotActive):
		return &model.DrawOutcome{
			Kind:     model.OutcomeAlreadyClosed,
			DrawID:   outcome.DrawID,
			DrawName: outcome.DrawName,
			Prize:    outcome.Prize,
		}, nil
	case errors.Is(err, repository.ErrDrawNotFound):
		return &model.DrawOutcome{Kind: model.OutcomeNotFound, DrawID: outcome.DrawID}, nil
	case errors.Is(err, repository.ErrWinnerNotFound):
		return nil, fmt.Errorf("draw %d winner %d: %w", outcome.DrawID, outcome.WinnerID, ErrWinnerMissing)
	default:
		return nil, fmt.Errorf("failed to complete draw: %w", err)
	}
}

// filterMembers keeps candidates the oracle confirms as channel members.
// Lookup failures count as non-membership for this pass.
func (e *DrawEngine) filterMembers(ctx context.Context, candidates []*model.Participant) ([]*model.Participant, error) {
	member := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, p := range candidates {
		g.Go(func() error {
			ok, err := e.oracle.IsMember(gctx, p.ID)
			if err != nil {
				// A lookup that never reached the API says nothing about membership.
				if gctx.Err() != nil || errors.Is(err, membership.ErrThrottled) {
					metrics.RecordMembershipCheck(metrics.ResultError)
					return fmt.Errorf("user %d: %w", p.ID, err)
				}
				metrics.RecordMembershipCheck(metrics.ResultError)
				log.Warn().Err(err).Int64("user_id", p.ID).Msg("Membership lookup failed, treating as non-member")
				return nil
			}
			if ok {
				metrics.RecordMembershipCheck(metrics.ResultMember)
			} else {
				metrics.RecordMembershipCheck(metrics.ResultNonMember)
			}
			member[i] = ok
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("membership check aborted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("membership check aborted: %w", err)
	}

	eligible := make([]*model.Participant, 0, len(candidates))
	for i, p := range candidates {
		if member[i] {
			eligible = append(eligible, p)
		}
	}
	return eligible, nil
}

func (e *DrawEngine) roll(total int64) int64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Int64N(total)
}

// Cancel moves an active draw to cancelled. A missing or already terminal
// draw yields a not_found / already_closed outcome rather than an error.
func (e *DrawEngine) Cancel(ctx context.Context, drawID int64) (*model.DrawOutcome, error) {
	var outcome *model.DrawOutcome

	err := e.locks.WithLock(ctx, drawID, func() error {
		d, err := e.draws.Cancel(ctx, drawID, e.now())
		switch {
		case err == nil:
			outcome = &model.DrawOutcome{
				Kind:     model.OutcomeCancelled,
				DrawID:   d.ID,
				DrawName: d.Name,
				Prize:    d.Prize,
			}
			if d.EndedAt != nil {
				outcome.ResolvedAt = *d.EndedAt
			}
			return nil
		case errors.Is(err, repository.ErrDrawNotFound):
			outcome = &model.DrawOutcome{Kind: model.OutcomeNotFound, DrawID: drawID}
			return nil
		case errors.Is(err, repository.ErrDrawNotActive):
			outcome = &model.DrawOutcome{Kind: model.OutcomeAlreadyClosed, DrawID: drawID}
			if closed, err := e.draws.GetByID(ctx, drawID); err == nil {
				outcome.DrawName = closed.Name
				outcome.Prize = closed.Prize
			}
			return nil
		default:
			return fmt.Errorf("failed to cancel draw: %w", err)
		}
	})
	if err != nil {
		return nil, err
	}

	if outcome.Kind == model.OutcomeCancelled {
		metrics.RecordResolution(string(model.OutcomeCancelled), 0)
		log.Info().Int64("draw_id", drawID).Msg("Draw cancelled")
	}
	return outcome, nil
}

// ScheduleEnd creates an active draw ending durationDays from now.
// Zero days makes the draw due immediately.
func (e *DrawEngine) ScheduleEnd(ctx context.Context, name, prize string, durationDays int) (*model.Draw, error) {
	if durationDays < 0 {
		return nil, fmt.Errorf("%d days: %w", durationDays, ErrInvalidDuration)
	}

	end := e.now().AddDate(0, 0, durationDays)
	d, err := e.draws.Create(ctx, name, prize, &end)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule draw: %w", err)
	}

	log.Info().
		Int64("draw_id", d.ID).
		Str("name", name).
		Int("days", durationDays).
		Time("scheduled_end", end).
		Msg("Draw scheduled")

	return d, nil
}

// InstantDraw creates a draw and resolves it right away.
func (e *DrawEngine) InstantDraw(ctx context.Context, prize string) (*model.DrawOutcome, error) {
	d, err := e.ScheduleEnd(ctx, InstantDrawName, prize, 0)
	if err != nil {
		return nil, err
	}
	return e.Resolve(ctx, d.ID)
}

// ActiveDraws lists draws that are still open.
func (e *DrawEngine) ActiveDraws(ctx context.Context) ([]*model.Draw, error) {
	return e.draws.ListActive(ctx)
}

// DueDraws lists active draws whose scheduled end has passed.
func (e *DrawEngine) DueDraws(ctx context.Context) ([]*model.Draw, error) {
	return e.draws.ListDue(ctx, e.now())
}

// Draw returns a single draw.
func (e *DrawEngine) Draw(ctx context.Context, drawID int64) (*model.Draw, error) {
	return e.draws.GetByID(ctx, drawID)
}

// VerifyMembers audits ticket holders against the channel.
// Failed lookups count as non-members.
func (e *DrawEngine) VerifyMembers(ctx context.Context) (model.MembershipReport, error) {
	holders, err := e.ledger.ListWithTickets(ctx)
	if err != nil {
		return model.MembershipReport{}, fmt.Errorf("failed to list ticket holders: %w", err)
	}

	candidates := make([]*model.Participant, 0, len(holders))
	for _, p := range holders {
		if p.TicketCount > 0 {
			candidates = append(candidates, p)
		}
	}

	members, err := e.filterMembers(ctx, candidates)
	if err != nil {
		return model.MembershipReport{}, err
	}

	report := model.MembershipReport{
		Total:      len(candidates),
		Members:    len(members),
		NonMembers: len(candidates) - len(members),
	}
	log.Info().
		Int("total", report.Total).
		Int("members", report.Members).
		Int("non_members", report.NonMembers).
		Msg("Membership verified")

	return report, nil
}
