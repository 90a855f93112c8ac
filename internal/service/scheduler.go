package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"invite2win/internal/metrics"
	"invite2win/internal/model"
)

// ErrSchedulerRunning is returned by Start on a scheduler that is not idle.
var ErrSchedulerRunning = errors.New("scheduler already running")

// Notifier delivers final draw outcomes.
type Notifier interface {
	Notify(ctx context.Context, outcome *model.DrawOutcome) error
}

// DueResolver is the part of DrawEngine the scheduler drives.
type DueResolver interface {
	DueDraws(ctx context.Context) ([]*model.Draw, error)
	Resolve(ctx context.Context, drawID int64) (*model.DrawOutcome, error)
}

// SchedulerState is the lifecycle state of a Scheduler.
type SchedulerState int32

const (
	SchedulerIdle SchedulerState = iota
	SchedulerRunning
	SchedulerShuttingDown
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerIdle:
		return "idle"
	case SchedulerRunning:
		return "running"
	case SchedulerShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

// Scheduler resolves due draws once at start and then on every tick.
type Scheduler struct {
	resolver       DueResolver
	notifier       Notifier
	interval       time.Duration
	resolveTimeout time.Duration

	state atomic.Int32

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
}

// NewScheduler creates a new Scheduler. notifier may be nil.
// resolveTimeout <= 0 means a resolution is bounded only by the pass context.
func NewScheduler(resolver DueResolver, notifier Notifier, interval, resolveTimeout time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		resolver:       resolver,
		notifier:       notifier,
		interval:       interval,
		resolveTimeout: resolveTimeout,
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() SchedulerState {
	return SchedulerState(s.state.Load())
}

// Start launches the scheduling goroutine. Cancelling ctx stops it as well.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(SchedulerIdle), int32(SchedulerRunning)) {
		return ErrSchedulerRunning
	}

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.cancel = cancel
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	log.Info().Dur("interval", s.interval).Msg("Scheduler started")
	go s.loop(runCtx, stopCh, done)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	s.RunPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunPass(ctx)
		}
	}
}

// Stop stops scheduling and waits for the in-flight pass to finish. If ctx
// expires first the pass is cancelled, which aborts a resolution before its
// commit, and Stop still waits for the goroutine to exit. Stop on an idle
// scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(SchedulerRunning), int32(SchedulerShuttingDown)) {
		return nil
	}
	defer s.state.Store(int32(SchedulerIdle))

	s.mu.Lock()
	stopCh, done, cancel := s.stopCh, s.done, s.cancel
	s.mu.Unlock()

	close(stopCh)

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("Scheduler shutdown timed out, cancelling in-flight pass")
		cancel()
		<-done
		err = ctx.Err()
	}
	cancel()

	log.Info().Msg("Scheduler stopped")
	return err
}

// RunPass resolves every due draw once, sequentially. Failures are logged
// and the pass moves on. It returns the number of final outcomes.
func (s *Scheduler) RunPass(ctx context.Context) int {
	defer metrics.SchedulerPasses.Inc()

	due, err := s.resolver.DueDraws(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list due draws")
		return 0
	}
	if len(due) == 0 {
		log.Debug().Msg("No due draws")
		return 0
	}

	log.Info().Int("count", len(due)).Msg("Resolving due draws")

	finals := 0
	for _, d := range due {
		if ctx.Err() != nil {
			log.Warn().Int64("draw_id", d.ID).Msg("Pass cancelled, leaving remaining draws for next pass")
			break
		}

		outcome, err := s.resolve(ctx, d.ID)
		if err != nil {
			log.Error().Err(err).Int64("draw_id", d.ID).Msg("Scheduled resolution failed")
			continue
		}
		if !outcome.Final() {
			continue
		}
		finals++

		if s.notifier == nil {
			continue
		}
		if err := s.notifier.Notify(ctx, outcome); err != nil {
			metrics.NotificationFailures.Inc()
			log.Error().Err(err).Int64("draw_id", d.ID).Msg("Failed to publish draw outcome")
		}
	}

	return finals
}

func (s *Scheduler) resolve(ctx context.Context, drawID int64) (*model.DrawOutcome, error) {
	if s.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.resolveTimeout)
		defer cancel()
	}
	return s.resolver.Resolve(ctx, drawID)
}
