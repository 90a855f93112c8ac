package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"invite2win/internal/model"
	"invite2win/internal/repository"
)

// memLedger is an in-memory participant store with repository semantics.
type memLedger struct {
	mu           sync.Mutex
	participants map[int64]*model.Participant
	listErr      error
}

func newMemLedger() *memLedger {
	return &memLedger{participants: make(map[int64]*model.Participant)}
}

func (l *memLedger) add(id, tickets int64) *model.Participant {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := &model.Participant{
		ID:           id,
		FirstName:    "user",
		ReferralCode: GenerateReferralCode(),
		TicketCount:  tickets,
		JoinedAt:     time.Now(),
	}
	l.participants[id] = p
	return p
}

func (l *memLedger) tickets(id int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.participants[id]; ok {
		return p.TicketCount
	}
	return -1
}

func (l *memLedger) exists(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.participants[id]
	return ok
}

func (l *memLedger) ListWithTickets(ctx context.Context) ([]*model.Participant, error) {
	if l.listErr != nil {
		return nil, l.listErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*model.Participant
	for _, p := range l.participants {
		if p.TicketCount != 0 {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *memLedger) GetOrCreate(ctx context.Context, p *model.Participant) (*model.Participant, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.participants[p.ID]; ok {
		cp := *existing
		return &cp, false, nil
	}
	for _, other := range l.participants {
		if other.ReferralCode == p.ReferralCode {
			return nil, false, repository.ErrReferralCodeTaken
		}
	}
	cp := *p
	cp.TicketCount = 0
	cp.JoinedAt = time.Now()
	l.participants[p.ID] = &cp
	out := cp
	return &out, true, nil
}

func (l *memLedger) GetByID(ctx context.Context, id int64) (*model.Participant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.participants[id]
	if !ok {
		return nil, repository.ErrParticipantNotFound
	}
	cp := *p
	return &cp, nil
}

func (l *memLedger) GetByReferralCode(ctx context.Context, code string) (*model.Participant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.participants {
		if p.ReferralCode == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrParticipantNotFound
}

func (l *memLedger) UpdateProfile(ctx context.Context, id int64, username, firstName, lastName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.participants[id]
	if !ok {
		return repository.ErrParticipantNotFound
	}
	p.Username, p.FirstName, p.LastName = username, firstName, lastName
	return nil
}

func (l *memLedger) Top(ctx context.Context, limit int) ([]*model.Participant, error) {
	all, _ := l.ListWithTickets(ctx)
	sort.SliceStable(all, func(i, j int) bool { return all[i].TicketCount > all[j].TicketCount })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (l *memLedger) TotalTickets(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, p := range l.participants {
		total += p.TicketCount
	}
	return total, nil
}

// memReferrals credits the shared ledger, mirroring the repository transaction.
type memReferrals struct {
	mu     sync.Mutex
	ledger *memLedger
	edges  map[[2]int64]bool
}

func newMemReferrals(ledger *memLedger) *memReferrals {
	return &memReferrals{ledger: ledger, edges: make(map[[2]int64]bool)}
}

func (r *memReferrals) Credit(ctx context.Context, referrerID, referredID, tickets int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := [2]int64{referrerID, referredID}
	if r.edges[key] {
		return false, nil
	}

	r.ledger.mu.Lock()
	defer r.ledger.mu.Unlock()
	referrer, ok := r.ledger.participants[referrerID]
	if !ok {
		return false, repository.ErrParticipantNotFound
	}
	referred, ok := r.ledger.participants[referredID]
	if !ok {
		return false, repository.ErrParticipantNotFound
	}

	r.edges[key] = true
	referrer.TicketCount += tickets
	if referred.ReferredBy == nil {
		id := referrerID
		referred.ReferredBy = &id
	}
	return true, nil
}

func (r *memReferrals) CountByReferrer(ctx context.Context, referrerID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k := range r.edges {
		if k[0] == referrerID {
			n++
		}
	}
	return n, nil
}

// memDraws mirrors DrawRepository including the conditional completion.
type memDraws struct {
	mu     sync.Mutex
	nextID int64
	draws  map[int64]*model.Draw
	// winnerExists backs the foreign key check on completion.
	winnerExists func(id int64) bool
	completes    atomic.Int64
	completeErr  error
}

func newMemDraws(ledger *memLedger) *memDraws {
	return &memDraws{
		draws:        make(map[int64]*model.Draw),
		winnerExists: ledger.exists,
	}
}

func (s *memDraws) Create(ctx context.Context, name, prize string, scheduledEnd *time.Time) (*model.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	d := &model.Draw{
		ID:           s.nextID,
		Name:         name,
		Prize:        prize,
		Status:       model.DrawActive,
		CreatedAt:    time.Now(),
		ScheduledEnd: scheduledEnd,
	}
	s.draws[d.ID] = d
	cp := *d
	return &cp, nil
}

func (s *memDraws) GetByID(ctx context.Context, id int64) (*model.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.draws[id]
	if !ok {
		return nil, repository.ErrDrawNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *memDraws) get(id int64) model.Draw {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.draws[id]
}

func (s *memDraws) ListActive(ctx context.Context) ([]*model.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Draw
	for _, d := range s.draws {
		if d.Status == model.DrawActive {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memDraws) ListDue(ctx context.Context, now time.Time) ([]*model.Draw, error) {
	active, _ := s.ListActive(ctx)
	var out []*model.Draw
	for _, d := range active {
		if d.Due(now) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memDraws) Complete(ctx context.Context, id int64, c repository.Completion) (*model.Draw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.draws[id]
	if !ok {
		return nil, repository.ErrDrawNotFound
	}
	if d.Status != model.DrawActive {
		return nil, repository.ErrDrawNotActive
	}
	if c.WinnerID != nil && !s.winnerExists(*c.WinnerID) {
		return nil, repository.ErrWinnerNotFound
	}
	ended := c.EndedAt
	d.Status = model.DrawCompleted
	d.WinnerID = c.WinnerID
	d.TotalTickets = c.TotalTickets
	d.EndedAt = &ended
	s.completes.Add(1)
	cp := *d
	return &cp, nil
}

func (s *memDraws) Cancel(ctx context.Context, id int64, endedAt time.Time) (*model.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.draws[id]
	if !ok {
		return nil, repository.ErrDrawNotFound
	}
	if d.Status != model.DrawActive {
		return nil, repository.ErrDrawNotActive
	}
	d.Status = model.DrawCancelled
	d.EndedAt = &endedAt
	cp := *d
	return &cp, nil
}

// fakeOracle answers from a member set; ids in fail return an error.
type fakeOracle struct {
	mu      sync.Mutex
	members map[int64]bool
	fail    map[int64]bool
	block   chan struct{}
	calls   atomic.Int64
}

func newFakeOracle(members ...int64) *fakeOracle {
	o := &fakeOracle{members: make(map[int64]bool), fail: make(map[int64]bool)}
	for _, id := range members {
		o.members[id] = true
	}
	return o
}

var errOracleDown = errors.New("getChatMember: connection reset")

func (o *fakeOracle) IsMember(ctx context.Context, userID int64) (bool, error) {
	o.calls.Add(1)
	if o.block != nil {
		select {
		case <-o.block:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail[userID] {
		return false, errOracleDown
	}
	return o.members[userID], nil
}

func (o *fakeOracle) setMember(id int64, member bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.members[id] = member
}

// recordingNotifier collects outcomes.
type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []*model.DrawOutcome
	err      error
}

func (n *recordingNotifier) Notify(ctx context.Context, outcome *model.DrawOutcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, outcome)
	return n.err
}

func (n *recordingNotifier) all() []*model.DrawOutcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*model.DrawOutcome(nil), n.outcomes...)
}
