// Package model defines the data models for the referral draw bot.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Participant is a Telegram user who can accrue tickets.
type Participant struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	FirstName    string    `db:"first_name"`
	LastName     string    `db:"last_name"`
	ReferralCode string    `db:"referral_code"`
	ReferredBy   *int64    `db:"referred_by"`
	TicketCount  int64     `db:"ticket_count"`
	JoinedAt     time.Time `db:"joined_at"`
}

// DisplayName returns @username when set, otherwise the first name.
func (p *Participant) DisplayName() string {
	if p.Username != "" {
		return "@" + p.Username
	}
	return p.FirstName
}

// ReferralEdge records that ReferrerID brought in ReferredID.
// At most one edge exists per pair.
type ReferralEdge struct {
	ID         int64     `db:"id"`
	ReferrerID int64     `db:"referrer_id"`
	ReferredID int64     `db:"referred_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// DrawStatus is the lifecycle state of a draw.
type DrawStatus string

// Draw statuses. Completed and cancelled are terminal.
const (
	DrawActive    DrawStatus = "active"
	DrawCompleted DrawStatus = "completed"
	DrawCancelled DrawStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s DrawStatus) Terminal() bool {
	return s == DrawCompleted || s == DrawCancelled
}

// Draw is a prize draw record.
type Draw struct {
	ID           int64      `db:"id"`
	Name         string     `db:"name"`
	Prize        string     `db:"prize_description"`
	Status       DrawStatus `db:"status"`
	CreatedAt    time.Time  `db:"created_at"`
	ScheduledEnd *time.Time `db:"scheduled_end"`
	EndedAt      *time.Time `db:"ended_at"`
	WinnerID     *int64     `db:"winner_id"`
	TotalTickets *int64     `db:"total_tickets"`
}

// Due reports whether an active draw has reached its scheduled end.
func (d *Draw) Due(now time.Time) bool {
	return d.Status == DrawActive && d.ScheduledEnd != nil && !d.ScheduledEnd.After(now)
}

// OutcomeKind classifies the result of a resolve or cancel call.
type OutcomeKind string

const (
	OutcomeWinner         OutcomeKind = "winner"
	OutcomeNoParticipants OutcomeKind = "no_participants"
	OutcomeNoMembers      OutcomeKind = "no_members"
	OutcomeCancelled      OutcomeKind = "cancelled"
	OutcomeNotFound       OutcomeKind = "not_found"
	OutcomeAlreadyClosed  OutcomeKind = "already_closed"
)

// DrawOutcome is what the engine reports after touching a draw.
type DrawOutcome struct {
	Kind     OutcomeKind
	DrawID   int64
	DrawName string
	Prize    string

	WinnerID        int64
	WinnerUsername  string
	WinnerFirstName string
	WinnerTickets   int64
	TotalTickets    int64
	WinChance       decimal.Decimal

	// EligibleCount members out of CandidateCount ticket holders took part.
	EligibleCount  int
	CandidateCount int

	ResolvedAt time.Time
}

// Final reports whether this call moved the draw into a terminal state.
func (o *DrawOutcome) Final() bool {
	switch o.Kind {
	case OutcomeWinner, OutcomeNoParticipants, OutcomeNoMembers, OutcomeCancelled:
		return true
	}
	return false
}

// HasWinner reports whether a winner was selected.
func (o *DrawOutcome) HasWinner() bool {
	return o.Kind == OutcomeWinner
}

// WinnerDisplayName mirrors Participant.DisplayName for the winner.
func (o *DrawOutcome) WinnerDisplayName() string {
	if o.WinnerUsername != "" {
		return "@" + o.WinnerUsername
	}
	return o.WinnerFirstName
}

// ReferralStats summarizes a participant's standing.
type ReferralStats struct {
	Tickets        int64
	ReferralsCount int64
	TotalTickets   int64
	WinChance      decimal.Decimal
}

// MembershipReport is the result of auditing ticket holders against the channel.
type MembershipReport struct {
	Total      int
	Members    int
	NonMembers int
}

// ActiveShare is the percentage of ticket holders still in the channel.
func (r MembershipReport) ActiveShare() decimal.Decimal {
	if r.Total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(r.Members) * 100).DivRound(decimal.NewFromInt(int64(r.Total)), 2)
}
