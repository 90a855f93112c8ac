package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"invite2win/internal/model"
)

// totalTickets sums ticket counts, rejecting negative entries.
func totalTickets(entrants []*model.Participant) (int64, error) {
	var total int64
	for _, p := range entrants {
		if p.TicketCount < 0 {
			return 0, fmt.Errorf("participant %d has %d tickets: %w", p.ID, p.TicketCount, ErrLedgerCorrupted)
		}
		total += p.TicketCount
	}
	return total, nil
}

// pickWeighted returns the entrant whose cumulative ticket range contains
// roll. roll must be in [0, total). Entrants with zero tickets own an empty
// range and can never be picked.
func pickWeighted(entrants []*model.Participant, roll int64) *model.Participant {
	var cumulative int64
	for _, p := range entrants {
		cumulative += p.TicketCount
		if roll < cumulative {
			return p
		}
	}
	return nil
}

// winChance is tickets/total as a percentage rounded to 2 decimals.
func winChance(tickets, total int64) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(tickets).Mul(decimal.NewFromInt(100)).DivRound(decimal.NewFromInt(total), 2)
}
