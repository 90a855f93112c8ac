package service

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"invite2win/internal/model"
)

func entrantsFrom(weights []int64) []*model.Participant {
	out := make([]*model.Participant, len(weights))
	for i, w := range weights {
		out[i] = &model.Participant{ID: int64(i + 1), TicketCount: w}
	}
	return out
}

// TestPickWeightedExactShareProperty checks that over every roll in
// [0, total) each entrant is picked exactly as many times as it has tickets.
func TestPickWeightedExactShareProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		weights := rapid.SliceOfN(rapid.Int64Range(0, 20), 1, 12).Draw(t, "weights")
		entrants := entrantsFrom(weights)

		total, err := totalTickets(entrants)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if total == 0 {
			t.Skip("no tickets")
		}

		picks := make(map[int64]int64)
		for roll := int64(0); roll < total; roll++ {
			p := pickWeighted(entrants, roll)
			if p == nil {
				t.Fatalf("roll %d of %d picked nobody", roll, total)
			}
			picks[p.ID]++
		}

		for _, e := range entrants {
			if picks[e.ID] != e.TicketCount {
				t.Fatalf("entrant %d with %d tickets picked %d times", e.ID, e.TicketCount, picks[e.ID])
			}
		}
	})
}

// TestTotalTicketsRejectsNegativeProperty checks that any negative count is an integrity fault.
func TestTotalTicketsRejectsNegativeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		weights := rapid.SliceOfN(rapid.Int64Range(0, 100), 0, 10).Draw(t, "weights")
		bad := rapid.Int64Range(-100, -1).Draw(t, "bad")
		pos := rapid.IntRange(0, len(weights)).Draw(t, "pos")

		weights = append(weights[:pos], append([]int64{bad}, weights[pos:]...)...)

		if _, err := totalTickets(entrantsFrom(weights)); err == nil {
			t.Fatalf("expected ErrLedgerCorrupted for weights %v", weights)
		}
	})
}

// TestResolveInvariantsProperty checks, for random ledgers and membership,
// that the winner is eligible, the snapshot equals the eligible sum and the
// win chance matches winner/total within rounding.
func TestResolveInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 15).Draw(t, "n")
		seed := rapid.Uint64().Draw(t, "seed")

		ledger := newMemLedger()
		draws := newMemDraws(ledger)
		oracle := newFakeOracle()

		var eligibleSum int64
		eligible := map[int64]bool{}
		for i := 1; i <= n; i++ {
			id := int64(i)
			tickets := rapid.Int64Range(0, 50).Draw(t, "tickets")
			isMember := rapid.Bool().Draw(t, "member")
			ledger.add(id, tickets)
			oracle.setMember(id, isMember)
			if tickets > 0 && isMember {
				eligible[id] = true
				eligibleSum += tickets
			}
		}

		engine := NewDrawEngine(draws, ledger, oracle, WithRand(rand.New(rand.NewPCG(seed, seed+1))))
		d, err := engine.ScheduleEnd(context.Background(), "prop", "prize", 0)
		if err != nil {
			t.Fatalf("schedule: %v", err)
		}

		outcome, err := engine.Resolve(context.Background(), d.ID)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}

		if eligibleSum == 0 {
			if outcome.HasWinner() {
				t.Fatalf("winner %d chosen with no eligible tickets", outcome.WinnerID)
			}
			return
		}

		if !eligible[outcome.WinnerID] {
			t.Fatalf("winner %d was not eligible", outcome.WinnerID)
		}
		if outcome.TotalTickets != eligibleSum {
			t.Fatalf("total %d != eligible sum %d", outcome.TotalTickets, eligibleSum)
		}
		if outcome.EligibleCount != len(eligible) {
			t.Fatalf("eligible count %d != %d", outcome.EligibleCount, len(eligible))
		}

		exact := decimal.NewFromInt(outcome.WinnerTickets * 100).Div(decimal.NewFromInt(outcome.TotalTickets))
		if exact.Sub(outcome.WinChance).Abs().GreaterThan(decimal.RequireFromString("0.005")) {
			t.Fatalf("win chance %s too far from %s", outcome.WinChance, exact)
		}

		stored := draws.get(d.ID)
		if stored.TotalTickets == nil || *stored.TotalTickets != eligibleSum {
			t.Fatalf("stored snapshot %v != %d", stored.TotalTickets, eligibleSum)
		}
	})
}
