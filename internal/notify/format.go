package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"invite2win/internal/model"
)

// dateLayout matches the dd.mm.yyyy hh:mm format shown to users.
const dateLayout = "02.01.2006 15:04"

// FormatDate renders t, or "not set" for nil.
func FormatDate(t *time.Time) string {
	if t == nil {
		return "not set"
	}
	return t.UTC().Format(dateLayout)
}

// DaysLeft is the whole number of days until end, never negative.
func DaysLeft(end *time.Time, now time.Time) string {
	if end == nil {
		return "not set"
	}
	days := int(end.Sub(now).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return fmt.Sprintf("%d days", days)
}

func winnerName(o *model.DrawOutcome) string {
	if name := o.WinnerDisplayName(); name != "" {
		return html.EscapeString(name)
	}
	return "Participant"
}

// FormatWinner renders a winner announcement. withEligibility adds the
// member/candidate counts, which are shown to admins but not in the channel.
func FormatWinner(o *model.DrawOutcome, withEligibility bool) string {
	var sb strings.Builder
	sb.WriteString("🎉 <b>Draw finished!</b>\n\n")
	fmt.Fprintf(&sb, "🏆 Draw: <b>%s</b>\n", html.EscapeString(o.DrawName))
	if withEligibility {
		fmt.Fprintf(&sb, "👥 Participants: <b>%d</b> of %d (active channel members)\n", o.EligibleCount, o.CandidateCount)
	}
	fmt.Fprintf(&sb, "👑 Winner: %s\n", winnerName(o))
	fmt.Fprintf(&sb, "🆔 ID: <code>%d</code>\n", o.WinnerID)
	fmt.Fprintf(&sb, "🎟 Tickets: <b>%d</b>\n", o.WinnerTickets)
	fmt.Fprintf(&sb, "🎯 Win chance: <b>%s%%</b>\n", o.WinChance.StringFixed(2))
	fmt.Fprintf(&sb, "🏆 Total tickets: <b>%d</b>\n\n", o.TotalTickets)
	fmt.Fprintf(&sb, "🎁 Prize: <b>%s</b>", html.EscapeString(o.Prize))
	return sb.String()
}

// FormatOutcome renders any outcome for an admin reply.
func FormatOutcome(o *model.DrawOutcome) string {
	switch o.Kind {
	case model.OutcomeWinner:
		return FormatWinner(o, true)
	case model.OutcomeNoParticipants:
		return fmt.Sprintf("ℹ️ Draw #%d finished, but nobody holds tickets.", o.DrawID)
	case model.OutcomeNoMembers:
		return fmt.Sprintf("ℹ️ Draw #%d finished, but none of the %d ticket holders is a channel member.", o.DrawID, o.CandidateCount)
	case model.OutcomeCancelled:
		return fmt.Sprintf("❌ Draw #%d cancelled.", o.DrawID)
	case model.OutcomeNotFound:
		return fmt.Sprintf("❌ Draw #%d not found.", o.DrawID)
	case model.OutcomeAlreadyClosed:
		return fmt.Sprintf("❌ Draw #%d is already finished.", o.DrawID)
	default:
		return fmt.Sprintf("Draw #%d: %s", o.DrawID, o.Kind)
	}
}

// FormatAnnouncement renders the channel post for a new draw.
func FormatAnnouncement(d *model.Draw) string {
	return fmt.Sprintf(
		"🎉 <b>A new draw has started!</b>\n\n"+
			"🏆 %s\n"+
			"🎁 Prize: <b>%s</b>\n"+
			"📅 Ends: <b>%s</b>\n\n"+
			"Invite friends to raise your chances! /start",
		html.EscapeString(d.Name), html.EscapeString(d.Prize), FormatDate(d.ScheduledEnd),
	)
}

// FormatCancelled renders the channel post for a cancelled draw.
func FormatCancelled(name string) string {
	return fmt.Sprintf(
		"❌ <b>Draw '%s' has been cancelled.</b>\n\nThe next draw will be announced soon!",
		html.EscapeString(name),
	)
}
