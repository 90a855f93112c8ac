// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"invite2win/internal/membership"
	"invite2win/internal/model"
	"invite2win/internal/notify"
	"invite2win/internal/repository"
	"invite2win/internal/service"
)

// leaderboardSize is how many participants /top lists.
const leaderboardSize = 10

// UserHandler handles participant-facing commands.
type UserHandler struct {
	referrals   *service.ReferralService
	engine      *service.DrawEngine
	oracle      membership.Oracle
	channelLink string
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(referrals *service.ReferralService, engine *service.DrawEngine, oracle membership.Oracle, channelUsername string) *UserHandler {
	return &UserHandler{
		referrals:   referrals,
		engine:      engine,
		oracle:      oracle,
		channelLink: ChannelLink(channelUsername),
	}
}

func profileOf(u *tele.User) service.Profile {
	return service.Profile{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// HandleStart handles /start [code].
func (h *UserHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	code := strings.TrimSpace(c.Message().Payload)

	reg, err := h.referrals.Register(ctx, profileOf(sender), code)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Registration failed")
		return c.Send("❌ Something went wrong, please try again later.")
	}

	switch reg.Result {
	case service.RegistrationCredited:
		if err := c.Send(fmt.Sprintf(
			"🎉 Welcome! You joined by invitation from %s.\n"+
				"Now invite your own friends to raise your chances!",
			html.EscapeString(referrerName(reg.Referrer)),
		)); err != nil {
			return err
		}
	case service.RegistrationMembershipRequired:
		return c.Send(
			"To take part in the draw you need to be subscribed to the channel.\n"+
				fmt.Sprintf("Subscribe, then send <code>/start %s</code> again.", html.EscapeString(code)),
			JoinMarkup(h.channelLink),
		)
	case service.RegistrationMembershipUnavailable:
		return c.Send("❌ Could not check your channel subscription. Please try again later.")
	case service.RegistrationRegistered:
		// Without a code only the membership prompt matters; lookup errors fall through.
		if member, err := h.oracle.IsMember(ctx, sender.ID); err == nil && !member {
			return c.Send(
				"To take part in the draw you need to be subscribed to the channel.\n"+
					"Subscribe, then press /start again.",
				JoinMarkup(h.channelLink),
			)
		}
	}

	return c.Send(h.welcomeText(reg.Participant))
}

func referrerName(p *model.Participant) string {
	if p == nil {
		return "a friend"
	}
	if name := p.DisplayName(); name != "" {
		return name
	}
	return fmt.Sprintf("ID %d", p.ID)
}

func (h *UserHandler) welcomeText(p *model.Participant) string {
	var sb strings.Builder
	sb.WriteString("Welcome to the draw!\n\n")
	sb.WriteString("Your personal invitation link:\n")
	fmt.Fprintf(&sb, "<code>%s</code>\n\n", h.referrals.ReferralLink(p.ReferralCode))
	sb.WriteString("Share it with friends. For every friend who joins the channel through your link you get a ticket!\n\n")
	sb.WriteString("Your friend has to:\n1. Open your link\n2. Press START in the bot\n")
	if h.channelLink != "" {
		fmt.Fprintf(&sb, "3. Subscribe to the channel: %s\n\n", h.channelLink)
	} else {
		sb.WriteString("3. Subscribe to the channel\n\n")
	}
	sb.WriteString("Only then the invitation counts!")
	return sb.String()
}

// HandleMe handles /me.
func (h *UserHandler) HandleMe(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	stats, err := h.referrals.Stats(ctx, sender.ID)
	if err != nil {
		if errors.Is(err, repository.ErrParticipantNotFound) {
			return c.Send("You are not registered yet. Use /start")
		}
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to load stats")
		return c.Send("❌ Could not load your statistics, please try again later.")
	}

	return c.Send(fmt.Sprintf(
		"📊 <b>Your statistics:</b>\n\n"+
			"🎟 Tickets: <b>%d</b>\n"+
			"👥 Friends invited: <b>%d</b>\n"+
			"🎯 Win chance: <b>%s%%</b>\n"+
			"🏆 Tickets in the draw: <b>%d</b>",
		stats.Tickets, stats.ReferralsCount, stats.WinChance.StringFixed(2), stats.TotalTickets,
	))
}

// HandleTop handles /top.
func (h *UserHandler) HandleTop(c tele.Context) error {
	ctx := context.Background()

	top, err := h.referrals.Leaderboard(ctx, leaderboardSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load leaderboard")
		return c.Send("❌ Could not load the leaderboard, please try again later.")
	}
	if len(top) == 0 {
		return c.Send("Nobody has tickets yet.")
	}

	return c.Send(FormatLeaderboard(top))
}

// FormatLeaderboard renders the /top list.
func FormatLeaderboard(top []*model.Participant) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>🏆 TOP %d by tickets:</b>\n\n", leaderboardSize)
	for i, p := range top {
		name := fmt.Sprintf("ID: %d", p.ID)
		if p.Username != "" {
			name = "@" + p.Username
		}
		fmt.Fprintf(&sb, "%d. %s: <b>%d</b> tickets\n", i+1, html.EscapeString(name), p.TicketCount)
	}
	return sb.String()
}

// HandleDraws handles /draws for regular users.
func (h *UserHandler) HandleDraws(c tele.Context) error {
	ctx := context.Background()

	draws, err := h.engine.ActiveDraws(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list active draws")
		return c.Send("❌ Could not load draws, please try again later.")
	}
	if len(draws) == 0 {
		return c.Send("There are no active draws right now.")
	}

	return c.Send(FormatDrawList(draws, time.Now(), false) +
		"Invite friends to raise your chances! Use /me to see your statistics.")
}

// FormatDrawList renders active draws; withIDs adds the draw ID line for admins.
func FormatDrawList(draws []*model.Draw, now time.Time, withIDs bool) string {
	var sb strings.Builder
	sb.WriteString("<b>🎮 Active draws:</b>\n\n")
	for _, d := range draws {
		if withIDs {
			fmt.Fprintf(&sb, "🆔 <code>%d</code>\n", d.ID)
		}
		fmt.Fprintf(&sb, "🏆 <b>%s</b>\n", html.EscapeString(d.Name))
		fmt.Fprintf(&sb, "🎁 Prize: %s\n", html.EscapeString(d.Prize))
		fmt.Fprintf(&sb, "⏳ Left: %s\n", notify.DaysLeft(d.ScheduledEnd, now))
		fmt.Fprintf(&sb, "📅 Ends: %s\n\n", notify.FormatDate(d.ScheduledEnd))
	}
	return sb.String()
}

// HandleHelp handles /help.
func (h *UserHandler) HandleHelp(c tele.Context) error {
	var sb strings.Builder
	sb.WriteString("<b>📱 Invite2Win: win prizes by inviting friends</b>\n\n")
	sb.WriteString("🔹 <b>/start</b>: join and get your invitation link\n")
	sb.WriteString("🔹 <b>/me</b>: your statistics\n")
	sb.WriteString("🔹 <b>/top</b>: leaderboard\n")
	sb.WriteString("🔹 <b>/draws</b>: active draws\n")
	sb.WriteString("🔹 <b>/help</b>: this message\n\n")
	sb.WriteString("📊 <b>How does it work?</b>\n")
	sb.WriteString("1. Invite friends with your personal link\n")
	sb.WriteString("2. You get a ticket for every friend who joins\n")
	sb.WriteString("3. More tickets means a bigger chance\n")
	sb.WriteString("4. The winner is picked at random, weighted by tickets\n")
	if h.channelLink != "" {
		fmt.Fprintf(&sb, "\nSubscribe to our channel: %s", h.channelLink)
	}
	return c.Send(sb.String())
}

// HandleCheckJoin handles the "I joined" button.
func (h *UserHandler) HandleCheckJoin(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return c.Respond()
	}

	member, err := h.oracle.IsMember(ctx, sender.ID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", sender.ID).Msg("Membership check failed on check_join")
		return c.Respond(&tele.CallbackResponse{Text: "Could not check your subscription, try again later.", ShowAlert: true})
	}
	if !member {
		return c.Respond(&tele.CallbackResponse{Text: "You are still not subscribed to the channel.", ShowAlert: true})
	}

	if err := c.Respond(); err != nil {
		log.Debug().Err(err).Msg("Failed to answer callback")
	}
	return c.Edit("✅ Subscription confirmed! You can use the bot now. Send /start to get your link.")
}
