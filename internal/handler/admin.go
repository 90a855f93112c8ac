package handler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"invite2win/internal/config"
	"invite2win/internal/model"
	"invite2win/internal/notify"
	"invite2win/internal/service"
)

// Announcer posts draw events to the channel.
type Announcer interface {
	Notify(ctx context.Context, o *model.DrawOutcome) error
	Announce(ctx context.Context, d *model.Draw) error
}

// AdminHandler handles admin-only commands and draw buttons.
type AdminHandler struct {
	cfg       *config.Config
	engine    *service.DrawEngine
	announcer Announcer
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(cfg *config.Config, engine *service.DrawEngine, announcer Announcer) *AdminHandler {
	return &AdminHandler{
		cfg:       cfg,
		engine:    engine,
		announcer: announcer,
	}
}

// HandleNewDraw handles /newdraw [name] [prize] [days].
func (h *AdminHandler) HandleNewDraw(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := ParseNewDrawArgs(c.Message().Payload, h.cfg.Draw.DefaultDurationDays)

	d, err := h.engine.ScheduleEnd(ctx, args.Name, args.Prize, args.Days)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDuration) {
			return c.Reply("❌ The number of days must not be negative.")
		}
		log.Error().Err(err).Msg("Failed to create draw")
		return c.Reply("❌ Could not create the draw.")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("draw_id", d.ID).
		Int("days", args.Days).
		Str("operation", "new_draw").
		Msg("Admin operation executed")

	if h.announcer != nil {
		if err := h.announcer.Announce(ctx, d); err != nil {
			log.Warn().Err(err).Int64("draw_id", d.ID).Msg("Failed to announce draw")
		}
	}

	return c.Reply(fmt.Sprintf(
		"✅ Draw created!\n\n"+
			"🆔 ID: <code>%d</code>\n"+
			"🏆 Name: %s\n"+
			"🎁 Prize: %s\n"+
			"⏱ Duration: %d days\n"+
			"📅 Ends: %s",
		d.ID, html.EscapeString(d.Name), html.EscapeString(d.Prize), args.Days, notify.FormatDate(d.ScheduledEnd),
	))
}

// HandleDraws handles /draws for admins: the list plus end and cancel buttons.
func (h *AdminHandler) HandleDraws(c tele.Context) error {
	ctx := context.Background()

	draws, err := h.engine.ActiveDraws(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list active draws")
		return c.Send("❌ Could not load draws.")
	}
	if len(draws) == 0 {
		return c.Send("There are no active draws. Create one with /newdraw")
	}

	return c.Send(FormatDrawList(draws, time.Now(), true), DrawActionsMarkup(draws))
}

// HandleEndDraw handles the "end_draw:<id>" button.
func (h *AdminHandler) HandleEndDraw(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil || !h.cfg.IsAdmin(sender.ID) {
		return c.Respond(&tele.CallbackResponse{Text: "This action is for admins only.", ShowAlert: true})
	}

	drawID, err := ParseDrawID(CallbackData(c), CallbackEndDraw)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Unknown draw."})
	}
	if err := c.Respond(&tele.CallbackResponse{Text: "Picking a winner..."}); err != nil {
		log.Debug().Err(err).Msg("Failed to answer callback")
	}

	outcome, err := h.engine.Resolve(ctx, drawID)
	if err != nil {
		log.Error().Err(err).Int64("draw_id", drawID).Msg("Failed to resolve draw")
		return c.Send(fmt.Sprintf("❌ Could not finish draw #%d. It stays active.", drawID))
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("draw_id", drawID).
		Str("outcome", string(outcome.Kind)).
		Str("operation", "end_draw").
		Msg("Admin operation executed")

	h.publish(ctx, outcome)
	return c.Send(notify.FormatOutcome(outcome))
}

// HandleCancelDraw handles the "cancel_draw:<id>" button.
func (h *AdminHandler) HandleCancelDraw(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil || !h.cfg.IsAdmin(sender.ID) {
		return c.Respond(&tele.CallbackResponse{Text: "This action is for admins only.", ShowAlert: true})
	}

	drawID, err := ParseDrawID(CallbackData(c), CallbackCancelDraw)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Unknown draw."})
	}

	outcome, err := h.engine.Cancel(ctx, drawID)
	if err != nil {
		log.Error().Err(err).Int64("draw_id", drawID).Msg("Failed to cancel draw")
		return c.Respond(&tele.CallbackResponse{Text: "Could not cancel the draw.", ShowAlert: true})
	}
	switch outcome.Kind {
	case model.OutcomeNotFound:
		return c.Respond(&tele.CallbackResponse{Text: "Draw not found.", ShowAlert: true})
	case model.OutcomeAlreadyClosed:
		return c.Respond(&tele.CallbackResponse{Text: "The draw is already finished.", ShowAlert: true})
	}
	if err := c.Respond(&tele.CallbackResponse{Text: "Draw cancelled."}); err != nil {
		log.Debug().Err(err).Msg("Failed to answer callback")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("draw_id", drawID).
		Str("operation", "cancel_draw").
		Msg("Admin operation executed")

	h.publish(ctx, outcome)
	return c.Send(notify.FormatOutcome(outcome))
}

// HandleInstantDraw handles /draw [prize]: create and resolve right away.
func (h *AdminHandler) HandleInstantDraw(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	prize := ParsePrize(c.Message().Payload)

	outcome, err := h.engine.InstantDraw(ctx, prize)
	if err != nil {
		log.Error().Err(err).Msg("Instant draw failed")
		return c.Reply("❌ The instant draw failed.")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("draw_id", outcome.DrawID).
		Str("outcome", string(outcome.Kind)).
		Str("operation", "instant_draw").
		Msg("Admin operation executed")

	h.publish(ctx, outcome)
	return c.Reply(notify.FormatOutcome(outcome))
}

// HandleVerify handles /verify: audit ticket holders against the channel.
func (h *AdminHandler) HandleVerify(c tele.Context) error {
	ctx := context.Background()

	if err := c.Send("⏳ Checking channel subscriptions, this may take a while..."); err != nil {
		return err
	}

	report, err := h.engine.VerifyMembers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Membership audit failed")
		return c.Send("❌ Could not check subscriptions.")
	}

	return c.Send(FormatReport(report))
}

// FormatReport renders the /verify result.
func FormatReport(r model.MembershipReport) string {
	return fmt.Sprintf(
		"✅ <b>Check complete</b>\n\n"+
			"👥 Participants with tickets: <b>%d</b>\n"+
			"✅ Subscribed: <b>%d</b>\n"+
			"❌ Not subscribed: <b>%d</b>\n\n"+
			"Active share: <b>%s%%</b>",
		r.Total, r.Members, r.NonMembers, r.ActiveShare().StringFixed(2),
	)
}

func (h *AdminHandler) publish(ctx context.Context, o *model.DrawOutcome) {
	if h.announcer == nil || !o.Final() {
		return
	}
	if err := h.announcer.Notify(ctx, o); err != nil {
		log.Warn().Err(err).Int64("draw_id", o.DrawID).Msg("Failed to publish draw result")
	}
}
