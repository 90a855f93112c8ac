// Package notify publishes draw results to the gated channel.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"invite2win/internal/model"
)

// Sender is the slice of *tele.Bot used for posting.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// ChannelNotifier posts outcomes to a channel. Delivery is best effort;
// callers log errors and never roll back on them.
type ChannelNotifier struct {
	sender  Sender
	channel *tele.Chat
}

// NewChannelNotifier creates a notifier for channelID.
func NewChannelNotifier(sender Sender, channelID int64) *ChannelNotifier {
	return &ChannelNotifier{sender: sender, channel: &tele.Chat{ID: channelID}}
}

// Notify posts winners and cancellations. Draws that ended without a
// winner are only logged.
func (n *ChannelNotifier) Notify(ctx context.Context, o *model.DrawOutcome) error {
	switch o.Kind {
	case model.OutcomeWinner:
		return n.post(ctx, FormatWinner(o, false))
	case model.OutcomeCancelled:
		return n.post(ctx, FormatCancelled(o.DrawName))
	case model.OutcomeNoParticipants, model.OutcomeNoMembers:
		log.Info().
			Int64("draw_id", o.DrawID).
			Str("outcome", string(o.Kind)).
			Int("candidates", o.CandidateCount).
			Msg("Draw finished without a winner")
	}
	return nil
}

// Announce posts a newly created draw.
func (n *ChannelNotifier) Announce(ctx context.Context, d *model.Draw) error {
	return n.post(ctx, FormatAnnouncement(d))
}

func (n *ChannelNotifier) post(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.sender.Send(n.channel, text, tele.ModeHTML); err != nil {
		return fmt.Errorf("post to channel %d: %w", n.channel.ID, err)
	}
	return nil
}
