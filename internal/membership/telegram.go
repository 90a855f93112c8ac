// Package membership answers whether a user currently belongs to the gated channel.
package membership

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"
)

// Oracle reports current channel membership.
type Oracle interface {
	IsMember(ctx context.Context, userID int64) (bool, error)
}

// ErrThrottled means the lookup was not sent because the rate limiter could
// not grant a slot before the context deadline or cancellation.
var ErrThrottled = errors.New("membership lookup throttled")

// ChatMemberGetter is the slice of *tele.Bot the oracle needs.
type ChatMemberGetter interface {
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
}

// TelegramOracle asks the Bot API (getChatMember) about each user.
// Calls are throttled by a shared token bucket.
type TelegramOracle struct {
	api     ChatMemberGetter
	chat    *tele.Chat
	limiter *rate.Limiter
}

// NewTelegramOracle creates an oracle for channelID. ratePerSecond <= 0
// disables throttling.
func NewTelegramOracle(api ChatMemberGetter, channelID int64, ratePerSecond float64) *TelegramOracle {
	limit := rate.Inf
	burst := 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = max(int(ratePerSecond), 1)
	}

	return &TelegramOracle{
		api:     api,
		chat:    &tele.Chat{ID: channelID},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// IsMember returns true for creators, administrators and plain members.
// Restricted, left and kicked users are not members.
func (o *TelegramOracle) IsMember(ctx context.Context, userID int64) (bool, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("%w: %w", ErrThrottled, err)
	}

	member, err := o.api.ChatMemberOf(o.chat, &tele.User{ID: userID})
	if err != nil {
		return false, fmt.Errorf("get chat member %d: %w", userID, err)
	}
	if member == nil {
		return false, fmt.Errorf("get chat member %d: empty response", userID)
	}

	return IsMemberRole(member.Role), nil
}

// IsMemberRole reports whether a chat member status counts as membership.
func IsMemberRole(role tele.MemberStatus) bool {
	switch role {
	case tele.Creator, tele.Administrator, tele.Member:
		return true
	default:
		return false
	}
}
