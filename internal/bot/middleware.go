package bot

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"invite2win/internal/config"
	"invite2win/internal/handler"
	"invite2win/internal/membership"
)

// ChannelJoinMiddleware asks non-members to join the channel before using
// the bot. /start and button presses pass through so the join flow works.
// Oracle errors let the update through.
func ChannelJoinMiddleware(oracle membership.Oracle, channelLink string) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil || c.Callback() != nil {
				return next(c)
			}
			if strings.HasPrefix(c.Text(), "/start") {
				return next(c)
			}

			member, err := oracle.IsMember(context.Background(), sender.ID)
			if err != nil {
				log.Warn().
					Err(err).
					Int64("user_id", sender.ID).
					Msg("Membership check failed, letting update through")
				return next(c)
			}
			if member {
				return next(c)
			}

			log.Debug().
				Int64("user_id", sender.ID).
				Str("text", c.Text()).
				Msg("Blocked update from non-member")
			return c.Send(
				"To use the bot you need to be subscribed to the channel.",
				handler.JoinMarkup(channelLink),
			)
		}
	}
}

// AdminMiddleware rejects senders that are not in the admin list.
func AdminMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			if !cfg.IsAdmin(sender.ID) {
				log.Warn().
					Int64("user_id", sender.ID).
					Str("command", c.Text()).
					Msg("Non-admin attempted admin command")
				return c.Reply("❌ This command is for admins only.")
			}

			return next(c)
		}
	}
}

// LoggingMiddleware creates a middleware that logs all incoming messages.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()

			logEvent := log.Debug()
			if sender != nil {
				logEvent = logEvent.
					Int64("user_id", sender.ID).
					Str("username", sender.Username)
			}
			if chat != nil {
				logEvent = logEvent.
					Int64("chat_id", chat.ID).
					Str("chat_type", string(chat.Type))
			}
			if cb := c.Callback(); cb != nil {
				logEvent = logEvent.Str("callback", strings.TrimPrefix(cb.Data, "\f"))
			}
			logEvent.
				Str("text", c.Text()).
				Msg("Received update")

			return next(c)
		}
	}
}

// RecoveryMiddleware creates a middleware that recovers from panics.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Msg("Recovered from panic in handler")
					err = c.Send("❌ Internal error, please try again later.")
				}
			}()
			return next(c)
		}
	}
}
