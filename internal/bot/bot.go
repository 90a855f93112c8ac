// Package bot wires the Telegram surface: middleware, commands and callbacks.
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"invite2win/internal/config"
	"invite2win/internal/handler"
	"invite2win/internal/membership"
	"invite2win/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	userHandler  *handler.UserHandler
	adminHandler *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config    *config.Config
	Referrals *service.ReferralService
	Engine    *service.DrawEngine
	Oracle    membership.Oracle
	Announcer handler.Announcer
}

// NewTeleBot creates the telebot client from configuration.
func NewTeleBot(cfg *config.Config) (*tele.Bot, error) {
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:     cfg.Bot.Token,
		Poller:    &tele.LongPoller{Timeout: 10 * time.Second},
		ParseMode: tele.ModeHTML,
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return teleBot, nil
}

// New registers middleware and handlers on teleBot.
func New(teleBot *tele.Bot, deps *Dependencies) *Bot {
	b := &Bot{
		bot:          teleBot,
		cfg:          deps.Config,
		userHandler:  handler.NewUserHandler(deps.Referrals, deps.Engine, deps.Oracle, deps.Config.Channel.Username),
		adminHandler: handler.NewAdminHandler(deps.Config, deps.Engine, deps.Announcer),
	}

	b.registerMiddleware(deps.Oracle)
	b.registerHandlers()

	return b
}

func (b *Bot) registerMiddleware(oracle membership.Oracle) {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(ChannelJoinMiddleware(oracle, handler.ChannelLink(b.cfg.Channel.Username)))
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.userHandler.HandleStart)
	b.bot.Handle("/me", b.userHandler.HandleMe)
	b.bot.Handle("/top", b.userHandler.HandleTop)
	b.bot.Handle("/draws", b.handleDraws)
	b.bot.Handle("/help", b.userHandler.HandleHelp)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/newdraw", b.adminHandler.HandleNewDraw)
	adminGroup.Handle("/draw", b.adminHandler.HandleInstantDraw)
	adminGroup.Handle("/verify", b.adminHandler.HandleVerify)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleDraws shows admins the list with action buttons.
func (b *Bot) handleDraws(c tele.Context) error {
	if sender := c.Sender(); sender != nil && b.cfg.IsAdmin(sender.ID) {
		return b.adminHandler.HandleDraws(c)
	}
	return b.userHandler.HandleDraws(c)
}

func (b *Bot) handleCallback(c tele.Context) error {
	data := handler.CallbackData(c)
	log.Debug().Str("data", data).Msg("Callback received")

	switch {
	case data == handler.CallbackCheckJoin:
		return b.userHandler.HandleCheckJoin(c)
	case strings.HasPrefix(data, handler.CallbackEndDraw):
		return b.adminHandler.HandleEndDraw(c)
	case strings.HasPrefix(data, handler.CallbackCancelDraw):
		return b.adminHandler.HandleCancelDraw(c)
	}
	return c.Respond()
}

// SetCommands publishes the user command menu.
func (b *Bot) SetCommands() error {
	return b.bot.SetCommands([]tele.Command{
		{Text: "start", Description: "Join and get your invitation link"},
		{Text: "me", Description: "Your statistics"},
		{Text: "top", Description: "Leaderboard"},
		{Text: "draws", Description: "Active draws"},
		{Text: "help", Description: "How it works"},
	})
}

// Start starts polling. It blocks until Stop.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
