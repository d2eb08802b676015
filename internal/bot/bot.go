package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"promo-code-bot/internal/config"
	"promo-code-bot/internal/handler"
	"promo-code-bot/internal/pkg/lock"
	"promo-code-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	submitHandler *handler.SubmitHandler
	adminHandler  *handler.AdminHandler
}

// Dependencies holds everything the bot handlers need.
type Dependencies struct {
	Config            *config.Config
	AccountService    *service.AccountService
	RedemptionService *service.RedemptionService
	IngestionService  *service.IngestionService
	UserLock          *lock.UserLock
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot: teleBot,
		cfg: deps.Config,
	}

	sessions := handler.NewSessions()
	responder := handler.NewResponder(&deps.Config.Messages)

	b.submitHandler = handler.NewSubmitHandler(
		deps.Config,
		sessions,
		deps.AccountService,
		deps.RedemptionService,
		responder,
		deps.UserLock,
	)
	b.adminHandler = handler.NewAdminHandler(deps.Config, sessions, deps.IngestionService)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
}

func (b *Bot) registerHandlers() {
	// Participant surface
	b.bot.Handle("/start", b.submitHandler.HandleStart)
	b.bot.Handle(tele.OnText, b.submitHandler.HandleText)
	b.bot.Handle(tele.OnContact, b.submitHandler.HandleContact)

	// Admin surface
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/upload", b.adminHandler.HandleUpload)
	adminGroup.Handle("/cancel", b.adminHandler.HandleCancel)
	adminGroup.Handle("/clear_codes", b.adminHandler.HandleClearCodes)
	adminGroup.Handle("/clear_winners", b.adminHandler.HandleClearWinners)
	adminGroup.Handle(tele.OnDocument, b.adminHandler.HandleDocument)
	adminGroup.Handle(&handler.BtnUploadCodes, b.adminHandler.HandleUploadCodes)
	adminGroup.Handle(&handler.BtnUploadWinners, b.adminHandler.HandleUploadWinners)
	adminGroup.Handle(&handler.BtnPickTier, b.adminHandler.HandlePickTier)
	adminGroup.Handle(&handler.BtnPickMonth, b.adminHandler.HandlePickMonth)
	adminGroup.Handle(&handler.BtnClearConfirm, b.adminHandler.HandleClearConfirm)
	adminGroup.Handle(&handler.BtnClearCancel, b.adminHandler.HandleClearCancel)
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
