package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/glebk/weather-bot/internal/dialog"
	"github.com/glebk/weather-bot/internal/domain"
)

// Handler consumes inbound chat events
type Handler interface {
	HandleStart(ctx context.Context, userID int64) error
	HandleHelp(ctx context.Context, userID int64) error
	HandleText(ctx context.Context, userID int64, text string) error
	HandleMenu(ctx context.Context, userID int64, label string) error
	HandleLocation(ctx context.Context, userID int64, loc domain.Coordinate) error
	HandleCallback(ctx context.Context, cb dialog.Callback) error
}

// Bot represents the Telegram bot
type Bot struct {
	api         *tgbotapi.BotAPI
	handler     Handler
	dispatcher  *Dispatcher
	turnTimeout time.Duration
	logger      *zap.Logger
}

type turn func(ctx context.Context) error

// New creates a new Bot instance polling through sender's API client
func New(sender *Sender, handler Handler, turnTimeout time.Duration, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:         sender.api,
		handler:     handler,
		dispatcher:  NewDispatcher(),
		turnTimeout: turnTimeout,
		logger:      logger,
	}
}

// Start polls for updates until ctx is done, then waits for in-flight turns
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.dispatcher.Close()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	userID, event, fn := b.route(update)
	if fn == nil {
		return
	}

	// Turns started before shutdown still get their full timeout.
	base := context.WithoutCancel(ctx)
	b.dispatcher.Submit(userID, func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("panic in dialog turn",
					zap.Int64("user_id", userID),
					zap.String("event", event),
					zap.Any("panic", r))
			}
		}()

		turnCtx, cancel := context.WithTimeout(base, b.turnTimeout)
		defer cancel()
		if err := fn(turnCtx); err != nil {
			b.logger.Warn("dialog turn failed",
				zap.Int64("user_id", userID),
				zap.String("event", event),
				zap.Error(err))
		}
	})
}

// route maps an update to the user it belongs to and the handler call for it.
// A nil turn means the update is ignored.
func (b *Bot) route(update tgbotapi.Update) (int64, string, turn) {
	if cq := update.CallbackQuery; cq != nil && cq.From != nil {
		cb := dialog.Callback{ID: cq.ID, UserID: cq.From.ID, Data: cq.Data}
		if cq.Message != nil && cq.Message.Chat != nil {
			cb.Message = dialog.MessageRef{ChatID: cq.Message.Chat.ID, MessageID: cq.Message.MessageID}
		}
		return cb.UserID, "callback", func(ctx context.Context) error {
			return b.handler.HandleCallback(ctx, cb)
		}
	}

	message := update.Message
	if message == nil || message.From == nil || message.Chat == nil || !message.Chat.IsPrivate() {
		return 0, "", nil
	}
	userID := message.From.ID

	switch {
	case message.IsCommand():
		if message.Command() == "start" {
			return userID, "start", func(ctx context.Context) error {
				return b.handler.HandleStart(ctx, userID)
			}
		}
		return userID, "help", func(ctx context.Context) error {
			return b.handler.HandleHelp(ctx, userID)
		}

	case message.Location != nil:
		loc := domain.Coordinate{Lat: message.Location.Latitude, Lon: message.Location.Longitude}
		return userID, "location", func(ctx context.Context) error {
			return b.handler.HandleLocation(ctx, userID, loc)
		}

	case dialog.IsMenuLabel(message.Text):
		label := message.Text
		return userID, "menu", func(ctx context.Context) error {
			return b.handler.HandleMenu(ctx, userID, label)
		}

	case message.Text != "":
		text := message.Text
		return userID, "text", func(ctx context.Context) error {
			return b.handler.HandleText(ctx, userID, text)
		}
	}

	return 0, "", nil
}
