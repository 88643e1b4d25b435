package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/glebk/weather-bot/internal/dialog"
)

// Sender delivers dialog replies through the Telegram Bot API.
// The API client has no context support, so ctx is accepted for the
// interface only.
type Sender struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

// NewSender authorizes with Telegram and creates a Sender
func NewSender(token string, logger *zap.Logger) (*Sender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return NewSenderWithAPI(api, logger), nil
}

// NewSenderWithAPI wraps an existing API client
func NewSenderWithAPI(api *tgbotapi.BotAPI, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("authorized on account", zap.String("username", api.Self.UserName))
	return &Sender{api: api, logger: logger}
}

// Send sends an HTML message, optionally with a keyboard
func (s *Sender) Send(ctx context.Context, chatID int64, r dialog.Reply) (dialog.MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, r.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	if r.Menu != nil {
		msg.ReplyMarkup = replyMarkup(r.Menu)
	}

	sent, err := s.api.Send(msg)
	if err != nil {
		return dialog.MessageRef{}, fmt.Errorf("failed to send message: %w", err)
	}
	ref := dialog.MessageRef{ChatID: chatID, MessageID: sent.MessageID}
	if sent.Chat != nil {
		ref.ChatID = sent.Chat.ID
	}
	return ref, nil
}

// Edit replaces the text and inline keyboard of a sent message
func (s *Sender) Edit(ctx context.Context, ref dialog.MessageRef, r dialog.Reply) error {
	var edit tgbotapi.EditMessageTextConfig
	if r.Menu != nil && r.Menu.Inline {
		edit = tgbotapi.NewEditMessageTextAndMarkup(ref.ChatID, ref.MessageID, r.Text, inlineMarkup(r.Menu))
	} else {
		edit = tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, r.Text)
	}
	edit.ParseMode = tgbotapi.ModeHTML

	if _, err := s.api.Request(edit); err != nil {
		// Telegram rejects edits that change nothing; the message already shows r.
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press, optionally as an alert
func (s *Sender) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	callback := tgbotapi.NewCallback(callbackID, text)
	if alert {
		callback = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	if _, err := s.api.Request(callback); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

func replyMarkup(m *dialog.Menu) interface{} {
	if m.Inline {
		return inlineMarkup(m)
	}

	rows := make([][]tgbotapi.KeyboardButton, 0, len(m.Rows))
	for _, row := range m.Rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, b := range row {
			if b.RequestLocation {
				buttons = append(buttons, tgbotapi.NewKeyboardButtonLocation(b.Label))
			} else {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(b.Label))
			}
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
	}

	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func inlineMarkup(m *dialog.Menu) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(m.Rows))
	for _, row := range m.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
