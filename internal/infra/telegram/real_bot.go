package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-results-bot/internal/domain/ports/adapter"
)

// RealTransport sends through the Telegram Bot API with one underlying bot
// per credential.
type RealTransport struct {
	bot *tgbotapi.BotAPI
	log *zerolog.Logger
}

var _ adapter.OutboundTransport = (*RealTransport)(nil)

// NewRealTransport authenticates the credential against the Bot API.
func NewRealTransport(cred Credential, logger *zerolog.Logger) (*RealTransport, error) {
	bot, err := tgbotapi.NewBotAPI(string(cred))
	if err != nil {
		return nil, err
	}
	logger.Info().Str("bot_username", bot.Self.UserName).Msg("telegram transport authenticated")
	return &RealTransport{bot: bot, log: logger}, nil
}

// NewTransportFactory adapts NewRealTransport to the manager's factory shape.
func NewTransportFactory(logger *zerolog.Logger) TransportFactory {
	return func(cred Credential) (adapter.OutboundTransport, error) {
		return NewRealTransport(cred, logger)
	}
}

func (t *RealTransport) SendMessage(ctx context.Context, chatID int64, p adapter.Payload) error {
	msg := tgbotapi.NewMessage(chatID, p.Text)
	if kb := toInlineKeyboard(p.Keyboard); kb != nil {
		msg.ReplyMarkup = *kb
	}
	_, err := t.bot.Send(msg)
	return err
}

func (t *RealTransport) EditMessage(ctx context.Context, ref adapter.MessageRef, p adapter.Payload) error {
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, p.Text)
	if kb := toInlineKeyboard(p.Keyboard); kb != nil {
		edit.ReplyMarkup = kb
	}
	_, err := t.bot.Send(edit)
	return err
}

func (t *RealTransport) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	_, err := t.bot.Request(cb)
	return err
}

// Bot exposes the underlying API client for membership checks and webhook
// registration.
func (t *RealTransport) Bot() *tgbotapi.BotAPI { return t.bot }

func toInlineKeyboard(rows [][]adapter.InlineButton) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			switch {
			case b.URL != "":
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			default:
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		kb = append(kb, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(kb...)
	return &markup
}
