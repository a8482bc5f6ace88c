// File: internal/application/bot_facade.go
package application

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-results-bot/internal/domain/model"
	"telegram-results-bot/internal/domain/ports/adapter"
	"telegram-results-bot/internal/infra/logging"
	"telegram-results-bot/internal/usecase"
)

// BotFacade is the single entry point for inbound Telegram traffic: it decodes
// raw updates, runs them through the conversation and delivers the reply.
type BotFacade struct {
	conversation *usecase.ConversationUseCase
	broadcaster  usecase.BroadcastUseCase
	dispatcher   adapter.MessageDispatcher
	log          *zerolog.Logger
}

func NewBotFacade(
	conversation *usecase.ConversationUseCase,
	broadcaster usecase.BroadcastUseCase,
	dispatcher adapter.MessageDispatcher,
	logger *zerolog.Logger,
) *BotFacade {
	return &BotFacade{
		conversation: conversation,
		broadcaster:  broadcaster,
		dispatcher:   dispatcher,
		log:          logger,
	}
}

// HandleUpdate processes one Telegram update end to end. Updates with no
// actionable content are dropped silently.
func (f *BotFacade) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	userID, ev, ok := decodeUpdate(update)
	if !ok {
		return nil
	}

	ctx = logging.WithTraceID(ctx, uuid.NewString())
	ctx = logging.WithTgID(ctx, userID)
	log := logging.With(ctx, f.log)

	reply := f.conversation.HandleInbound(ctx, userID, ev)
	if reply == nil {
		return nil
	}
	return f.deliver(ctx, userID, ev, reply, log)
}

// RunBroadcast starts a broadcast on behalf of the operations API.
func (f *BotFacade) RunBroadcast(ctx context.Context, message string) (*model.BroadcastReport, error) {
	return f.broadcaster.Run(ctx, message)
}

func (f *BotFacade) deliver(ctx context.Context, userID int64, ev usecase.Event, reply *usecase.Reply, log *zerolog.Logger) error {
	if ev.Kind == usecase.EventCallback && ev.CallbackID != "" {
		if err := f.dispatcher.AnswerCallback(ctx, ev.CallbackID, reply.Ack, reply.AckAlert); err != nil {
			log.Warn().Err(err).Msg("failed to answer callback query")
		}
	}
	if reply.Silent {
		return nil
	}

	if reply.Edit && reply.Ref.MessageID != 0 {
		if err := f.dispatcher.Edit(ctx, userID, reply.Ref, reply.Payload); err != nil {
			log.Error().Err(err).Msg("failed to edit reply")
			return err
		}
		return nil
	}
	if err := f.dispatcher.Send(ctx, userID, reply.Payload); err != nil {
		log.Error().Err(err).Msg("failed to send reply")
		return err
	}
	return nil
}

// decodeUpdate maps the Bot API update shape onto a conversation event.
func decodeUpdate(update tgbotapi.Update) (int64, usecase.Event, bool) {
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.From == nil {
			return 0, usecase.Event{}, false
		}
		ev := usecase.Event{
			Kind:       usecase.EventCallback,
			Data:       cb.Data,
			CallbackID: cb.ID,
		}
		if cb.Message != nil {
			ev.Ref = adapter.MessageRef{
				ChatID:    cb.Message.Chat.ID,
				MessageID: cb.Message.MessageID,
			}
		}
		return cb.From.ID, ev, true

	case update.Message != nil:
		msg := update.Message
		if msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
			return 0, usecase.Event{}, false
		}
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			return 0, usecase.Event{}, false
		}
		if text == "/start" || strings.HasPrefix(text, "/start ") {
			return msg.From.ID, usecase.Event{Kind: usecase.EventStart}, true
		}
		return msg.From.ID, usecase.Event{Kind: usecase.EventText, Text: text}, true

	default:
		return 0, usecase.Event{}, false
	}
}
