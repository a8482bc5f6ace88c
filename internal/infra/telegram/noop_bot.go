package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-results-bot/internal/domain/ports/adapter"
)

// NoopTransport logs outbound traffic instead of sending it. Used in dev mode
// so the conversation can be exercised without live bot tokens.
type NoopTransport struct {
	log *zerolog.Logger
}

var _ adapter.OutboundTransport = (*NoopTransport)(nil)

func NewNoopTransport(logger *zerolog.Logger) *NoopTransport {
	return &NoopTransport{log: logger}
}

// NewNoopFactory returns a factory producing NoopTransports for every
// credential.
func NewNoopFactory(logger *zerolog.Logger) TransportFactory {
	return func(cred Credential) (adapter.OutboundTransport, error) {
		return NewNoopTransport(logger), nil
	}
}

func (t *NoopTransport) SendMessage(ctx context.Context, chatID int64, p adapter.Payload) error {
	t.log.Debug().Int64("chat_id", chatID).Str("text", p.Text).Msg("noop send")
	return nil
}

func (t *NoopTransport) EditMessage(ctx context.Context, ref adapter.MessageRef, p adapter.Payload) error {
	t.log.Debug().Int64("chat_id", ref.ChatID).Int("message_id", ref.MessageID).Str("text", p.Text).Msg("noop edit")
	return nil
}

func (t *NoopTransport) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	t.log.Debug().Str("callback_id", callbackID).Str("text", text).Msg("noop answer callback")
	return nil
}
