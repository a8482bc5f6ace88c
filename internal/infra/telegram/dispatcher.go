package telegram

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"telegram-results-bot/internal/domain"
	"telegram-results-bot/internal/domain/ports/adapter"
	"telegram-results-bot/internal/infra/metrics"
)

// Dispatcher routes outbound sends through the credential resolved for the
// user, falling back to the primary credential exactly once on failure.
// Backend credentials are less monitored than the primary and may silently be
// revoked or throttled; one backend outage must not fail a whole broadcast.
type Dispatcher struct {
	manager adapter.BotManager
	log     *zerolog.Logger
}

var _ adapter.MessageDispatcher = (*Dispatcher)(nil)

func NewDispatcher(manager adapter.BotManager, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{manager: manager, log: logger}
}

func (d *Dispatcher) Send(ctx context.Context, userID int64, p adapter.Payload) error {
	client := d.manager.ResponseClient(userID)
	err := client.SendMessage(ctx, userID, p)
	if err == nil {
		metrics.IncDispatch("send", "ok", false)
		return nil
	}
	d.log.Warn().Err(err).Int64("tg_id", userID).Msg("backend send failed, retrying via primary")

	if fbErr := d.manager.PrimaryClient().SendMessage(ctx, userID, p); fbErr != nil {
		metrics.IncDispatch("send", "failed", true)
		return fmt.Errorf("%w: backend: %v, primary: %v", domain.ErrDispatchFailed, err, fbErr)
	}
	metrics.IncDispatch("send", "ok", true)
	return nil
}

func (d *Dispatcher) Edit(ctx context.Context, userID int64, ref adapter.MessageRef, p adapter.Payload) error {
	client := d.manager.ResponseClient(userID)
	err := client.EditMessage(ctx, ref, p)
	if err == nil {
		metrics.IncDispatch("edit", "ok", false)
		return nil
	}
	d.log.Warn().Err(err).Int64("tg_id", userID).Msg("backend edit failed, retrying via primary")

	if fbErr := d.manager.PrimaryClient().EditMessage(ctx, ref, p); fbErr != nil {
		metrics.IncDispatch("edit", "failed", true)
		return fmt.Errorf("%w: backend: %v, primary: %v", domain.ErrDispatchFailed, err, fbErr)
	}
	metrics.IncDispatch("edit", "ok", true)
	return nil
}

// AnswerCallback always goes through the primary client: callback queries only
// ever arrive on the webhook-receiving bot.
func (d *Dispatcher) AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error {
	return d.manager.PrimaryClient().AnswerCallback(ctx, callbackID, text, alert)
}
