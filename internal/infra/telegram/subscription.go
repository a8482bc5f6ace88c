package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-results-bot/internal/domain/ports/adapter"
)

// ChannelSubscriptionChecker verifies channel membership through the Bot API.
// The bot must be an administrator of the channel for GetChatMember to work.
type ChannelSubscriptionChecker struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zerolog.Logger
}

var _ adapter.SubscriptionChecker = (*ChannelSubscriptionChecker)(nil)

func NewChannelSubscriptionChecker(bot *tgbotapi.BotAPI, chatID int64, logger *zerolog.Logger) *ChannelSubscriptionChecker {
	return &ChannelSubscriptionChecker{bot: bot, chatID: chatID, log: logger}
}

func (c *ChannelSubscriptionChecker) IsSubscribed(ctx context.Context, userID int64) (bool, error) {
	member, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: c.chatID,
			UserID: userID,
		},
	})
	if err != nil {
		return false, err
	}
	switch member.Status {
	case "creator", "administrator", "member":
		return true, nil
	default:
		return false, nil
	}
}

// AllowAllChecker admits everyone. Used when no required channel is
// configured.
type AllowAllChecker struct{}

var _ adapter.SubscriptionChecker = AllowAllChecker{}

func (AllowAllChecker) IsSubscribed(ctx context.Context, userID int64) (bool, error) {
	return true, nil
}
