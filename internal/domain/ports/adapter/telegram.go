package adapter

import "context"

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// Payload is one rendered outbound message: text plus optional inline keyboard.
type Payload struct {
	Text     string
	Keyboard [][]InlineButton
}

// MessageRef identifies an already-sent message for edits.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// OutboundTransport is the per-credential chat transport. One instance exists
// per configured bot credential.
type OutboundTransport interface {
	SendMessage(ctx context.Context, chatID int64, p Payload) error
	EditMessage(ctx context.Context, ref MessageRef, p Payload) error
	AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error
}

// ManagerStats describes the running bot fleet for the /stats endpoint.
type ManagerStats struct {
	Mode         string
	BackendBots  int
	PrimaryIndex int
}

// BotManager resolves transports for a fleet of credentials. Two concrete
// variants exist (single-interface and sharded multi-bot); the variant is
// chosen once at startup from configuration.
type BotManager interface {
	ResponseClient(userID int64) OutboundTransport
	PrimaryClient() OutboundTransport
	Stats() ManagerStats
}

// MessageDispatcher is what the use cases see: send or edit a message for a
// user, with credential selection and failover hidden behind it.
type MessageDispatcher interface {
	Send(ctx context.Context, userID int64, p Payload) error
	Edit(ctx context.Context, userID int64, ref MessageRef, p Payload) error
	AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error
}

// SubscriptionChecker gates search flows on channel membership. The shipped
// default allows everyone; a real checker can be swapped in via wiring.
type SubscriptionChecker interface {
	IsSubscribed(ctx context.Context, userID int64) (bool, error)
}
