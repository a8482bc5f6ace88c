package telegram

import (
	"fmt"

	"github.com/rs/zerolog"

	"telegram-results-bot/internal/domain/ports/adapter"
)

// TransportFactory builds an OutboundTransport for one credential. Production
// wiring passes NewRealTransport; tests substitute fakes.
type TransportFactory func(cred Credential) (adapter.OutboundTransport, error)

// SingleInterfaceManager presents one bot interface to users while spreading
// outbound sends across every configured credential. The primary credential
// receives all webhooks.
type SingleInterfaceManager struct {
	router  *TokenRouter
	clients []adapter.OutboundTransport
	log     *zerolog.Logger
}

var _ adapter.BotManager = (*SingleInterfaceManager)(nil)

func NewSingleInterfaceManager(router *TokenRouter, factory TransportFactory, logger *zerolog.Logger) (*SingleInterfaceManager, error) {
	clients, err := buildClients(router, factory)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Int("backend_bots", len(clients)).
		Str("mode", string(router.Mode())).
		Msg("bot manager initialized")
	return &SingleInterfaceManager{router: router, clients: clients, log: logger}, nil
}

func (m *SingleInterfaceManager) ResponseClient(userID int64) adapter.OutboundTransport {
	_, idx := m.router.ResponseCredential(userID)
	return m.clients[idx]
}

func (m *SingleInterfaceManager) PrimaryClient() adapter.OutboundTransport {
	return m.clients[0]
}

func (m *SingleInterfaceManager) Stats() adapter.ManagerStats {
	return adapter.ManagerStats{
		Mode:         string(m.router.Mode()),
		BackendBots:  len(m.clients),
		PrimaryIndex: 0,
	}
}

// ShardedManager runs one bot per shard: each credential both receives its
// shard's webhooks and sends its shard's responses.
type ShardedManager struct {
	router  *TokenRouter
	clients []adapter.OutboundTransport
	log     *zerolog.Logger
}

var _ adapter.BotManager = (*ShardedManager)(nil)

func NewShardedManager(router *TokenRouter, factory TransportFactory, logger *zerolog.Logger) (*ShardedManager, error) {
	clients, err := buildClients(router, factory)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Int("shards", len(clients)).
		Str("mode", string(router.Mode())).
		Msg("sharded bot manager initialized")
	return &ShardedManager{router: router, clients: clients, log: logger}, nil
}

func (m *ShardedManager) ResponseClient(userID int64) adapter.OutboundTransport {
	_, idx := m.router.ResponseCredential(userID)
	return m.clients[idx]
}

func (m *ShardedManager) PrimaryClient() adapter.OutboundTransport {
	return m.clients[0]
}

func (m *ShardedManager) Stats() adapter.ManagerStats {
	return adapter.ManagerStats{
		Mode:         string(m.router.Mode()),
		BackendBots:  len(m.clients),
		PrimaryIndex: 0,
	}
}

// NewManager picks the manager variant once from the routing mode.
func NewManager(router *TokenRouter, factory TransportFactory, logger *zerolog.Logger) (adapter.BotManager, error) {
	switch router.Mode() {
	case ModeMultiBot:
		return NewShardedManager(router, factory, logger)
	case ModeSingleInterface, ModeSingleToken:
		return NewSingleInterfaceManager(router, factory, logger)
	default:
		return nil, fmt.Errorf("unknown bot mode %q", router.Mode())
	}
}

func buildClients(router *TokenRouter, factory TransportFactory) ([]adapter.OutboundTransport, error) {
	clients := make([]adapter.OutboundTransport, 0, router.Size())
	for i, cred := range router.credentials {
		client, err := factory(cred)
		if err != nil {
			return nil, fmt.Errorf("build transport %d: %w", i, err)
		}
		clients = append(clients, client)
	}
	return clients, nil
}
