package telegram

import (
	"telegram-results-bot/internal/domain"
)

// Mode selects how credentials are assigned to users.
type Mode string

const (
	// ModeSingleToken uses only the primary credential for everything.
	ModeSingleToken Mode = "single_token"
	// ModeSingleInterface presents one bot to users: the primary credential
	// receives every webhook, all credentials share the outbound load.
	ModeSingleInterface Mode = "single_interface"
	// ModeMultiBot shards users across separate bots, inbound and outbound.
	ModeMultiBot Mode = "multi_bot"
)

// Credential is one backend bot token. Index 0 of the configured list is the
// primary credential.
type Credential string

// RouterConfig is the explicit routing configuration; there is no ambient
// registry. The credential list order is significant and fixed for the life
// of the process.
type RouterConfig struct {
	Credentials []Credential
	Mode        Mode
}

// TokenRouter deterministically maps users to credentials. It is pure and
// stateless beyond the configured list.
type TokenRouter struct {
	credentials []Credential
	mode        Mode
}

func NewTokenRouter(cfg RouterConfig) (*TokenRouter, error) {
	if len(cfg.Credentials) == 0 {
		return nil, domain.ErrNoCredentialsConfigured
	}
	return &TokenRouter{credentials: cfg.Credentials, mode: cfg.Mode}, nil
}

// ResponseCredential returns the credential used to respond to userID and its
// index in the list. The same user always resolves to the same credential for
// a fixed list.
func (r *TokenRouter) ResponseCredential(userID int64) (Credential, int) {
	if r.mode == ModeSingleToken {
		return r.credentials[0], 0
	}
	idx := int(mod(userID, int64(len(r.credentials))))
	return r.credentials[idx], idx
}

// WebhookCredential returns the credential expected to receive inbound traffic
// for a shard. Single-interface mode has one ingress, the primary; other modes
// index into the list and fall back to primary when out of range.
func (r *TokenRouter) WebhookCredential(shardID int) Credential {
	if r.mode == ModeSingleInterface {
		return r.credentials[0]
	}
	if shardID >= 0 && shardID < len(r.credentials) {
		return r.credentials[shardID]
	}
	return r.credentials[0]
}

// Primary returns the webhook-receiving credential.
func (r *TokenRouter) Primary() Credential { return r.credentials[0] }

// Mode returns the configured routing mode.
func (r *TokenRouter) Mode() Mode { return r.mode }

// Size returns the number of configured credentials.
func (r *TokenRouter) Size() int { return len(r.credentials) }

// mod is a non-negative modulus so negative user ids still land in range.
func mod(a, n int64) int64 {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}
