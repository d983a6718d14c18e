package store

import (
	"context"
	"time"

	"github.com/darkauth/darkauth/internal/apperr"
)

// Client is a registered OIDC relying party.
type Client struct {
	ClientID            string         `db:"client_id"`
	Name                string         `db:"name"`
	Public              bool           `db:"public"`
	HashedSecret        []byte         `db:"hashed_secret"`
	RedirectURIs        pqStringArray  `db:"redirect_uris"`
	RequirePkce         bool           `db:"require_pkce"`
	ZkDelivery           *string       `db:"zk_delivery"` // "fragment-jwe" or nil
	AllowedJweAlgs       pqStringArray `db:"allowed_jwe_algs"`
	AllowedJweEncs       pqStringArray `db:"allowed_jwe_encs"`
	AccessTokenLifetimeSeconds  int64  `db:"access_token_lifetime_seconds"`
	RefreshTokenLifetimeSeconds int64  `db:"refresh_token_lifetime_seconds"`
	SessionIdleTimeoutSeconds   int64  `db:"session_idle_timeout_seconds"`
	SessionAbsoluteTTLSeconds   int64  `db:"session_absolute_ttl_seconds"`
	CreatedAt            time.Time     `db:"created_at"`
}

// AccessTokenLifetime etc. convert the persisted integer-seconds columns
// to time.Duration; Postgres integer columns don't auto-scan into
// time.Duration via database/sql, so the wire type stays int64.
func (c *Client) AccessTokenLifetime() time.Duration {
	return time.Duration(c.AccessTokenLifetimeSeconds) * time.Second
}

func (c *Client) RefreshTokenLifetime() time.Duration {
	return time.Duration(c.RefreshTokenLifetimeSeconds) * time.Second
}

func (c *Client) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleTimeoutSeconds) * time.Second
}

func (c *Client) SessionAbsoluteTTL() time.Duration {
	return time.Duration(c.SessionAbsoluteTTLSeconds) * time.Second
}

// DefaultAllowedJweAlgs / Encs are the shipped defaults: ECDH-ES + A256GCM.
var (
	DefaultAllowedJweAlgs = []string{"ECDH-ES"}
	DefaultAllowedJweEncs = []string{"A256GCM"}
)

// ClientByID loads a registered client.
func (d *DB) ClientByID(ctx context.Context, clientID string) (*Client, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()
	var c Client
	err := d.sqlx.GetContext(ctx, &c, `SELECT * FROM clients WHERE client_id = $1`, clientID)
	if err != nil {
		if ErrNoRows(err) {
			return nil, apperr.NotFound("client", err)
		}
		return nil, apperr.Internal(err)
	}
	return &c, nil
}

// MatchesRedirectURI requires exact string equality, no wildcards.
func (c *Client) MatchesRedirectURI(uri string) bool {
	for _, r := range c.RedirectURIs {
		if r == uri {
			return true
		}
	}
	return false
}

// PkceRequired reports whether this client must present PKCE.
func (c *Client) PkceRequired() bool {
	return c.Public || c.RequirePkce
}
