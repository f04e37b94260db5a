package authflow

import (
	"context"
	"strings"
)

const (
	// DefaultAuthorizationURL is Slack's OpenID Connect authorize endpoint
	DefaultAuthorizationURL = "https://slack.com/openid/connect/authorize"

	// length of generated state and nonce values
	stateLength = 16
)

// DefaultScopes are the scopes the dashboard needs to list channels
var DefaultScopes = []string{"openid", "profile", "email", "channels:read", "groups:read", "mpim:read"}

// Config is the OAuth client configuration shared by the initiator and
// the callback handler
type Config struct {
	ClientID         string
	ClientSecret     string
	RedirectURI      string
	AuthorizationURL string
	Scopes           []string
	// AllowedDomains restricts login to these email domains when non-empty
	AllowedDomains []string
}

func (c Config) withDefaults() Config {
	if c.AuthorizationURL == "" {
		c.AuthorizationURL = DefaultAuthorizationURL
	}
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes
	}
	return c
}

// ScopeString is the space-separated scope parameter
func (c Config) ScopeString() string {
	return strings.Join(c.withDefaults().Scopes, " ")
}

// TokenVerifier validates an identity token beyond decoding it
type TokenVerifier interface {
	Verify(ctx context.Context, token string) error
}

// Recorder receives login flow events
type Recorder interface {
	LoginStarted()
	Callback(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) LoginStarted()   {}
func (noopRecorder) Callback(string) {}
