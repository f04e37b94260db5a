package authflow

import (
	"context"
	"fmt"

	"github.com/pingdaily/ping-daily-web/internal/crypto"
	"github.com/pingdaily/ping-daily-web/internal/log"
	"github.com/pingdaily/ping-daily-web/internal/storage"
	"golang.org/x/oauth2"
)

// Initiator starts a login by recording a pending authorization and
// building the provider redirect
type Initiator struct {
	cfg      Config
	store    storage.Backend
	recorder Recorder
}

func NewInitiator(cfg Config, store storage.Backend, recorder Recorder) *Initiator {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Initiator{cfg: cfg.withDefaults(), store: store, recorder: recorder}
}

// Begin creates fresh state and nonce values for scope, replacing any
// earlier pending attempt, and returns the URL to send the browser to
func (i *Initiator) Begin(ctx context.Context, scope string) (string, error) {
	if i.cfg.ClientID == "" {
		return "", &ConfigurationError{Reason: "client id is not set"}
	}

	state, err := crypto.GenerateRandomString(stateLength)
	if err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	nonce, err := crypto.GenerateRandomString(stateLength)
	if err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	if err := i.store.Set(ctx, scope, storage.KeyOAuthState, state); err != nil {
		return "", fmt.Errorf("storing state: %w", err)
	}
	if err := i.store.Set(ctx, scope, storage.KeyOAuthNonce, nonce); err != nil {
		return "", fmt.Errorf("storing nonce: %w", err)
	}

	oc := &oauth2.Config{
		ClientID:    i.cfg.ClientID,
		RedirectURL: i.cfg.RedirectURI,
		Scopes:      i.cfg.Scopes,
		Endpoint:    oauth2.Endpoint{AuthURL: i.cfg.AuthorizationURL},
	}
	authURL := oc.AuthCodeURL(state, oauth2.SetAuthURLParam("nonce", nonce))

	i.recorder.LoginStarted()
	log.LogDebugWithFields("authflow", "Authorization redirect issued", map[string]any{
		"scopes": i.cfg.ScopeString(),
	})
	return authURL, nil
}
