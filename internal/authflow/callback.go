package authflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/pingdaily/ping-daily-web/internal/emailutil"
	"github.com/pingdaily/ping-daily-web/internal/gateway"
	"github.com/pingdaily/ping-daily-web/internal/idtoken"
	"github.com/pingdaily/ping-daily-web/internal/log"
	"github.com/pingdaily/ping-daily-web/internal/session"
	"github.com/pingdaily/ping-daily-web/internal/storage"
	"golang.org/x/sync/singleflight"
)

// how many resolved codes are remembered
const processedCodesLimit = 4096

// Callback completes a login when the provider redirects back
type Callback struct {
	cfg       Config
	store     storage.Backend
	exchanger gateway.Exchanger
	sessions  *session.Manager
	verifier  TokenVerifier
	recorder  Recorder

	inflight  singleflight.Group
	mu        sync.Mutex
	processed map[string]struct{}
	order     []string
}

type CallbackOption func(*Callback)

// WithVerifier enables identity token signature and claim validation
func WithVerifier(v TokenVerifier) CallbackOption {
	return func(c *Callback) { c.verifier = v }
}

func WithRecorder(r Recorder) CallbackOption {
	return func(c *Callback) { c.recorder = r }
}

func NewCallback(cfg Config, store storage.Backend, exchanger gateway.Exchanger, sessions *session.Manager, opts ...CallbackOption) *Callback {
	c := &Callback{
		cfg:       cfg.withDefaults(),
		store:     store,
		exchanger: exchanger,
		sessions:  sessions,
		recorder:  noopRecorder{},
		processed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle processes the callback query for scope. The pending authorization
// is only removed on success; every failure leaves it as it was.
//
// A code is exchanged at most once. Concurrent requests for the same code
// wait for the first one to finish and then get ErrAlreadyHandled, as do
// any later requests once an exchange was attempted. Failures before the
// exchange leave the code usable.
func (c *Callback) Handle(ctx context.Context, scope string, query url.Values) (*session.Session, error) {
	sess, err := c.handle(ctx, scope, query)
	if !errors.Is(err, ErrNotACallback) {
		c.recorder.Callback(Outcome(err))
	}
	return sess, err
}

func (c *Callback) handle(ctx context.Context, scope string, query url.Values) (*session.Session, error) {
	if code := query.Get("error"); code != "" {
		providerErr := newProviderError(code, query.Get("error_description"))
		fields := map[string]any{
			"error":             code,
			"error_description": query.Get("error_description"),
		}
		if providerErr.Declined() {
			log.LogInfoWithFields("authflow", "User declined authorization", fields)
		} else {
			log.LogWarnWithFields("authflow", "Provider returned an error", fields)
		}
		return nil, providerErr
	}

	code, state := query.Get("code"), query.Get("state")
	if code == "" || state == "" {
		return nil, ErrNotACallback
	}

	if c.seen(code) {
		return nil, ErrAlreadyHandled
	}

	leader := false
	v, err, _ := c.inflight.Do(code, func() (any, error) {
		leader = true
		if c.seen(code) {
			return nil, ErrAlreadyHandled
		}
		return c.complete(ctx, scope, code, state)
	})
	if !leader {
		return nil, ErrAlreadyHandled
	}
	if err != nil {
		return nil, err
	}
	return v.(*session.Session), nil
}

func (c *Callback) complete(ctx context.Context, scope, code, state string) (*session.Session, error) {
	pendingState, err := c.pending(ctx, scope, storage.KeyOAuthState)
	if err != nil {
		return nil, err
	}
	if pendingState == "" || !equal(pendingState, state) {
		log.LogWarnWithFields("authflow", "State mismatch on callback", map[string]any{
			"has_pending": pendingState != "",
		})
		return nil, ErrInvalidState
	}

	// the provider burns the code on first use, whatever the outcome
	c.remember(code)
	tokens, err := c.exchanger.Exchange(ctx, gateway.ExchangeRequest{
		Code:         code,
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURI:  c.cfg.RedirectURI,
	})
	if err != nil {
		log.LogErrorWithFields("authflow", "Token exchange failed", map[string]any{
			"status": gateway.StatusOf(err),
			"code":   gateway.CodeOf(err),
			"error":  err.Error(),
		})
		return nil, &TokenExchangeError{Status: gateway.StatusOf(err), Code: gateway.CodeOf(err), Err: err}
	}

	if tokens.IDToken == "" {
		return nil, ErrMissingIDToken
	}
	claims, err := idtoken.Decode(tokens.IDToken)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject claim", ErrMalformedToken)
	}
	if c.verifier != nil {
		if err := c.verifier.Verify(ctx, tokens.IDToken); err != nil {
			log.LogWarnWithFields("authflow", "Identity token failed verification", map[string]any{
				"error": err.Error(),
			})
			return nil, err
		}
	}

	pendingNonce, err := c.pending(ctx, scope, storage.KeyOAuthNonce)
	if err != nil {
		return nil, err
	}
	if pendingNonce == "" || !equal(pendingNonce, claims.Nonce) {
		log.LogWarnWithFields("authflow", "Nonce mismatch on callback", map[string]any{
			"has_pending": pendingNonce != "",
			"has_claim":   claims.Nonce != "",
		})
		return nil, ErrInvalidNonce
	}

	if !emailutil.DomainAllowed(claims.Email, c.cfg.AllowedDomains) {
		log.LogWarnWithFields("authflow", "Login from disallowed domain", map[string]any{
			"domain": emailutil.ExtractDomain(claims.Email),
		})
		return nil, ErrAccessDenied
	}

	sess, err := c.sessions.Login(ctx, scope, claims.Identity(), tokens.AccessToken, tokens.IDToken)
	if err != nil {
		return nil, err
	}
	if err := c.store.Delete(ctx, scope, storage.PendingKeys...); err != nil {
		// the session is live; a stale pending entry only fails a later state check
		log.LogWarnWithFields("authflow", "Failed to clear pending authorization", map[string]any{
			"error": err.Error(),
		})
	}
	return sess, nil
}

// pending reads a pending value; absence is the empty string
func (c *Callback) pending(ctx context.Context, scope string, key storage.Key) (string, error) {
	v, err := c.store.Get(ctx, scope, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return v, nil
}

func (c *Callback) seen(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.processed[code]
	return ok
}

func (c *Callback) remember(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.processed[code]; ok {
		return
	}
	c.processed[code] = struct{}{}
	c.order = append(c.order, code)
	if len(c.order) > processedCodesLimit {
		delete(c.processed, c.order[0])
		c.order = c.order[1:]
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
