package session

import (
	"context"
	"time"

	"github.com/pingdaily/ping-daily-web/internal/idtoken"
)

// Session is an authenticated identity plus its tokens. It lives until
// logout or until the backend rejects the access token.
type Session struct {
	User        idtoken.Identity `json:"user"`
	AccessToken string           `json:"-"`
	IDToken     string           `json:"-"`
}

// BrowserContext is the payload of the signed browser context cookie.
// ID scopes every stored value for one browser.
type BrowserContext struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
}

type ctxKey struct{}

// WithSession attaches sess to ctx
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session attached by WithSession
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(ctxKey{}).(*Session)
	return sess, ok && sess != nil
}
