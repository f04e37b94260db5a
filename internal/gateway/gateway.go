package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/pingdaily/ping-daily-web/internal/log"
	"golang.org/x/oauth2"
)

// DefaultTokenURL is Slack's OpenID Connect token endpoint
const DefaultTokenURL = "https://slack.com/api/openid.connect.token"

// genericProviderCode is used when the provider says "not ok" without a reason
const genericProviderCode = "Slack API error"

// ExchangeRequest carries everything the token endpoint needs
type ExchangeRequest struct {
	Code         string `json:"code"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
}

func (r ExchangeRequest) complete() bool {
	return r.Code != "" && r.ClientID != "" && r.ClientSecret != "" && r.RedirectURI != ""
}

// TokenResponse is the subset of the provider response handed to callers
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	IDToken     string `json:"id_token"`
}

// Exchanger trades an authorization code for tokens
type Exchanger interface {
	Exchange(ctx context.Context, req ExchangeRequest) (*TokenResponse, error)
}

// Observer is told how long each exchange took
type Observer interface {
	ObserveExchange(start time.Time, err error)
}

// Gateway performs the code exchange against the provider. It is the only
// component that ever holds the client secret.
type Gateway struct {
	tokenURL   string
	httpClient *http.Client
	observer   Observer
}

var _ Exchanger = (*Gateway)(nil)

type Option func(*Gateway)

func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

func New(tokenURL string, opts ...Option) *Gateway {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	g := &Gateway{
		tokenURL:   tokenURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Exchange posts the code to the token endpoint. Credentials go both in
// the Basic header and in the form body, as Slack accepts either.
func (g *Gateway) Exchange(ctx context.Context, req ExchangeRequest) (resp *TokenResponse, err error) {
	if !req.complete() {
		return nil, ErrMissingParameters
	}

	start := time.Now()
	if g.observer != nil {
		defer func() { g.observer.ObserveExchange(start, err) }()
	}

	cfg := &oauth2.Config{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		RedirectURL:  req.RedirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  g.tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	tok, err := cfg.Exchange(ctx, req.Code,
		oauth2.SetAuthURLParam("client_id", req.ClientID),
		oauth2.SetAuthURLParam("client_secret", req.ClientSecret),
	)
	if err != nil {
		return nil, classify(err)
	}

	if ok, present := tok.Extra("ok").(bool); present && !ok {
		code, _ := tok.Extra("error").(string)
		if code == "" {
			code = genericProviderCode
		}
		return nil, &ProviderError{Status: http.StatusBadRequest, Code: code}
	}

	idToken, _ := tok.Extra("id_token").(string)
	log.LogDebugWithFields("gateway", "Code exchanged", map[string]any{
		"token_type":   tok.TokenType,
		"has_id_token": idToken != "",
	})

	return &TokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		IDToken:     idToken,
	}, nil
}

// classify turns x/oauth2 errors into gateway errors
func classify(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if status < 200 || status > 299 {
			return &UpstreamError{Status: status, Code: re.ErrorCode, Body: string(re.Body)}
		}
		code := re.ErrorCode
		if code == "" {
			code = genericProviderCode
		}
		return &ProviderError{Status: http.StatusBadRequest, Code: code}
	}

	// a 2xx body without access_token and without an error field, e.g. {"ok":false}
	if strings.Contains(err.Error(), "missing access_token") {
		return &ProviderError{Status: http.StatusBadRequest, Code: genericProviderCode}
	}
	return err
}
