package idtoken

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var ErrVerification = errors.New("identity token verification failed")

// VerifierConfig describes where the provider publishes its signing keys
type VerifierConfig struct {
	JWKSURL    string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
	MinRefresh time.Duration
	HTTPClient *http.Client
}

// Verifier checks signature, issuer, audience and expiry of identity tokens
// against a cached JWKS. Decoding alone never does this.
type Verifier struct {
	cfg   VerifierConfig
	cache *jwk.Cache
}

func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("jwks url is required")
	}
	if cfg.MinRefresh == 0 {
		cfg.MinRefresh = 15 * time.Minute
	}
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(
		cfg.JWKSURL,
		jwk.WithMinRefreshInterval(cfg.MinRefresh),
		jwk.WithHTTPClient(cfg.HTTPClient),
	); err != nil {
		return nil, fmt.Errorf("register jwks: %w", err)
	}

	return &Verifier{cfg: cfg, cache: cache}, nil
}

// Verify validates token and returns nil when it is authentic and current
func (v *Verifier) Verify(ctx context.Context, token string) error {
	keySet, err := v.cache.Get(ctx, v.cfg.JWKSURL)
	if err != nil {
		return fmt.Errorf("%w: fetch jwks: %v", ErrVerification, err)
	}

	parsed, err := jwt.Parse([]byte(token), jwt.WithKeySet(keySet), jwt.WithValidate(false))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}

	opts := []jwt.ValidateOption{jwt.WithAcceptableSkew(v.cfg.ClockSkew)}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}
	if err := jwt.Validate(parsed, opts...); err != nil {
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}
	return nil
}
