package authflow

import (
	"errors"
	"fmt"

	"github.com/pingdaily/ping-daily-web/internal/idtoken"
	"github.com/pingdaily/ping-daily-web/internal/log"
	"github.com/pingdaily/ping-daily-web/internal/metrics"
	"github.com/pingdaily/ping-daily-web/internal/oauth"
)

var (
	// ErrNotACallback means the request carries neither an error nor both code and state
	ErrNotACallback = errors.New("not an oauth callback")

	// ErrAlreadyHandled is returned for a code that is being or has been processed
	ErrAlreadyHandled = errors.New("authorization code already handled")

	ErrInvalidState    = errors.New("invalid oauth state")
	ErrInvalidNonce    = errors.New("invalid identity token nonce")
	ErrMissingIDToken  = errors.New("token response has no identity token")
	ErrAccessDenied    = errors.New("email domain not allowed")
	ErrMalformedToken  = idtoken.ErrMalformedToken
	ErrUnverifiedToken = idtoken.ErrVerification
)

// ConfigurationError means login cannot start with the current settings
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// ProviderError is an error the provider sent back on the redirect
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("OAuth Error: %s", e.Code)
}

func newProviderError(code, description string) *ProviderError {
	if !oauth.Known(code) {
		log.LogWarnWithFields("authflow", "Unrecognized provider error code", map[string]any{
			"error": code,
		})
	}
	oauthErr := oauth.NewOAuthError(oauth.ErrorCode(code), description)
	return &ProviderError{Code: string(oauthErr.Code), Description: oauthErr.Description}
}

// Declined reports whether the user turned down the authorization
func (e *ProviderError) Declined() bool {
	return oauth.ErrorCode(e.Code) == oauth.ErrAccessDenied
}

// TokenExchangeError wraps a failed code exchange
type TokenExchangeError struct {
	Status int
	Code   string
	Err    error
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("failed to exchange code for token (status %d): %v", e.Status, e.Err)
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// PublicMessage turns any login error into the one string shown to the
// user. Which anti-forgery check failed is never revealed.
func PublicMessage(err error) string {
	var (
		cfgErr      *ConfigurationError
		providerErr *ProviderError
		exchangeErr *TokenExchangeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "Please configure the Slack Client ID"
	case errors.As(err, &providerErr):
		return "OAuth Error: " + providerErr.Code
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrInvalidNonce):
		return "Invalid session, please try again"
	case errors.As(err, &exchangeErr):
		return "Failed to exchange code for token"
	case errors.Is(err, ErrMalformedToken), errors.Is(err, ErrMissingIDToken), errors.Is(err, ErrUnverifiedToken):
		return "Sign-in failed, please try again"
	case errors.Is(err, ErrAccessDenied):
		return "Your account is not allowed to use this dashboard"
	case errors.Is(err, ErrAlreadyHandled):
		return "This sign-in link was already used"
	default:
		return "Something went wrong, please try again"
	}
}

// Outcome labels err for the callback outcome counter
func Outcome(err error) string {
	var (
		providerErr *ProviderError
		exchangeErr *TokenExchangeError
	)
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &providerErr):
		return metrics.OutcomeProviderError
	case errors.Is(err, ErrInvalidState):
		return metrics.OutcomeInvalidState
	case errors.Is(err, ErrInvalidNonce):
		return metrics.OutcomeInvalidNonce
	case errors.As(err, &exchangeErr):
		return metrics.OutcomeExchangeError
	case errors.Is(err, ErrMalformedToken), errors.Is(err, ErrMissingIDToken), errors.Is(err, ErrUnverifiedToken):
		return metrics.OutcomeMalformed
	case errors.Is(err, ErrAccessDenied):
		return metrics.OutcomeDenied
	case errors.Is(err, ErrAlreadyHandled):
		return metrics.OutcomeDuplicate
	default:
		return metrics.OutcomeOther
	}
}
