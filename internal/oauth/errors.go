package oauth

import (
	"fmt"

	"github.com/ory/fosite"
)

type ErrorCode string

// ErrAccessDenied is sent back when the user declines the authorization
const ErrAccessDenied ErrorCode = "access_denied"

// catalogue maps RFC 6749 / OIDC error codes to fosite's definitions
var catalogue = map[ErrorCode]*fosite.RFC6749Error{}

func init() {
	for _, e := range []*fosite.RFC6749Error{
		fosite.ErrInvalidRequest,
		fosite.ErrUnauthorizedClient,
		fosite.ErrAccessDenied,
		fosite.ErrUnsupportedResponseType,
		fosite.ErrInvalidScope,
		fosite.ErrServerError,
		fosite.ErrTemporarilyUnavailable,
		fosite.ErrInvalidGrant,
		fosite.ErrInvalidClient,
		fosite.ErrUnsupportedGrantType,
		fosite.ErrLoginRequired,
		fosite.ErrConsentRequired,
		fosite.ErrInteractionRequired,
		fosite.ErrRequestUnauthorized,
	} {
		catalogue[ErrorCode(e.ErrorField)] = e
	}
}

// Slack reports some failures with its own codes instead of RFC 6749 ones
var providerCodes = map[ErrorCode]string{
	"invalid_code":       "The authorization code is invalid or has expired.",
	"code_already_used":  "The authorization code has already been exchanged.",
	"bad_redirect_uri":   "The redirect URI does not match the one registered for the app.",
	"invalid_client_id":  "The client identifier is not recognized.",
	"bad_client_secret":  "The client secret is invalid.",
	"invalid_grant_type": "The grant type is not supported.",
}

// Describe returns a human-readable description for an OAuth error code.
// Unknown codes describe themselves.
func Describe(code string) string {
	if e, ok := catalogue[ErrorCode(code)]; ok {
		return e.DescriptionField
	}
	if d, ok := providerCodes[ErrorCode(code)]; ok {
		return d
	}
	return fmt.Sprintf("The identity provider returned %q.", code)
}

// Known reports whether code is a documented OAuth or provider error
func Known(code string) bool {
	_, std := catalogue[ErrorCode(code)]
	_, prov := providerCodes[ErrorCode(code)]
	return std || prov
}

// OAuthError is an error code with its description
type OAuthError struct {
	Code        ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return string(e.Code)
}

// NewOAuthError builds an OAuthError, filling the description from the
// catalogue when none is given
func NewOAuthError(code ErrorCode, description string) *OAuthError {
	if description == "" {
		description = Describe(string(code))
	}
	return &OAuthError{Code: code, Description: description}
}
