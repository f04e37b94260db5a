package server

import (
	"errors"
	"net/http"

	"github.com/pingdaily/ping-daily-web/internal/authflow"
	"github.com/pingdaily/ping-daily-web/internal/cookie"
	"github.com/pingdaily/ping-daily-web/internal/crypto"
	jsonwriter "github.com/pingdaily/ping-daily-web/internal/json"
	"github.com/pingdaily/ping-daily-web/internal/log"
	"github.com/pingdaily/ping-daily-web/internal/session"
)

// csrfHeader is the canonical form of X-CSRF-Token
const csrfHeader = "X-Csrf-Token"

// LogoutRecorder counts explicit logouts
type LogoutRecorder interface {
	LoggedOut()
}

// AuthHandlers serves the login, callback and session endpoints
type AuthHandlers struct {
	appName   string
	initiator *authflow.Initiator
	callback  *authflow.Callback
	sessions  *session.Manager
	csrf      crypto.CSRFProtection
	recorder  LogoutRecorder
}

func NewAuthHandlers(
	appName string,
	initiator *authflow.Initiator,
	callback *authflow.Callback,
	sessions *session.Manager,
	csrf crypto.CSRFProtection,
	recorder LogoutRecorder,
) *AuthHandlers {
	return &AuthHandlers{
		appName:   appName,
		initiator: initiator,
		callback:  callback,
		sessions:  sessions,
		csrf:      csrf,
		recorder:  recorder,
	}
}

func scopeOf(w http.ResponseWriter, r *http.Request) (string, bool) {
	bc, ok := BrowserContextFromContext(r.Context())
	if !ok {
		log.LogError("Auth handler reached without a browser context")
		jsonwriter.WriteInternalServerError(w, "Internal Server Error")
		return "", false
	}
	return bc.ID, true
}

// LoginHandler starts a login and redirects the browser to the provider
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}

	authURL, err := h.initiator.Begin(r.Context(), scope)
	if err != nil {
		var cfgErr *authflow.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.LogErrorWithFields("auth", "Login attempted without a client id", nil)
			jsonwriter.WriteError(w, http.StatusInternalServerError, "configuration_error", authflow.PublicMessage(err))
			return
		}
		log.LogErrorWithFields("auth", "Failed to start login", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, authflow.PublicMessage(err))
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// CallbackHandler completes a login. Success and requests that carry
// nothing to process both land on the dashboard root, which drops the code
// and state from the address bar.
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}

	sess, err := h.callback.Handle(r.Context(), scope, r.URL.Query())
	switch {
	case err == nil:
		log.LogInfoWithFields("auth", "User signed in", map[string]any{
			"user_id": sess.User.UserID,
			"team_id": sess.User.TeamID,
		})
		http.Redirect(w, r, "/", http.StatusFound)
	case errors.Is(err, authflow.ErrNotACallback), errors.Is(err, authflow.ErrAlreadyHandled):
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		status, code := callbackFailure(err)
		log.LogWarnWithFields("auth", "Callback failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"outcome":    authflow.Outcome(err),
			"error":      err.Error(),
		})
		jsonwriter.WriteError(w, status, code, authflow.PublicMessage(err))
	}
}

// callbackFailure maps a callback error to a response status and error code
func callbackFailure(err error) (int, string) {
	var (
		providerErr *authflow.ProviderError
		exchangeErr *authflow.TokenExchangeError
	)
	switch {
	case errors.As(err, &providerErr):
		return http.StatusBadRequest, "oauth_error"
	case errors.Is(err, authflow.ErrInvalidState), errors.Is(err, authflow.ErrInvalidNonce):
		return http.StatusBadRequest, "invalid_session"
	case errors.As(err, &exchangeErr):
		return http.StatusBadGateway, "token_exchange_failed"
	case errors.Is(err, authflow.ErrMalformedToken), errors.Is(err, authflow.ErrMissingIDToken), errors.Is(err, authflow.ErrUnverifiedToken):
		return http.StatusBadGateway, "sign_in_failed"
	case errors.Is(err, authflow.ErrAccessDenied):
		return http.StatusForbidden, "access_denied"
	default:
		return http.StatusInternalServerError, "internal_server_error"
	}
}

// LogoutHandler ends the session of the current browser context. The
// request must echo the CSRF cookie in the X-CSRF-Token header.
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}

	header := r.Header.Get(csrfHeader)
	fromCookie, err := cookie.GetCSRF(r)
	if err != nil || header == "" || header != fromCookie || !h.csrf.Validate(header) {
		log.LogWarnWithFields("auth", "Logout rejected: bad CSRF token", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
		})
		jsonwriter.WriteForbidden(w, "Invalid CSRF token")
		return
	}

	if err := h.sessions.Logout(r.Context(), scope); err != nil {
		log.LogErrorWithFields("auth", "Logout failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to sign out")
		return
	}
	if h.recorder != nil {
		h.recorder.LoggedOut()
	}
	cookie.ClearCSRF(w)
	// the next request starts a new browser context
	cookie.ClearContext(w)

	_ = jsonwriter.Write(w, map[string]string{"status": "signed_out"})
}

// MeHandler returns the identity of the current session
func (h *AuthHandlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Not signed in")
		return
	}
	_ = jsonwriter.Write(w, map[string]any{"user": sess.User})
}

// CSRFHandler issues a CSRF token as both a cookie and a JSON body
func (h *AuthHandlers) CSRFHandler(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrf.Generate()
	if err != nil {
		log.LogError("Failed to generate CSRF token: %v", err)
		jsonwriter.WriteInternalServerError(w, "Internal Server Error")
		return
	}
	cookie.SetCSRF(w, token)
	_ = jsonwriter.Write(w, map[string]string{"csrfToken": token})
}
