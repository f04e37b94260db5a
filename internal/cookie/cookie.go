package cookie

import (
	"net/http"
	"time"

	"github.com/pingdaily/ping-daily-web/internal/envutil"
	"github.com/pingdaily/ping-daily-web/internal/log"
)

// Cookie names used by the dashboard
const (
	// ContextCookie carries the signed browser context id that scopes
	// pending authorizations and sessions
	ContextCookie = "pd_ctx"
	CSRFCookie    = "pd_csrf"
)

const csrfMaxAge = 12 * time.Hour

// SetContext sets the browser context cookie
func SetContext(w http.ResponseWriter, value string, maxAge time.Duration) {
	secure := !envutil.IsDev()
	http.SetCookie(w, &http.Cookie{
		Name:     ContextCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Context cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   secure,
		"sameSite": "Lax",
	})
}

// SetCSRF sets the CSRF token cookie. It is readable by the dashboard
// script, which echoes it back in the X-CSRF-Token header.
func SetCSRF(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: false,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(csrfMaxAge.Seconds()),
	})
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

func ClearContext(w http.ResponseWriter) {
	Clear(w, ContextCookie)
	log.LogTraceWithFields("cookie", "Context cookie cleared", nil)
}

func ClearCSRF(w http.ResponseWriter) {
	Clear(w, CSRFCookie)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

func GetContext(r *http.Request) (string, error) {
	return Get(r, ContextCookie)
}

func GetCSRF(r *http.Request) (string, error) {
	return Get(r, CSRFCookie)
}
