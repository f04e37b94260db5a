package server

import (
	"net/http"
	"net/http/httptest"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pingdaily/ping-daily-web/internal/authflow"
	"github.com/pingdaily/ping-daily-web/internal/channels"
	"github.com/pingdaily/ping-daily-web/internal/crypto"
	"github.com/pingdaily/ping-daily-web/internal/gateway"
	"github.com/pingdaily/ping-daily-web/internal/metrics"
	"github.com/pingdaily/ping-daily-web/internal/session"
	"github.com/pingdaily/ping-daily-web/internal/storage"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte(strings.Repeat("k", 32))

// testApp wires the real handlers against an in-memory store and a fake provider
type testApp struct {
	server   *httptest.Server
	provider *httptest.Server
	backend  *httptest.Server
	store    *storage.MemoryBackend
	sessions *session.Manager
	metrics  *metrics.Metrics

	// nonce sent on the last authorization redirect
	nonce string
	// id token nonce override; empty echoes nonce
	forceNonce string
}

func newTestApp(t *testing.T, clientID string, backend http.Handler) *testApp {
	t.Helper()
	// cookies must not be Secure for the plain http test server
	t.Setenv("PINGDAILY_ENV", "development")

	app := &testApp{
		store:   storage.NewMemoryBackend(0),
		metrics: metrics.New(),
	}
	app.sessions = session.NewManager(app.store)

	app.provider = httptest.NewServer(http.HandlerFunc(app.serveProvider))
	t.Cleanup(app.provider.Close)

	if backend == nil {
		backend = http.NotFoundHandler()
	}
	app.backend = httptest.NewServer(backend)
	t.Cleanup(app.backend.Close)

	mux := http.NewServeMux()
	app.server = httptest.NewServer(ChainMiddleware(mux, NewLoggerMiddleware("test")))
	t.Cleanup(app.server.Close)

	cfg := authflow.Config{
		ClientID:         clientID,
		ClientSecret:     "server-secret",
		RedirectURI:      app.server.URL + "/oauth/callback",
		AuthorizationURL: app.provider.URL + "/openid/connect/authorize",
	}
	gw := gateway.New(app.provider.URL+"/api/openid.connect.token", gateway.WithObserver(app.metrics))
	initiator := authflow.NewInitiator(cfg, app.store, app.metrics)
	callback := authflow.NewCallback(cfg, app.store, gw, app.sessions, authflow.WithRecorder(app.metrics))

	signer := crypto.NewTokenSigner(testSigningKey, 0)
	auth := NewAuthHandlers("Ping Daily", initiator, callback, app.sessions, crypto.NewCSRFProtection(testSigningKey, time.Hour), app.metrics)
	api := NewAPIHandlers(
		channels.NewClient(app.provider.URL, nil),
		session.NewAPIClient(app.backend.URL, app.sessions, nil, app.metrics),
	)

	withContext := NewBrowserContextMiddleware(&signer, time.Hour)
	withSession := NewSessionMiddleware(app.sessions)

	mux.Handle("GET /auth/login", withContext(http.HandlerFunc(auth.LoginHandler)))
	mux.Handle("GET /oauth/callback", withContext(http.HandlerFunc(auth.CallbackHandler)))
	mux.Handle("POST /auth/logout", withContext(http.HandlerFunc(auth.LogoutHandler)))
	mux.Handle("GET /auth/me", ChainMiddleware(http.HandlerFunc(auth.MeHandler), withSession, withContext))
	mux.Handle("GET /auth/csrf", http.HandlerFunc(auth.CSRFHandler))
	mux.Handle("GET /api/slack/channels", ChainMiddleware(http.HandlerFunc(api.ChannelsHandler), withSession, withContext))
	mux.Handle("/api/backend/{path...}", ChainMiddleware(http.HandlerFunc(api.BackendHandler), withSession, withContext))
	mux.Handle("GET /{$}", withContext(http.HandlerFunc(auth.HomeHandler)))

	return app
}

// serveProvider fakes the provider's token and conversations endpoints
func (a *testApp) serveProvider(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/openid.connect.token":
		_ = r.ParseForm()
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		nonce := a.forceNonce
		if nonce == "" {
			nonce = a.nonce
		}
		token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":                       "U1",
			"name":                      "Ana Silva",
			"email":                     "ana@example.com",
			"nonce":                     nonce,
			"https://slack.com/team_id": "T1",
			"https://slack.com/user_id": "U1",
		}).SignedString([]byte("provider"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"access_token":"AT1","token_type":"Bearer","id_token":"` + token + `"}`))
	case "/api/conversations.list":
		if r.Header.Get("Authorization") != "Bearer AT1" {
			_, _ = w.Write([]byte(`{"ok":false,"error":"invalid_auth"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"channels":[{"id":"C1","name":"standup","is_member":true,"num_members":4}]}`))
	default:
		http.NotFound(w, r)
	}
}

// browser returns a client with a cookie jar that does not follow redirects
func (a *testApp) browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// login runs the authorization redirect and returns the state sent to the provider
func (a *testApp) login(t *testing.T, c *http.Client) string {
	t.Helper()
	resp, err := c.Get(a.server.URL + "/auth/login")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	a.nonce = loc.Query().Get("nonce")
	return loc.Query().Get("state")
}

func (a *testApp) callback(t *testing.T, c *http.Client, code, state string) *http.Response {
	t.Helper()
	q := url.Values{"code": {code}, "state": {state}}
	resp, err := c.Get(a.server.URL + "/oauth/callback?" + q.Encode())
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
