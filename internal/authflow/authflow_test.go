package authflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pingdaily/ping-daily-web/internal/gateway"
	"github.com/pingdaily/ping-daily-web/internal/metrics"
	"github.com/pingdaily/ping-daily-web/internal/session"
	"github.com/pingdaily/ping-daily-web/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const scope = "browser-ctx-1"

type mockExchanger struct {
	mock.Mock
}

func (m *mockExchanger) Exchange(ctx context.Context, req gateway.ExchangeRequest) (*gateway.TokenResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*gateway.TokenResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

type stubVerifier struct{ err error }

func (s stubVerifier) Verify(context.Context, string) error { return s.err }

var testConfig = Config{
	ClientID:     "X",
	ClientSecret: "server-held-secret",
	RedirectURI:  "https://app.example.com/oauth/callback",
}

type fixture struct {
	store     *storage.MemoryBackend
	sessions  *session.Manager
	exchanger *mockExchanger
	initiator *Initiator
	callback  *Callback
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T, cfg Config, opts ...CallbackOption) *fixture {
	t.Helper()
	f := &fixture{
		store:     storage.NewMemoryBackend(0),
		exchanger: &mockExchanger{},
		metrics:   metrics.New(),
	}
	f.sessions = session.NewManager(f.store)
	f.initiator = NewInitiator(cfg, f.store, f.metrics)
	opts = append([]CallbackOption{WithRecorder(f.metrics)}, opts...)
	f.callback = NewCallback(cfg, f.store, f.exchanger, f.sessions, opts...)
	return f
}

// begin starts a login and returns the persisted state and nonce
func (f *fixture) begin(t *testing.T) (string, string) {
	t.Helper()
	_, err := f.initiator.Begin(context.Background(), scope)
	require.NoError(t, err)
	state, err := f.store.Get(context.Background(), scope, storage.KeyOAuthState)
	require.NoError(t, err)
	nonce, err := f.store.Get(context.Background(), scope, storage.KeyOAuthNonce)
	require.NoError(t, err)
	return state, nonce
}

func (f *fixture) assertPending(t *testing.T, state, nonce string) {
	t.Helper()
	got, err := f.store.Get(context.Background(), scope, storage.KeyOAuthState)
	require.NoError(t, err)
	assert.Equal(t, state, got)
	got, err = f.store.Get(context.Background(), scope, storage.KeyOAuthNonce)
	require.NoError(t, err)
	assert.Equal(t, nonce, got)
}

func (f *fixture) assertNoSession(t *testing.T) {
	t.Helper()
	sess, err := f.sessions.Restore(context.Background(), scope)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func idToken(t *testing.T, nonce, email string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":                       "U123",
		"name":                      "Ana Silva",
		"email":                     email,
		"https://slack.com/team_id": "T999",
		"https://slack.com/user_id": "U123",
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	return signClaims(t, claims)
}

func signClaims(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unverified"))
	require.NoError(t, err)
	return token
}

// flakyStore fails the next Get or Delete calls with errStoreDown
type flakyStore struct {
	*storage.MemoryBackend

	mu          sync.Mutex
	failGets    int
	failDeletes int
}

var errStoreDown = errors.New("connection reset")

func (s *flakyStore) Get(ctx context.Context, scope string, key storage.Key) (string, error) {
	s.mu.Lock()
	fail := s.failGets > 0
	if fail {
		s.failGets--
	}
	s.mu.Unlock()
	if fail {
		return "", errStoreDown
	}
	return s.MemoryBackend.Get(ctx, scope, key)
}

func (s *flakyStore) Delete(ctx context.Context, scope string, keys ...storage.Key) error {
	s.mu.Lock()
	fail := s.failDeletes > 0
	if fail {
		s.failDeletes--
	}
	s.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return s.MemoryBackend.Delete(ctx, scope, keys...)
}

// withStore rebuilds the callback on top of store
func (f *fixture) withStore(store storage.Backend) {
	f.callback = NewCallback(testConfig, store, f.exchanger, f.sessions, WithRecorder(f.metrics))
}

func callbackQuery(code, state string) url.Values {
	return url.Values{"code": {code}, "state": {state}}
}

func TestBeginRequiresClientID(t *testing.T) {
	f := newFixture(t, Config{RedirectURI: "https://app.example.com/oauth/callback"})

	_, err := f.initiator.Begin(context.Background(), scope)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, "Please configure the Slack Client ID", PublicMessage(err))
}

func TestBeginBuildsAuthorizationURL(t *testing.T) {
	f := newFixture(t, testConfig)

	authURL, err := f.initiator.Begin(context.Background(), scope)
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "slack.com", u.Host)
	assert.Equal(t, "/openid/connect/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid profile email channels:read groups:read mpim:read", q.Get("scope"))
	assert.Equal(t, "X", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/oauth/callback", q.Get("redirect_uri"))

	state, err := f.store.Get(context.Background(), scope, storage.KeyOAuthState)
	require.NoError(t, err)
	assert.Equal(t, state, q.Get("state"))
	assert.Len(t, q.Get("state"), 16)
	assert.Len(t, q.Get("nonce"), 16)

	stored, err := f.store.Get(context.Background(), scope, storage.KeyOAuthNonce)
	require.NoError(t, err)
	assert.Equal(t, stored, q.Get("nonce"))
	assert.NotContains(t, authURL, "server-held-secret")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LoginsStarted))
}

func TestBeginOverwritesPendingAuthorization(t *testing.T) {
	f := newFixture(t, testConfig)
	s1, n1 := f.begin(t)
	s2, n2 := f.begin(t)

	assert.NotEqual(t, s1, s2)
	assert.NotEqual(t, n1, n2)
	f.assertPending(t, s2, n2)
}

func TestFullLoginScenario(t *testing.T) {
	f := newFixture(t, testConfig)
	state, nonce := f.begin(t)
	assert.Len(t, state, 16)
	assert.Len(t, nonce, 16)

	f.exchanger.On("Exchange", mock.Anything, gateway.ExchangeRequest{
		Code:         "code-1",
		ClientID:     "X",
		ClientSecret: "server-held-secret",
		RedirectURI:  "https://app.example.com/oauth/callback",
	}).Return(&gateway.TokenResponse{AccessToken: "AT1", TokenType: "Bearer", IDToken: idToken(t, nonce, "ana@example.com")}, nil).Once()

	sess, err := f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "Ana Silva", sess.User.Name)
	assert.Equal(t, "T999", sess.User.TeamID)
	assert.Equal(t, "AT1", sess.AccessToken)

	_, err = f.store.Get(context.Background(), scope, storage.KeyOAuthState)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.store.Get(context.Background(), scope, storage.KeyOAuthNonce)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	restored, err := f.sessions.Restore(context.Background(), scope)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, "Ana Silva", restored.User.Name)

	f.exchanger.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CallbackOutcomes.WithLabelValues(metrics.OutcomeSuccess)))
}

func TestStateMismatchNeverCallsGateway(t *testing.T) {
	f := newFixture(t, testConfig)
	state, nonce := f.begin(t)

	_, err := f.callback.Handle(context.Background(), scope, callbackQuery("code-1", "forged-state-xyz"))
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "Invalid session, please try again", PublicMessage(err))

	f.exchanger.AssertNotCalled(t, "Exchange", mock.Anything, mock.Anything)
	f.assertNoSession(t)
	f.assertPending(t, state, nonce)
}

func TestCallbackWithoutPendingState(t *testing.T) {
	f := newFixture(t, testConfig)

	_, err := f.callback.Handle(context.Background(), scope, callbackQuery("code-1", "anything"))
	assert.ErrorIs(t, err, ErrInvalidState)
	f.exchanger.AssertNotCalled(t, "Exchange", mock.Anything, mock.Anything)
}

func TestNonceMismatchCreatesNoSession(t *testing.T) {
	f := newFixture(t, testConfig)
	state, nonce := f.begin(t)

	f.exchanger.On("Exchange", mock.Anything, mock.Anything).
		Return(&gateway.TokenResponse{AccessToken: "AT1", IDToken: idToken(t, "some-other-nonce", "ana@example.com")}, nil).Once()

	_, err := f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
	assert.ErrorIs(t, err, ErrInvalidNonce)
	assert.Equal(t, "Invalid session, please try again", PublicMessage(err))

	f.exchanger.AssertNumberOfCalls(t, "Exchange", 1)
	f.assertNoSession(t)
	f.assertPending(t, state, nonce)
}

func TestNonceAbsentFromToken(t *testing.T) {
	f := newFixture(t, testConfig)
	state, _ := f.begin(t)

	f.exchanger.On("Exchange", mock.Anything, mock.Anything).
		Return(&gateway.TokenResponse{AccessToken: "AT1", IDToken: idToken(t, "", "ana@example.com")}, nil).Once()

	_, err := f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
	assert.ErrorIs(t, err, ErrInvalidNonce)
	f.assertNoSession(t)
}

func TestGatewayInvalidGrant(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	t.Cleanup(provider.Close)

	store := storage.NewMemoryBackend(0)
	sessions := session.NewManager(store)
	initiator := NewInitiator(testConfig, store, nil)
	cb := NewCallback(testConfig, store, gateway.New(provider.URL), sessions)

	_, err := initiator.Begin(context.Background(), scope)
	require.NoError(t, err)
	state, _ := store.Get(context.Background(), scope, storage.KeyOAuthState)
	nonce, _ := store.Get(context.Background(), scope, storage.KeyOAuthNonce)

	_, err = cb.Handle(context.Background(), scope, callbackQuery("used-code", state))
	var exErr *TokenExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, http.StatusBadRequest, exErr.Status)
	assert.Equal(t, "invalid_grant", exErr.Code)
	assert.Equal(t, "Failed to exchange code for token", PublicMessage(err))

	sess, err := sessions.Restore(context.Background(), scope)
	require.NoError(t, err)
	assert.Nil(t, sess)

	got, err := store.Get(context.Background(), scope, storage.KeyOAuthState)
	require.NoError(t, err)
	assert.Equal(t, state, got)
	got, err = store.Get(context.Background(), scope, storage.KeyOAuthNonce)
	require.NoError(t, err)
	assert.Equal(t, nonce, got)
}

func TestProviderErrorOnRedirect(t *testing.T) {
	f := newFixture(t, testConfig)
	state, nonce := f.begin(t)

	_, err := f.callback.Handle(context.Background(), scope, url.Values{"error": {"access_denied"}, "state": {state}})
	var pErr *ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "access_denied", pErr.Code)
	assert.NotEmpty(t, pErr.Description)
	assert.True(t, pErr.Declined())
	assert.Equal(t, "OAuth Error: access_denied", PublicMessage(err))

	f.exchanger.AssertNotCalled(t, "Exchange", mock.Anything, mock.Anything)
	f.assertPending(t, state, nonce)
}

func TestProviderErrorDescriptions(t *testing.T) {
	tests := []struct {
		name        string
		query       url.Values
		wantDesc    string
		wantDecline bool
	}{
		{"provider code", url.Values{"error": {"invalid_code"}}, "The authorization code is invalid or has expired.", false},
		{"unknown code", url.Values{"error": {"brand_new_code"}}, `The identity provider returned "brand_new_code".`, false},
		{"given description wins", url.Values{"error": {"access_denied"}, "error_description": {"User cancelled"}}, "User cancelled", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig)

			_, err := f.callback.Handle(context.Background(), scope, tt.query)
			var pErr *ProviderError
			require.ErrorAs(t, err, &pErr)
			assert.Equal(t, tt.query.Get("error"), pErr.Code)
			assert.Equal(t, tt.wantDesc, pErr.Description)
			assert.Equal(t, tt.wantDecline, pErr.Declined())
		})
	}
}

func TestNotACallback(t *testing.T) {
	f := newFixture(t, testConfig)

	for _, q := range []url.Values{
		{},
		{"code": {"c"}},
		{"state": {"s"}},
	} {
		_, err := f.callback.Handle(context.Background(), scope, q)
		assert.ErrorIs(t, err, ErrNotACallback)
	}
	f.exchanger.AssertNotCalled(t, "Exchange", mock.Anything, mock.Anything)
}

func TestMissingAndMalformedIDToken(t *testing.T) {
	tests := []struct {
		name    string
		idToken string
		want    error
	}{
		{"missing", "", ErrMissingIDToken},
		{"two segments", "a.b", ErrMalformedToken},
		{"garbage payload", "a.!!!.c", ErrMalformedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig)
			state, nonce := f.begin(t)
			f.exchanger.On("Exchange", mock.Anything, mock.Anything).
				Return(&gateway.TokenResponse{AccessToken: "AT1", IDToken: tt.idToken}, nil).Once()

			_, err := f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
			assert.ErrorIs(t, err, tt.want)
			f.assertNoSession(t)
			f.assertPending(t, state, nonce)
		})
	}
}

func TestIDTokenWithoutSubject(t *testing.T) {
	f := newFixture(t, testConfig)
	state, nonce := f.begin(t)
	token := signClaims(t, jwt.MapClaims{
		"name":  "Ana Silva",
		"email": "ana@example.com",
		"nonce": nonce,
	})
	f.exchanger.On("Exchange", mock.Anything, mock.Anything).
		Return(&gateway.TokenResponse{AccessToken: "AT1", IDToken: token}, nil).Once()

	sess, err := f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
	assert.ErrorIs(t, err, ErrMalformedToken)
	assert.Nil(t, sess)
	assert.Equal(t, "Sign-in failed, please try again", PublicMessage(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CallbackOutcomes.WithLabelValues(metrics.OutcomeMalformed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.CallbackOutcomes.WithLabelValues(metrics.OutcomeSuccess)))

	_, err = f.store.Get(context.Background(), scope, storage.KeyUser)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	f.assertNoSession(t)
	f.assertPending(t, state, nonce)
}

func TestStorageErrorBeforeExchangeKeepsCodeUsable(t *testing.T) {
	f := newFixture(t, testConfig)
	state, nonce := f.begin(t)
	store := &flakyStore{MemoryBackend: f.store, failGets: 1}
	f.withStore(store)
	f.exchanger.On("Exchange", mock.Anything, mock.Anything).
		Return(&gateway.TokenResponse{AccessToken: "AT1", IDToken: idToken(t, nonce, "ana@example.com")}, nil).Once()

	_, err := f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
	require.ErrorIs(t, err, errStoreDown)
	f.exchanger.AssertNotCalled(t, "Exchange", mock.Anything, mock.Anything)
	f.assertPending(t, state, nonce)

	sess, err := f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "U123", sess.User.Subject)
	f.exchanger.AssertNumberOfCalls(t, "Exchange", 1)
}

func TestFailedExchangeUsesUpCode(t *testing.T) {
	f := newFixture(t, testConfig)
	state, _ := f.begin(t)
	f.exchanger.On("Exchange", mock.Anything, mock.Anything).
		Return(nil, &gateway.ProviderError{Status: 400, Code: "invalid_code"}).Once()

	_, err := f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
	var exErr *TokenExchangeError
	require.ErrorAs(t, err, &exErr)

	_, err = f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
	assert.ErrorIs(t, err, ErrAlreadyHandled)
	f.exchanger.AssertNumberOfCalls(t, "Exchange", 1)
}

func TestPendingCleanupFailureKeepsSession(t *testing.T) {
	f := newFixture(t, testConfig)
	state, nonce := f.begin(t)
	f.withStore(&flakyStore{MemoryBackend: f.store, failDeletes: 1})
	f.exchanger.On("Exchange", mock.Anything, mock.Anything).
		Return(&gateway.TokenResponse{AccessToken: "AT1", IDToken: idToken(t, nonce, "ana@example.com")}, nil).Once()

	sess, err := f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CallbackOutcomes.WithLabelValues(metrics.OutcomeSuccess)))

	restored, err := f.sessions.Restore(context.Background(), scope)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, "U123", restored.User.Subject)
	assert.Equal(t, "AT1", restored.AccessToken)
}

func TestVerifierRejection(t *testing.T) {
	f := newFixture(t, testConfig, WithVerifier(stubVerifier{err: ErrUnverifiedToken}))
	state, nonce := f.begin(t)
	f.exchanger.On("Exchange", mock.Anything, mock.Anything).
		Return(&gateway.TokenResponse{AccessToken: "AT1", IDToken: idToken(t, nonce, "ana@example.com")}, nil).Once()

	_, err := f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
	assert.ErrorIs(t, err, ErrUnverifiedToken)
	f.assertNoSession(t)
}

func TestAllowedDomains(t *testing.T) {
	cfg := testConfig
	cfg.AllowedDomains = []string{"pingdaily.com"}
	f := newFixture(t, cfg)
	state, nonce := f.begin(t)
	f.exchanger.On("Exchange", mock.Anything, mock.Anything).
		Return(&gateway.TokenResponse{AccessToken: "AT1", IDToken: idToken(t, nonce, "ana@example.com")}, nil).Once()

	_, err := f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
	assert.ErrorIs(t, err, ErrAccessDenied)
	f.assertNoSession(t)
}

func TestSameCodeIsHandledOnce(t *testing.T) {
	f := newFixture(t, testConfig)
	state, nonce := f.begin(t)
	f.exchanger.On("Exchange", mock.Anything, mock.Anything).
		Return(&gateway.TokenResponse{AccessToken: "AT1", IDToken: idToken(t, nonce, "ana@example.com")}, nil).Once()

	_, err := f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
	require.NoError(t, err)

	_, err = f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
	assert.ErrorIs(t, err, ErrAlreadyHandled)
	f.exchanger.AssertNumberOfCalls(t, "Exchange", 1)

	sess, err := f.sessions.Restore(context.Background(), scope)
	require.NoError(t, err)
	assert.NotNil(t, sess)
}

func TestConcurrentDuplicateCallbacks(t *testing.T) {
	f := newFixture(t, testConfig)
	state, nonce := f.begin(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.exchanger.On("Exchange", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(&gateway.TokenResponse{AccessToken: "AT1", IDToken: idToken(t, nonce, "ana@example.com")}, nil).Once()

	const n = 8
	results := make([]error, n)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, results[0] = f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
	}()
	<-entered

	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.callback.Handle(context.Background(), scope, callbackQuery("code-1", state))
		}(i)
	}
	close(release)
	wg.Wait()

	assert.NoError(t, results[0])
	for i := 1; i < n; i++ {
		assert.ErrorIs(t, results[i], ErrAlreadyHandled)
	}
	f.exchanger.AssertNumberOfCalls(t, "Exchange", 1)
}

func TestProcessedCodesAreBounded(t *testing.T) {
	f := newFixture(t, testConfig)
	for i := 0; i < processedCodesLimit+10; i++ {
		f.callback.remember("code-" + strconv.Itoa(i))
	}
	assert.LessOrEqual(t, len(f.callback.processed), processedCodesLimit)
	assert.Len(t, f.callback.order, len(f.callback.processed))
}

func TestPublicMessageNeverLeaksDetail(t *testing.T) {
	exErr := &TokenExchangeError{Status: 400, Code: "invalid_grant", Err: errors.New("token endpoint returned 400: invalid_grant")}
	assert.NotContains(t, PublicMessage(exErr), "invalid_grant")
	assert.Equal(t, PublicMessage(ErrInvalidState), PublicMessage(ErrInvalidNonce))
	assert.Equal(t, "", PublicMessage(nil))
	assert.NotEmpty(t, PublicMessage(errors.New("storage unreachable")))
}
