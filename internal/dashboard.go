package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pingdaily/ping-daily-web/internal/authflow"
	"github.com/pingdaily/ping-daily-web/internal/channels"
	"github.com/pingdaily/ping-daily-web/internal/config"
	"github.com/pingdaily/ping-daily-web/internal/crypto"
	"github.com/pingdaily/ping-daily-web/internal/gateway"
	"github.com/pingdaily/ping-daily-web/internal/idtoken"
	"github.com/pingdaily/ping-daily-web/internal/log"
	"github.com/pingdaily/ping-daily-web/internal/metrics"
	"github.com/pingdaily/ping-daily-web/internal/server"
	"github.com/pingdaily/ping-daily-web/internal/session"
	"github.com/pingdaily/ping-daily-web/internal/storage"
)

// csrfTTL matches the lifetime of the CSRF cookie
const csrfTTL = 12 * time.Hour

// Dashboard represents the complete standup dashboard application
type Dashboard struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
	storage    storage.Backend
	cleanup    *storage.CleanupManager
	metrics    *metrics.Metrics
}

// NewDashboard creates the application with all dependencies built
func NewDashboard(ctx context.Context, cfg config.Config) (*Dashboard, error) {
	log.LogInfoWithFields("dashboard", "Building dashboard application", map[string]any{
		"baseURL": cfg.App.BaseURL,
		"storage": cfg.Storage.Kind,
	})

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	var cleanup *storage.CleanupManager
	if sweeper, ok := store.(storage.Sweeper); ok && cfg.Auth.CleanupInterval > 0 {
		cleanup = storage.NewCleanupManager(sweeper, cfg.Auth.CleanupInterval)
	}

	m := metrics.New()

	exchanger, gw := setupGateway(cfg, m)

	verifier, err := setupVerifier(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to setup identity token verification: %w", err)
	}

	handler := buildHTTPHandler(cfg, store, m, exchanger, gw, verifier)

	return &Dashboard{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.App.Addr),
		storage:    store,
		cleanup:    cleanup,
		metrics:    m,
	}, nil
}

// Handler returns the fully routed handler, mostly for tests
func (d *Dashboard) Handler() http.Handler {
	return d.handler
}

// Run starts and manages the application lifecycle
func (d *Dashboard) Run() error {
	log.LogInfoWithFields("dashboard", "Starting dashboard", map[string]any{
		"addr": d.config.App.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		if err := d.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if d.cleanup != nil {
		d.cleanup.Start(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("dashboard", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("dashboard", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("dashboard", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": "30s",
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	stopErr := d.httpServer.Stop(shutdownCtx)
	if stopErr != nil {
		log.LogErrorWithFields("dashboard", "HTTP server shutdown error", map[string]any{
			"error": stopErr.Error(),
		})
	}

	d.Close()

	log.LogInfoWithFields("dashboard", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return stopErr
}

// Close stops background work and releases storage
func (d *Dashboard) Close() {
	if d.cleanup != nil {
		d.cleanup.Stop()
	}
	if err := d.storage.Close(); err != nil {
		log.LogWarnWithFields("dashboard", "Failed to close storage", map[string]any{
			"error": err.Error(),
		})
	}
}

// setupStorage opens the configured backend. Tokens are encrypted at rest
// whenever an encryption key is configured.
func setupStorage(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	opts := storage.Options{
		Kind:                storage.Kind(cfg.Storage.Kind),
		TTL:                 cfg.Auth.SessionTTL,
		RedisURL:            string(cfg.Storage.RedisURL),
		GCPProject:          cfg.Storage.GCPProject,
		FirestoreDatabase:   cfg.Storage.FirestoreDatabase,
		FirestoreCollection: cfg.Storage.FirestoreCollection,
	}

	if cfg.Auth.EncryptionKey != "" {
		encryptor, err := crypto.NewEncryptor([]byte(cfg.Auth.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		opts.Encryptor = encryptor
	}

	store, err := storage.Open(ctx, opts)
	if err != nil {
		return nil, err
	}

	log.LogInfoWithFields("storage", "Storage ready", map[string]any{
		"kind":      cfg.Storage.Kind,
		"encrypted": opts.Encryptor != nil,
		"ttl":       cfg.Auth.SessionTTL.String(),
	})
	return store, nil
}

// setupGateway returns the exchanger the callback uses, and the in-process
// gateway when there is one to expose over HTTP
func setupGateway(cfg config.Config, m *metrics.Metrics) (gateway.Exchanger, *gateway.Gateway) {
	if cfg.Auth.GatewayURL != "" {
		log.LogInfoWithFields("dashboard", "Using remote token exchange gateway", map[string]any{
			"url": cfg.Auth.GatewayURL,
		})
		return gateway.NewClient(cfg.Auth.GatewayURL, nil), nil
	}
	gw := gateway.New(cfg.Auth.TokenURL, gateway.WithObserver(m))
	return gw, gw
}

func setupVerifier(ctx context.Context, cfg config.Config) (*idtoken.Verifier, error) {
	if !cfg.Auth.IDToken.Verify {
		return nil, nil
	}
	return idtoken.NewVerifier(ctx, idtoken.VerifierConfig{
		JWKSURL:  cfg.Auth.IDToken.JWKSURL,
		Issuer:   cfg.Auth.IDToken.Issuer,
		Audience: cfg.Auth.ClientID,
	})
}

// buildHTTPHandler creates the complete HTTP handler with all routing and middleware
func buildHTTPHandler(
	cfg config.Config,
	store storage.Backend,
	m *metrics.Metrics,
	exchanger gateway.Exchanger,
	gw *gateway.Gateway,
	verifier *idtoken.Verifier,
) http.Handler {
	mux := http.NewServeMux()

	authCfg := authflow.Config{
		ClientID:         cfg.Auth.ClientID,
		ClientSecret:     string(cfg.Auth.ClientSecret),
		RedirectURI:      cfg.Auth.RedirectURI,
		AuthorizationURL: cfg.Auth.AuthorizationURL,
		Scopes:           cfg.Auth.Scopes,
		AllowedDomains:   cfg.Auth.AllowedDomains,
	}

	sessions := session.NewManager(store)
	callbackOpts := []authflow.CallbackOption{authflow.WithRecorder(m)}
	if verifier != nil {
		callbackOpts = append(callbackOpts, authflow.WithVerifier(verifier))
	}
	initiator := authflow.NewInitiator(authCfg, store, m)
	callback := authflow.NewCallback(authCfg, store, exchanger, sessions, callbackOpts...)

	cookieSecret := []byte(cfg.Auth.CookieSecret)
	signer := crypto.NewTokenSigner(cookieSecret, cfg.Auth.SessionTTL)
	authHandlers := server.NewAuthHandlers(
		cfg.App.Name,
		initiator,
		callback,
		sessions,
		crypto.NewCSRFProtection(cookieSecret, csrfTTL),
		m,
	)

	var backend server.BackendCaller
	if cfg.Backend.BaseURL != "" {
		backend = session.NewAPIClient(cfg.Backend.BaseURL, sessions, &http.Client{Timeout: cfg.Backend.Timeout}, m)
	}
	apiHandlers := server.NewAPIHandlers(channels.NewClient(cfg.Slack.APIBaseURL, nil), backend)

	withContext := server.NewBrowserContextMiddleware(&signer, cfg.Auth.SessionTTL)
	withSession := server.NewSessionMiddleware(sessions)

	healthChecks := map[string]server.HealthChecker{}
	if hc, ok := store.(server.HealthChecker); ok && cfg.Storage.Kind != config.StorageMemory {
		healthChecks["storage"] = hc
	}
	mux.Handle("GET /health", server.NewHealthHandler(healthChecks))
	mux.Handle("GET /metrics", m.Handler())

	mux.Handle("GET /{$}", withContext(http.HandlerFunc(authHandlers.HomeHandler)))
	mux.Handle("GET /auth/login", withContext(http.HandlerFunc(authHandlers.LoginHandler)))
	mux.Handle("GET /oauth/callback", withContext(http.HandlerFunc(authHandlers.CallbackHandler)))
	mux.Handle("POST /auth/logout", withContext(http.HandlerFunc(authHandlers.LogoutHandler)))
	mux.Handle("GET /auth/me", server.ChainMiddleware(http.HandlerFunc(authHandlers.MeHandler), withSession, withContext))
	mux.HandleFunc("GET /auth/csrf", authHandlers.CSRFHandler)

	if gw != nil {
		mux.Handle("POST /api/oauth/token", gateway.NewHandler(gw))
	}

	mux.Handle("GET /api/slack/channels", server.ChainMiddleware(http.HandlerFunc(apiHandlers.ChannelsHandler), withSession, withContext))
	if backend != nil {
		mux.Handle("/api/backend/{path...}", server.ChainMiddleware(http.HandlerFunc(apiHandlers.BackendHandler), withSession, withContext))
	}

	log.LogInfoWithFields("server", "Dashboard routes registered", map[string]any{
		"gateway":  gw != nil,
		"relay":    backend != nil,
		"verifyID": verifier != nil,
	})

	// Recovery is outermost so panics in the logger are caught too
	return server.ChainMiddleware(mux,
		server.NewCORSMiddleware(cfg.App.AllowedOrigins),
		server.NewLoggerMiddleware("http"),
		server.NewRecoverMiddleware("http"),
	)
}
