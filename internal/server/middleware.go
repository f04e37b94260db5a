package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pingdaily/ping-daily-web/internal/cookie"
	"github.com/pingdaily/ping-daily-web/internal/crypto"
	jsonwriter "github.com/pingdaily/ping-daily-web/internal/json"
	"github.com/pingdaily/ping-daily-web/internal/log"
	"github.com/pingdaily/ping-daily-web/internal/session"
	"github.com/pingdaily/ping-daily-web/internal/urlutil"
)

const requestIDHeader = "X-Request-Id"

// query parameters never written to the request log
var redactedParams = []string{"code", "state", "nonce"}

type contextKey int

const (
	requestIDKey contextKey = iota
	browserContextKey
)

// MiddlewareFunc is a function that wraps an http.Handler
type MiddlewareFunc func(http.Handler) http.Handler

// ChainMiddleware chains multiple middleware functions
func ChainMiddleware(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	for _, mw := range middlewares {
		h = mw(h)
	}
	return h
}

// NewCORSMiddleware adds CORS headers to responses
func NewCORSMiddleware(allowedOrigins []string) MiddlewareFunc {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Only set CORS headers if origin is allowed
			if origin != "" && allowedMap[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			} else if len(allowedOrigins) == 0 {
				// If no allowed origins configured, allow all (development mode)
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Cache-Control, X-CSRF-Token")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriterDelegator wraps http.ResponseWriter to capture status and bytes written
// while properly delegating all optional interfaces through Unwrap
type responseWriterDelegator struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriterDelegator {
	return &responseWriterDelegator{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (r *responseWriterDelegator) Status() int {
	return r.status
}

func (r *responseWriterDelegator) BytesWritten() int {
	return r.written
}

func (r *responseWriterDelegator) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseWriterDelegator) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for interface detection
// with http.ResponseController
func (r *responseWriterDelegator) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Flush implements http.Flusher
func (r *responseWriterDelegator) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

var _ http.ResponseWriter = (*responseWriterDelegator)(nil)
var _ http.Flusher = (*responseWriterDelegator)(nil)

// RequestIDFromContext returns the id assigned by the logger middleware
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// NewLoggerMiddleware assigns a request id and logs each request. The
// query string is never logged since callbacks carry codes in it.
func NewLoggerMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(requestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			fields := map[string]any{
				"request_id":  requestID,
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       wrapped.BytesWritten(),
				"remote_addr": r.RemoteAddr,
			}
			if r.URL.RawQuery != "" {
				fields["query"] = urlutil.WithoutParams(r.URL, redactedParams...).RawQuery
			}
			log.LogInfoWithFields(prefix, "request", fields)
		})
	}
}

// NewRecoverMiddleware recovers from panics
func NewRecoverMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.LogErrorWithFields(prefix, "Recovered from panic", map[string]any{
						"request_id": RequestIDFromContext(r.Context()),
						"panic":      err,
					})
					jsonwriter.WriteInternalServerError(w, "Internal Server Error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// BrowserContextFromContext returns the browser context resolved by
// NewBrowserContextMiddleware
func BrowserContextFromContext(ctx context.Context) (session.BrowserContext, bool) {
	bc, ok := ctx.Value(browserContextKey).(session.BrowserContext)
	return bc, ok && bc.ID != ""
}

// NewBrowserContextMiddleware resolves the signed browser context cookie,
// issuing a fresh context when it is missing, tampered with or expired.
// Everything stored for a browser is scoped by the context id.
func NewBrowserContextMiddleware(signer *crypto.TokenSigner, maxAge time.Duration) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var bc session.BrowserContext
			raw, err := cookie.GetContext(r)
			if err == nil {
				if err := signer.Verify(raw, &bc); err != nil || bc.ID == "" {
					log.LogDebugWithFields("server", "Discarding invalid browser context cookie", map[string]any{
						"request_id": RequestIDFromContext(r.Context()),
					})
					bc = session.BrowserContext{}
				}
			}

			if bc.ID == "" {
				id, err := crypto.GenerateSecureToken()
				if err != nil {
					log.LogError("Failed to generate browser context id: %v", err)
					jsonwriter.WriteInternalServerError(w, "Internal Server Error")
					return
				}
				bc = session.BrowserContext{ID: id, Created: time.Now().UTC()}
				signed, err := signer.Sign(bc)
				if err != nil {
					log.LogError("Failed to sign browser context: %v", err)
					jsonwriter.WriteInternalServerError(w, "Internal Server Error")
					return
				}
				cookie.SetContext(w, signed, maxAge)
			}

			ctx := context.WithValue(r.Context(), browserContextKey, bc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewSessionMiddleware restores the session of the current browser context
// and rejects the request with 401 when there is none
func NewSessionMiddleware(sessions *session.Manager) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bc, ok := BrowserContextFromContext(r.Context())
			if !ok {
				jsonwriter.WriteUnauthorized(w, "Not signed in")
				return
			}

			sess, err := sessions.Restore(r.Context(), bc.ID)
			if err != nil {
				log.LogErrorWithFields("server", "Failed to restore session", map[string]any{
					"request_id": RequestIDFromContext(r.Context()),
					"error":      err.Error(),
				})
				jsonwriter.WriteInternalServerError(w, "Internal Server Error")
				return
			}
			if sess == nil {
				jsonwriter.WriteUnauthorized(w, "Not signed in")
				return
			}

			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
		})
	}
}
