package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pingdaily/ping-daily-web/internal/ioutil"
	"github.com/pingdaily/ping-daily-web/internal/log"
	"github.com/pingdaily/ping-daily-web/internal/urlutil"
)

// IDTokenHeader carries the identity token to the backend when tracked
const IDTokenHeader = "X-Id-Token"

// tokenExpiredCode is how the backend flags an expired credential in a non-401 body
const tokenExpiredCode = "TOKEN_EXPIRED"

// ErrSessionExpired means the backend rejected the session's credentials.
// The session has already been cleared when this is returned.
var ErrSessionExpired = errors.New("session expired")

// ErrNoSession is returned when a call is attempted without a session
var ErrNoSession = errors.New("no active session")

// APIError is a non-success response from the backend
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// CallOptions shapes an outbound request. The zero value is a GET.
type CallOptions struct {
	Method string
	Query  url.Values
	Header http.Header
	Body   io.Reader
}

// ExpiryObserver is told when a session is ended by a backend 401
type ExpiryObserver interface {
	SessionExpired()
}

// APIClient makes authenticated calls on behalf of a session
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	manager    *Manager
	observer   ExpiryObserver
}

func NewAPIClient(baseURL string, manager *Manager, httpClient *http.Client, observer ExpiryObserver) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		manager:    manager,
		observer:   observer,
	}
}

// Call sends a request to endpoint with the session's bearer token.
// A 401, or a body flagged TOKEN_EXPIRED, logs the browser context out and
// returns ErrSessionExpired. Other failures return *APIError. On success the
// caller owns the response body.
func (c *APIClient) Call(ctx context.Context, scope string, sess *Session, endpoint string, opts CallOptions) (*http.Response, error) {
	if sess == nil || sess.AccessToken == "" {
		return nil, ErrNoSession
	}

	rawQuery := ""
	if opts.Query != nil {
		rawQuery = opts.Query.Encode()
	}
	target, err := urlutil.Relay(c.baseURL, endpoint, rawQuery)
	if err != nil {
		return nil, fmt.Errorf("building backend url: %w", err)
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target, opts.Body)
	if err != nil {
		return nil, fmt.Errorf("building backend request: %w", err)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	if sess.IDToken != "" {
		req.Header.Set(IDTokenHeader, sess.IDToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Code: "NETWORK_ERROR", Message: err.Error()}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := parseAPIError(resp)
	if resp.StatusCode == http.StatusUnauthorized || apiErr.Code == tokenExpiredCode {
		return nil, c.expire(ctx, scope, apiErr)
	}

	log.LogWarnWithFields("session", "Backend call failed", map[string]any{
		"endpoint": endpoint,
		"status":   apiErr.Status,
		"code":     apiErr.Code,
	})
	return nil, apiErr
}

func (c *APIClient) expire(ctx context.Context, scope string, cause *APIError) error {
	log.LogInfoWithFields("session", "Backend rejected credentials, ending session", map[string]any{
		"status": cause.Status,
		"code":   cause.Code,
	})
	if c.observer != nil {
		c.observer.SessionExpired()
	}
	if err := c.manager.Logout(ctx, scope); err != nil {
		return errors.Join(ErrSessionExpired, err)
	}
	return ErrSessionExpired
}

func parseAPIError(resp *http.Response) *APIError {
	body := ioutil.Preview(resp.Body, 8<<10)
	apiErr := &APIError{Status: resp.StatusCode}

	// {"error":"...","code":"...","details":"..."} or {"error":{...}}
	var flat APIError
	if err := json.Unmarshal([]byte(body), &flat); err == nil && (flat.Message != "" || flat.Code != "") {
		flat.Status = resp.StatusCode
		return &flat
	}
	var nested struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &nested); err == nil && (nested.Error.Message != "" || nested.Error.Code != "") {
		nested.Error.Status = resp.StatusCode
		return &nested.Error
	}

	apiErr.Code = "UNKNOWN_ERROR"
	apiErr.Message = http.StatusText(resp.StatusCode)
	return apiErr
}
