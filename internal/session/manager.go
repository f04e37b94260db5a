package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pingdaily/ping-daily-web/internal/idtoken"
	"github.com/pingdaily/ping-daily-web/internal/log"
	"github.com/pingdaily/ping-daily-web/internal/storage"
)

// Manager persists and restores sessions for browser contexts
type Manager struct {
	store        storage.Backend
	trackIDToken bool
}

type ManagerOption func(*Manager)

// WithIDTokenTracking keeps the raw identity token alongside the session
// so it can be forwarded to the backend
func WithIDTokenTracking(track bool) ManagerOption {
	return func(m *Manager) { m.trackIDToken = track }
}

func NewManager(store storage.Backend, opts ...ManagerOption) *Manager {
	m := &Manager{store: store, trackIDToken: true}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore reads the persisted session for scope. No session yields nil, nil.
// Unreadable session data is cleared and also yields nil, nil.
func (m *Manager) Restore(ctx context.Context, scope string) (*Session, error) {
	rawUser, err := m.store.Get(ctx, scope, storage.KeyUser)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, nil
	case errors.Is(err, storage.ErrCorrupt):
		return nil, m.discardCorrupt(ctx, scope, err)
	case err != nil:
		return nil, fmt.Errorf("reading session user: %w", err)
	}

	accessToken, err := m.store.Get(ctx, scope, storage.KeyAccessToken)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, m.discardCorrupt(ctx, scope, errors.New("access token missing"))
	case errors.Is(err, storage.ErrCorrupt):
		return nil, m.discardCorrupt(ctx, scope, err)
	case err != nil:
		return nil, fmt.Errorf("reading access token: %w", err)
	}

	var user idtoken.Identity
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return nil, m.discardCorrupt(ctx, scope, err)
	}
	if user.Subject == "" {
		return nil, m.discardCorrupt(ctx, scope, errors.New("identity has no subject"))
	}

	sess := &Session{User: user, AccessToken: accessToken}
	if m.trackIDToken {
		idTok, err := m.store.Get(ctx, scope, storage.KeyIDToken)
		switch {
		case err == nil:
			sess.IDToken = idTok
		case errors.Is(err, storage.ErrNotFound):
		case errors.Is(err, storage.ErrCorrupt):
			return nil, m.discardCorrupt(ctx, scope, err)
		default:
			return nil, fmt.Errorf("reading identity token: %w", err)
		}
	}
	return sess, nil
}

// discardCorrupt clears the session fields and reports only a failure to clear
func (m *Manager) discardCorrupt(ctx context.Context, scope string, cause error) error {
	log.LogWarnWithFields("session", "Discarding unreadable session", map[string]any{
		"error": cause.Error(),
	})
	if err := m.store.Delete(ctx, scope, storage.SessionKeys...); err != nil {
		return fmt.Errorf("clearing corrupt session: %w", err)
	}
	return nil
}

// Login persists a session for scope and returns it
func (m *Manager) Login(ctx context.Context, scope string, user idtoken.Identity, accessToken, idToken string) (*Session, error) {
	raw, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("encoding identity: %w", err)
	}

	if err := m.store.Set(ctx, scope, storage.KeyUser, string(raw)); err != nil {
		return nil, fmt.Errorf("storing identity: %w", err)
	}
	if err := m.store.Set(ctx, scope, storage.KeyAccessToken, accessToken); err != nil {
		return nil, fmt.Errorf("storing access token: %w", err)
	}

	sess := &Session{User: user, AccessToken: accessToken}
	if m.trackIDToken && idToken != "" {
		if err := m.store.Set(ctx, scope, storage.KeyIDToken, idToken); err != nil {
			return nil, fmt.Errorf("storing identity token: %w", err)
		}
		sess.IDToken = idToken
	}

	log.LogInfoWithFields("session", "Session established", map[string]any{
		"user_id": user.UserID,
		"team_id": user.TeamID,
	})
	return sess, nil
}

// Logout clears the session and any pending authorization. Calling it
// without a session does nothing.
func (m *Manager) Logout(ctx context.Context, scope string) error {
	keys := append(append([]storage.Key{}, storage.SessionKeys...), storage.PendingKeys...)
	if err := m.store.Delete(ctx, scope, keys...); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	log.LogDebugWithFields("session", "Session cleared", nil)
	return nil
}
