package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// parseOptional resolves raw into dst when present
func parseOptional(raw json.RawMessage, field string, dst *string) error {
	if raw == nil {
		return nil
	}
	v, err := ParseConfigValue(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = v
	return nil
}

func parseDuration(raw, field string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = d
	return nil
}

// UnmarshalJSON implements custom unmarshaling for AuthConfig
func (a *AuthConfig) UnmarshalJSON(data []byte) error {
	type rawAuth struct {
		ClientID         json.RawMessage `json:"clientId"`
		ClientSecret     json.RawMessage `json:"clientSecret"`
		RedirectURI      json.RawMessage `json:"redirectUri"`
		AuthorizationURL string          `json:"authorizationUrl"`
		TokenURL         string          `json:"tokenUrl"`
		Scopes           []string        `json:"scopes"`
		AllowedDomains   []string        `json:"allowedDomains"`
		CookieSecret     json.RawMessage `json:"cookieSecret"`
		EncryptionKey    json.RawMessage `json:"encryptionKey"`
		SessionTTL       string          `json:"sessionTtl"`
		CleanupInterval  string          `json:"cleanupInterval"`
		GatewayURL       json.RawMessage `json:"gatewayUrl"`
		IDToken          IDTokenConfig   `json:"idToken"`
	}

	var raw rawAuth
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.AuthorizationURL = raw.AuthorizationURL
	a.TokenURL = raw.TokenURL
	a.Scopes = raw.Scopes
	a.AllowedDomains = raw.AllowedDomains
	a.IDToken = raw.IDToken

	if err := parseDuration(raw.SessionTTL, "sessionTtl", &a.SessionTTL); err != nil {
		return err
	}
	if err := parseDuration(raw.CleanupInterval, "cleanupInterval", &a.CleanupInterval); err != nil {
		return err
	}

	if err := parseOptional(raw.ClientID, "clientId", &a.ClientID); err != nil {
		return err
	}
	if err := parseOptional(raw.RedirectURI, "redirectUri", &a.RedirectURI); err != nil {
		return err
	}
	if err := parseOptional(raw.GatewayURL, "gatewayUrl", &a.GatewayURL); err != nil {
		return err
	}

	secrets := []struct {
		raw   json.RawMessage
		field string
		dst   *Secret
	}{
		{raw.ClientSecret, "clientSecret", &a.ClientSecret},
		{raw.CookieSecret, "cookieSecret", &a.CookieSecret},
		{raw.EncryptionKey, "encryptionKey", &a.EncryptionKey},
	}
	for _, s := range secrets {
		var v string
		if err := parseOptional(s.raw, s.field, &v); err != nil {
			return err
		}
		*s.dst = Secret(v)
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	type rawStorage struct {
		Kind                string          `json:"kind"`
		RedisURL            json.RawMessage `json:"redisUrl"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase"`
		FirestoreCollection string          `json:"firestoreCollection"`
	}

	var raw rawStorage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.FirestoreCollection = raw.FirestoreCollection

	var redisURL string
	if err := parseOptional(raw.RedisURL, "redisUrl", &redisURL); err != nil {
		return err
	}
	s.RedisURL = Secret(redisURL)
	return parseOptional(raw.GCPProject, "gcpProject", &s.GCPProject)
}

// UnmarshalJSON implements custom unmarshaling for BackendConfig
func (b *BackendConfig) UnmarshalJSON(data []byte) error {
	type rawBackend struct {
		BaseURL json.RawMessage `json:"baseURL"`
		Timeout string          `json:"timeout"`
	}

	var raw rawBackend
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := parseDuration(raw.Timeout, "timeout", &b.Timeout); err != nil {
		return err
	}
	return parseOptional(raw.BaseURL, "baseURL", &b.BaseURL)
}
