package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/pingdaily/ping-daily-web/internal/log"
)

// secret fields that must come from the environment, by section
var envOnlyFields = map[string][]string{
	"auth":    {"clientSecret", "cookieSecret", "encryptionKey"},
	"storage": {"redisUrl"},
}

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, Version) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig checks that secrets are env references before anything is resolved
func validateRawConfig(rawConfig map[string]any) error {
	for section, fields := range envOnlyFields {
		values, ok := rawConfig[section].(map[string]any)
		if !ok {
			continue
		}
		for _, name := range fields {
			value, exists := values[name]
			if !exists {
				continue
			}
			if _, isString := value.(string); isString {
				return fmt.Errorf("%s.%s must use environment variable reference for security", section, name)
			}
			if refMap, isMap := value.(map[string]any); isMap {
				if _, hasEnv := refMap["$env"]; !hasEnv {
					return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", section, name)
				}
			}
		}
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.App.Name == "" {
		c.App.Name = "ping-daily"
	}
	if c.Auth.RedirectURI == "" && c.App.BaseURL != "" {
		c.Auth.RedirectURI = strings.TrimRight(c.App.BaseURL, "/") + "/oauth/callback"
	}
	if c.Auth.TokenURL == "" {
		c.Auth.TokenURL = DefaultSlackTokenURL
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = DefaultSessionTTL
	}
	if c.Auth.CleanupInterval == 0 {
		c.Auth.CleanupInterval = DefaultCleanupInterval
	}
	if c.Auth.IDToken.JWKSURL == "" {
		c.Auth.IDToken.JWKSURL = DefaultSlackJWKSURL
	}
	if c.Auth.IDToken.Issuer == "" {
		c.Auth.IDToken.Issuer = DefaultSlackIssuer
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageMemory
	}
	if c.Storage.FirestoreCollection == "" {
		c.Storage.FirestoreCollection = "pingdaily_contexts"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultBackendTimeout
	}
	if c.Slack.APIBaseURL == "" {
		c.Slack.APIBaseURL = DefaultSlackAPIBaseURL
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.App.BaseURL == "" {
		return fmt.Errorf("app.baseURL is required")
	}
	if _, err := url.Parse(config.App.BaseURL); err != nil {
		return fmt.Errorf("app.baseURL is invalid: %w", err)
	}
	if config.App.Addr == "" {
		return fmt.Errorf("app.addr is required")
	}

	if err := validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := validateAuthConfig(&config.Auth, config.Storage.Kind); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	if config.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout cannot be negative")
	}
	if config.Backend.BaseURL == "" {
		log.LogWarn("backend.baseURL is not set; the backend relay is disabled")
	}
	return nil
}

func validateAuthConfig(auth *AuthConfig, storageKind string) error {
	// A missing client id is reported to the user at login time
	if auth.ClientID == "" {
		log.LogWarn("auth.clientId is not set; logins will fail until it is configured")
	} else if auth.ClientSecret == "" {
		return fmt.Errorf("clientSecret is required when clientId is set")
	}
	if auth.RedirectURI == "" {
		return fmt.Errorf("redirectUri is required")
	}
	if len(auth.CookieSecret) < 32 {
		return fmt.Errorf("cookieSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(auth.CookieSecret))
	}
	if auth.EncryptionKey != "" && len(auth.EncryptionKey) != 32 {
		return fmt.Errorf("encryptionKey must be exactly 32 characters (got %d). Generate with: openssl rand -base64 32 | head -c 32", len(auth.EncryptionKey))
	}
	if auth.EncryptionKey == "" && storageKind != StorageMemory {
		return fmt.Errorf("encryptionKey is required when using %s storage", storageKind)
	}
	if auth.SessionTTL < 0 {
		return fmt.Errorf("sessionTtl cannot be negative")
	}
	if auth.CleanupInterval < 0 {
		return fmt.Errorf("cleanupInterval cannot be negative")
	}
	if auth.SessionTTL > 0 && auth.CleanupInterval > auth.SessionTTL {
		log.LogWarn("Session cleanup interval is greater than session ttl")
	}
	if auth.IDToken.Verify && auth.IDToken.JWKSURL == "" {
		return fmt.Errorf("idToken.jwksUrl is required when idToken.verify is set")
	}
	return nil
}

func validateStorageConfig(s *StorageConfig) error {
	switch s.Kind {
	case StorageMemory:
	case StorageRedis:
		if s.RedisURL == "" {
			return fmt.Errorf("redisUrl is required when using redis storage")
		}
	case StorageFirestore:
		if s.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage kind %q (memory, redis or firestore)", s.Kind)
	}
	return nil
}
