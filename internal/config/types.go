package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Version prefix every config file must carry
const Version = "v0.0.1-DEV_EDITION"

// Defaults for settings the config file may leave out
const (
	DefaultSessionTTL      = 24 * time.Hour
	DefaultCleanupInterval = 10 * time.Minute
	DefaultBackendTimeout  = 30 * time.Second
	DefaultSlackAPIBaseURL = "https://slack.com"
	DefaultSlackTokenURL   = "https://slack.com/api/openid.connect.token"
	DefaultSlackJWKSURL    = "https://slack.com/openid/connect/keys"
	DefaultSlackIssuer     = "https://slack.com"
)

// Storage kinds
const (
	StorageMemory    = "memory"
	StorageRedis     = "redis"
	StorageFirestore = "firestore"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// AppConfig is the public face of the dashboard
type AppConfig struct {
	BaseURL        string   `json:"baseURL"`
	Addr           string   `json:"addr"`
	Name           string   `json:"name"`
	AllowedOrigins []string `json:"allowedOrigins"`
}

// IDTokenConfig controls signature and claim checks on identity tokens.
// When Verify is false tokens are only decoded.
type IDTokenConfig struct {
	Verify  bool   `json:"verify"`
	JWKSURL string `json:"jwksUrl"`
	Issuer  string `json:"issuer"`
}

// AuthConfig is the OAuth client configuration with resolved values
type AuthConfig struct {
	ClientID         string        `json:"clientId"`
	ClientSecret     Secret        `json:"clientSecret"`
	RedirectURI      string        `json:"redirectUri"`
	AuthorizationURL string        `json:"authorizationUrl,omitempty"`
	TokenURL         string        `json:"tokenUrl,omitempty"`
	Scopes           []string      `json:"scopes,omitempty"`
	AllowedDomains   []string      `json:"allowedDomains,omitempty"`
	CookieSecret     Secret        `json:"cookieSecret"`
	EncryptionKey    Secret        `json:"encryptionKey,omitempty"`
	SessionTTL       time.Duration `json:"sessionTtl"`
	CleanupInterval  time.Duration `json:"cleanupInterval"`
	// GatewayURL points at a separately deployed token exchange gateway.
	// Empty means codes are exchanged in process.
	GatewayURL string        `json:"gatewayUrl,omitempty"`
	IDToken    IDTokenConfig `json:"idToken"`
}

// StorageConfig selects where browser context state lives
type StorageConfig struct {
	Kind                string `json:"kind"`
	RedisURL            Secret `json:"redisUrl,omitempty"`
	GCPProject          string `json:"gcpProject,omitempty"`
	FirestoreDatabase   string `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string `json:"firestoreCollection,omitempty"`
}

// BackendConfig points at the standup backend API. An empty BaseURL
// disables the relay.
type BackendConfig struct {
	BaseURL string        `json:"baseURL"`
	Timeout time.Duration `json:"timeout"`
}

type SlackConfig struct {
	APIBaseURL string `json:"apiBaseURL"`
}

// Config represents the config structure with resolved values
type Config struct {
	Version string        `json:"version"`
	App     AppConfig     `json:"app"`
	Auth    AuthConfig    `json:"auth"`
	Storage StorageConfig `json:"storage"`
	Backend BackendConfig `json:"backend"`
	Slack   SlackConfig   `json:"slack"`
}

// ParseConfigValue resolves a JSON value that is either a plain string or
// an {"$env": "VAR"} reference
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}
