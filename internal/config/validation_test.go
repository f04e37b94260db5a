package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasPath(issues []ValidationError, path string) bool {
	for _, i := range issues {
		if i.Path == path {
			return true
		}
	}
	return false
}

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantErrors   []string
		wantWarnings []string
	}{
		{
			name: "valid",
			body: `{"version": "v0.0.1-DEV_EDITION",
				"app": {"baseURL": "https://x.example.com", "addr": ":8080"},
				"auth": {"clientId": "1", "clientSecret": {"$env": "S"}, "cookieSecret": {"$env": "C"},
					"idToken": {"verify": true}},
				"backend": {"baseURL": "https://api.example.com"}}`,
		},
		{
			name:         "missing sections",
			body:         `{"version": "v0.0.1-DEV_EDITION"}`,
			wantErrors:   []string{"app", "auth"},
			wantWarnings: []string{"backend"},
		},
		{
			name: "bash style secret",
			body: `{"version": "v0.0.1-DEV_EDITION",
				"app": {"baseURL": "https://x.example.com", "addr": ":8080"},
				"auth": {"clientId": "1", "clientSecret": "$SLACK_SECRET", "cookieSecret": {"$env": "C"},
					"idToken": {"verify": true}},
				"backend": {}}`,
			wantErrors:   []string{"auth.clientSecret"},
			wantWarnings: []string{"auth.clientSecret"},
		},
		{
			name: "missing client id only warns",
			body: `{"version": "v0.0.1-DEV_EDITION",
				"app": {"baseURL": "https://x.example.com", "addr": ":8080"},
				"auth": {"cookieSecret": {"$env": "C"}, "idToken": {"verify": true}},
				"backend": {}}`,
			wantWarnings: []string{"auth.clientId"},
		},
		{
			name: "redis needs url and key",
			body: `{"version": "v0.0.1-DEV_EDITION",
				"app": {"baseURL": "https://x.example.com", "addr": ":8080"},
				"auth": {"cookieSecret": {"$env": "C"}, "idToken": {"verify": true}},
				"storage": {"kind": "redis"},
				"backend": {}}`,
			wantErrors:   []string{"storage.redisUrl", "auth.encryptionKey"},
			wantWarnings: []string{"auth.clientId"},
		},
		{
			name: "cleanup longer than ttl",
			body: `{"version": "v0.0.1-DEV_EDITION",
				"app": {"baseURL": "https://x.example.com", "addr": ":8080"},
				"auth": {"clientId": "1", "clientSecret": {"$env": "S"}, "cookieSecret": {"$env": "C"},
					"sessionTtl": "1h", "cleanupInterval": "2h", "idToken": {"verify": true}},
				"backend": {}}`,
			wantWarnings: []string{"auth"},
		},
		{
			name: "unverified tokens and no openid scope",
			body: `{"version": "v0.0.1-DEV_EDITION",
				"app": {"baseURL": "https://x.example.com", "addr": ":8080"},
				"auth": {"clientId": "1", "clientSecret": {"$env": "S"}, "cookieSecret": {"$env": "C"},
					"scopes": ["channels:read"], "idToken": {"verify": false}},
				"backend": {}}`,
			wantWarnings: []string{"auth.scopes", "auth.idToken.verify"},
		},
		{
			name:         "bad version",
			body:         `{"version": "1.0", "app": {"baseURL": "x", "addr": ":1"}, "auth": {"cookieSecret": {"$env": "C"}}, "backend": {}}`,
			wantErrors:   []string{"version"},
			wantWarnings: []string{"auth.clientId"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateFile(writeConfig(t, tt.body))
			require.NoError(t, err)

			assert.Len(t, result.Errors, len(tt.wantErrors), "errors: %+v", result.Errors)
			for _, p := range tt.wantErrors {
				assert.True(t, hasPath(result.Errors, p), "missing error at %s: %+v", p, result.Errors)
			}
			assert.Len(t, result.Warnings, len(tt.wantWarnings), "warnings: %+v", result.Warnings)
			for _, p := range tt.wantWarnings {
				assert.True(t, hasPath(result.Warnings, p), "missing warning at %s: %+v", p, result.Warnings)
			}
			assert.Equal(t, len(tt.wantErrors) == 0, result.IsValid())
		})
	}
}

func TestValidateFileInvalidJSON(t *testing.T) {
	result, err := ValidateFile(writeConfig(t, `{not json`))
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "invalid JSON")
}
