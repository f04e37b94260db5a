package urlutil

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPath(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		paths []string
		want  string
	}{
		{"simple", "https://slack.com", []string{"api", "conversations.list"}, "https://slack.com/api/conversations.list"},
		{"base with slash", "https://slack.com/", []string{"/api/"}, "https://slack.com/api/"},
		{"base with path", "https://backend.example.com/v1", []string{"standups"}, "https://backend.example.com/v1/standups"},
		{"no paths", "https://example.com/x", nil, "https://example.com/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JoinPath(tt.base, tt.paths...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := JoinPath("://bad")
	assert.Error(t, err)
}

func TestRelay(t *testing.T) {
	got, err := Relay("https://backend.example.com/api", "standups/today", "team=T1")
	require.NoError(t, err)
	assert.Equal(t, "https://backend.example.com/api/standups/today?team=T1", got)

	got, err = Relay("https://backend.example.com/api", "../../admin", "")
	require.NoError(t, err)
	assert.Equal(t, "https://backend.example.com/api/admin", got)
}

func TestWithoutParams(t *testing.T) {
	u, err := url.Parse("https://app.example.com/?code=c&state=s&tab=summary")
	require.NoError(t, err)

	clean := WithoutParams(u, "code", "state")
	assert.Equal(t, "https://app.example.com/?tab=summary", clean.String())
	assert.Equal(t, "code=c&state=s&tab=summary", u.RawQuery)
}
