package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRandomString(t *testing.T) {
	for _, n := range []int{1, 16, 32, 100} {
		s, err := GenerateRandomString(n)
		require.NoError(t, err)
		assert.Len(t, s, n)
		for _, c := range s {
			assert.True(t, strings.ContainsRune(Alphanumeric, c), "unexpected character %q", c)
		}
	}
}

func TestGenerateRandomStringNonPositive(t *testing.T) {
	s, err := GenerateRandomString(0)
	require.NoError(t, err)
	assert.Empty(t, s)

	s, err = GenerateRandomString(-3)
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestGenerateRandomStringUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s, err := GenerateRandomString(16)
		require.NoError(t, err)
		assert.False(t, seen[s], "duplicate value %s", s)
		seen[s] = true
	}
}

func TestGenerateRandomStringCoversAlphabet(t *testing.T) {
	s, err := GenerateRandomString(20000)
	require.NoError(t, err)

	counts := make(map[rune]int)
	for _, c := range s {
		counts[c]++
	}
	assert.Len(t, counts, len(Alphanumeric))
	for c, n := range counts {
		// expected ~322 each
		assert.Greater(t, n, 150, "character %q underrepresented", c)
	}
}

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.Len(t, token, 43)

	token2, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}
