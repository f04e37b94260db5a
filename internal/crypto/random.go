package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Alphanumeric is the alphabet used for OAuth state and nonce values
const Alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// largest multiple of len(Alphanumeric) that fits in a byte
const acceptBelow = 256 - 256%len(Alphanumeric)

// GenerateRandomString returns exactly length characters drawn uniformly
// from Alphanumeric. Bytes at or above acceptBelow are discarded so every
// character is equally likely.
func GenerateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4+1)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= acceptBelow {
				continue
			}
			out = append(out, Alphanumeric[int(b)%len(Alphanumeric)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateSecureToken creates a cryptographically secure random token.
// Returns a base64 URL-encoded string suitable for browser context ids,
// CSRF nonces and cookie signing keys.
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
