package idtoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedToken is returned for anything that is not a three-segment
// compact token with a JSON payload
var ErrMalformedToken = errors.New("malformed identity token")

// Decode extracts the payload claims of a compact identity token.
// The signature segment is not checked; see Verifier for that.
func Decode(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	payload, err := decodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return &claims, nil
}

// decodeSegment accepts both url-safe and standard alphabets, padded or not
func decodeSegment(seg string) ([]byte, error) {
	seg = strings.NewReplacer("-", "+", "_", "/").Replace(seg)
	seg = strings.TrimRight(seg, "=")
	return base64.RawStdEncoding.DecodeString(seg)
}
