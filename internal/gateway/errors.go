package gateway

import (
	"errors"
	"fmt"
)

// ErrMissingParameters is returned when any of code, client id, client
// secret or redirect uri is empty. Terminal, never retried.
var ErrMissingParameters = errors.New("missing required parameters")

// UpstreamError is a non-success HTTP response from the provider token endpoint
type UpstreamError struct {
	Status int
	// Code is the provider error code when the body carried one
	Code string
	Body string
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("token endpoint returned %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("token endpoint returned %d", e.Status)
}

// ProviderError is a successful HTTP response whose body reports failure
type ProviderError struct {
	Status int
	Code   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error: %s", e.Code)
}

// StatusOf returns the HTTP status the gateway surfaces for err
func StatusOf(err error) int {
	var upstream *UpstreamError
	var provider *ProviderError
	switch {
	case errors.Is(err, ErrMissingParameters):
		return 400
	case errors.As(err, &upstream):
		return upstream.Status
	case errors.As(err, &provider):
		return provider.Status
	default:
		return 500
	}
}

// CodeOf returns the provider error code carried by err, if any
func CodeOf(err error) string {
	var upstream *UpstreamError
	var provider *ProviderError
	switch {
	case errors.As(err, &upstream):
		return upstream.Code
	case errors.As(err, &provider):
		return provider.Code
	default:
		return ""
	}
}
