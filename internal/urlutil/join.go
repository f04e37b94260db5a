package urlutil

import (
	"net/url"
	"path"
	"strings"
)

// JoinPath appends path segments to base, keeping a trailing slash on the last one
func JoinPath(base string, paths ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	u.Path = path.Join(append([]string{u.Path}, paths...)...)
	if len(paths) > 0 && strings.HasSuffix(paths[len(paths)-1], "/") {
		u.Path += "/"
	}
	return u.String(), nil
}

// Relay builds the upstream URL for a relayed request: base joined with
// rel, carrying the original raw query. Paths escaping base are cleaned.
func Relay(base, rel, rawQuery string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	u.Path = path.Join(u.Path, path.Clean("/"+rel))
	u.RawQuery = rawQuery
	return u.String(), nil
}

// WithoutParams returns u with the named query parameters removed
func WithoutParams(u *url.URL, names ...string) *url.URL {
	out := *u
	q := out.Query()
	for _, n := range names {
		q.Del(n)
	}
	out.RawQuery = q.Encode()
	return &out
}
