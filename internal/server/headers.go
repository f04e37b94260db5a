package server

import "net/http"

// copyRequestHeaders copies relevant headers from the browser request to the backend request,
// excluding hop-by-hop headers (per RFC 9110), browser credentials and the
// identity headers the relay sets itself.
func copyRequestHeaders(dst, src http.Header) {
	for k, v := range src {
		switch http.CanonicalHeaderKey(k) {
		case "Connection", "Upgrade", "Host",
			"Keep-Alive", "Transfer-Encoding", "Te", "Trailer",
			"Proxy-Authorization", "Proxy-Authenticate",
			"Authorization", "Cookie", "X-Id-Token", csrfHeader,
			"Accept-Encoding":
			continue
		}
		dst[k] = v
	}
}
