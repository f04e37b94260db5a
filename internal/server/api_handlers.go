package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/pingdaily/ping-daily-web/internal/channels"
	jsonwriter "github.com/pingdaily/ping-daily-web/internal/json"
	"github.com/pingdaily/ping-daily-web/internal/log"
	"github.com/pingdaily/ping-daily-web/internal/session"
)

const maxRelayBody = 1 << 20

// ChannelLister lists the channels a user belongs to
type ChannelLister interface {
	ListMemberChannels(ctx context.Context, accessToken string) ([]channels.Channel, error)
}

// BackendCaller makes authenticated calls to the standup backend
type BackendCaller interface {
	Call(ctx context.Context, scope string, sess *session.Session, endpoint string, opts session.CallOptions) (*http.Response, error)
}

// APIHandlers serves the authenticated data endpoints
type APIHandlers struct {
	channels ChannelLister
	backend  BackendCaller
}

func NewAPIHandlers(lister ChannelLister, backend BackendCaller) *APIHandlers {
	return &APIHandlers{channels: lister, backend: backend}
}

// ChannelsHandler lists the signed-in user's channels
func (h *APIHandlers) ChannelsHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Not signed in")
		return
	}

	list, err := h.channels.ListMemberChannels(r.Context(), sess.AccessToken)
	if err != nil {
		var apiErr *channels.APIError
		switch {
		case errors.As(err, &apiErr):
			jsonwriter.WriteError(w, http.StatusBadRequest, apiErr.Code, "Slack API error")
		case errors.Is(err, channels.ErrUpstream):
			log.LogErrorWithFields("api", "Channel listing unavailable", map[string]any{
				"request_id": RequestIDFromContext(r.Context()),
				"error":      err.Error(),
			})
			jsonwriter.WriteBadGateway(w, "Failed to fetch channels")
		default:
			log.LogErrorWithFields("api", "Channel listing failed", map[string]any{
				"request_id": RequestIDFromContext(r.Context()),
				"error":      err.Error(),
			})
			jsonwriter.WriteInternalServerError(w, "Internal server error")
		}
		return
	}

	_ = jsonwriter.Write(w, map[string]any{"channels": list})
}

// BackendHandler relays /api/backend/{path...} to the standup backend
// with the session's credentials attached
func (h *APIHandlers) BackendHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	bc, hasContext := BrowserContextFromContext(r.Context())
	if !ok || !hasContext {
		jsonwriter.WriteUnauthorized(w, "Not signed in")
		return
	}

	header := http.Header{}
	copyRequestHeaders(header, r.Header)
	if id := RequestIDFromContext(r.Context()); id != "" {
		header.Set(requestIDHeader, id)
	}

	var body io.Reader
	if r.Body != nil && r.Body != http.NoBody {
		body = http.MaxBytesReader(w, r.Body, maxRelayBody)
	}

	resp, err := h.backend.Call(r.Context(), bc.ID, sess, r.PathValue("path"), session.CallOptions{
		Method: r.Method,
		Query:  r.URL.Query(),
		Header: header,
		Body:   body,
	})
	if err != nil {
		writeBackendError(w, r, err)
		return
	}
	defer resp.Body.Close()

	for _, k := range []string{"Content-Type", "Cache-Control", "Etag", "Last-Modified"} {
		if v := resp.Header.Get(k); v != "" {
			w.Header().Set(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.LogWarnWithFields("api", "Relay response copy interrupted", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
	}
}

func writeBackendError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *session.APIError
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		jsonwriter.WriteSessionExpired(w, "Session expired, please sign in again")
	case errors.Is(err, session.ErrNoSession):
		jsonwriter.WriteUnauthorized(w, "Not signed in")
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status == 0 {
			status = http.StatusBadGateway
		}
		_ = jsonwriter.WriteResponse(w, status, apiErr)
	default:
		log.LogErrorWithFields("api", "Backend relay failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal server error")
	}
}
