package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pingdaily/ping-daily-web/internal/ioutil"
	jsonwriter "github.com/pingdaily/ping-daily-web/internal/json"
	"github.com/pingdaily/ping-daily-web/internal/log"
	"github.com/pingdaily/ping-daily-web/internal/oauth"
)

const maxRequestBody = 16 << 10

// Handler exposes an Exchanger as POST /api/oauth/token
type Handler struct {
	exchanger Exchanger
}

func NewHandler(exchanger Exchanger) *Handler {
	return &Handler{exchanger: exchanger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteMethodNotAllowed(w)
		return
	}

	body, err := ioutil.ReadAtMost(r.Body, maxRequestBody)
	if err != nil {
		jsonwriter.WriteBadRequest(w, "Request body too large or unreadable")
		return
	}

	var req ExchangeRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			jsonwriter.WriteBadRequest(w, "Invalid JSON body")
			return
		}
	}

	resp, err := h.exchanger.Exchange(r.Context(), req)
	if err != nil {
		writeExchangeError(w, err)
		return
	}

	_ = jsonwriter.Write(w, resp)
}

func writeExchangeError(w http.ResponseWriter, err error) {
	var (
		upstream *UpstreamError
		provider *ProviderError
	)
	switch {
	case errors.Is(err, ErrMissingParameters):
		jsonwriter.WriteError(w, http.StatusBadRequest, "missing_parameters", "Missing required parameters")
	case errors.As(err, &upstream):
		log.LogErrorWithFields("gateway", "Token endpoint rejected exchange", map[string]any{
			"status": upstream.Status,
			"code":   upstream.Code,
			"body":   upstream.Body,
		})
		status := upstream.Status
		if status == 0 {
			status = http.StatusBadGateway
		}
		jsonwriter.WriteError(w, status, "token_exchange_failed", "Failed to exchange code for token")
	case errors.As(err, &provider):
		oauthErr := oauth.NewOAuthError(oauth.ErrorCode(provider.Code), "")
		log.LogErrorWithFields("gateway", "Provider reported exchange failure", map[string]any{
			"code":  provider.Code,
			"known": oauth.Known(provider.Code),
		})
		jsonwriter.WriteError(w, provider.Status, string(oauthErr.Code), oauthErr.Description)
	default:
		log.LogErrorWithFields("gateway", "Token exchange failed", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal server error")
	}
}
