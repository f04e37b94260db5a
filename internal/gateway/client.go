package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pingdaily/ping-daily-web/internal/ioutil"
	jsonwriter "github.com/pingdaily/ping-daily-web/internal/json"
)

const maxResponseBody = 64 << 10

// Client calls a gateway deployed as a separate service through its
// POST /api/oauth/token endpoint
type Client struct {
	endpoint   string
	httpClient *http.Client
}

var _ Exchanger = (*Client)(nil)

func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{endpoint: endpoint, httpClient: httpClient}
}

func (c *Client) Exchange(ctx context.Context, req ExchangeRequest) (*TokenResponse, error) {
	if !req.complete() {
		return nil, ErrMissingParameters
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal exchange request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build exchange request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call token gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAtMost(resp.Body, maxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e jsonwriter.ErrorResponse
		_ = json.Unmarshal(body, &e)
		switch {
		case resp.StatusCode == http.StatusBadRequest && e.Error == "missing_parameters":
			return nil, ErrMissingParameters
		case resp.StatusCode == http.StatusBadRequest && e.Error != "" && e.Error != "token_exchange_failed" && e.Error != "bad_request":
			return nil, &ProviderError{Status: resp.StatusCode, Code: e.Error}
		default:
			return nil, &UpstreamError{Status: resp.StatusCode, Code: e.Error, Body: string(body)}
		}
	}

	var out TokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	return &out, nil
}
