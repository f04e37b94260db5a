package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pingdaily/ping-daily-web/internal/ioutil"
	"github.com/pingdaily/ping-daily-web/internal/log"
	"github.com/pingdaily/ping-daily-web/internal/urlutil"
)

const (
	DefaultAPIBaseURL = "https://slack.com"

	maxResponseBody = 4 << 20
	pageLimit       = 200
	maxPages        = 25
)

// ErrUpstream means the provider API could not be reached or answered with a non-2xx status
var ErrUpstream = errors.New("failed to fetch channels")

// APIError is a logical failure reported by the provider with ok:false
type APIError struct {
	Code string
}

func (e *APIError) Error() string {
	return "slack api error: " + e.Code
}

// Channel is a conversation the signed-in user belongs to
type Channel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsPrivate  bool   `json:"is_private"`
	NumMembers int    `json:"num_members"`
	Topic      string `json:"topic"`
	Purpose    string `json:"purpose"`
}

type textValue struct {
	Value string `json:"value"`
}

type conversation struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	IsPrivate  bool       `json:"is_private"`
	IsMember   bool       `json:"is_member"`
	NumMembers int        `json:"num_members"`
	Topic      *textValue `json:"topic"`
	Purpose    *textValue `json:"purpose"`
}

type listResponse struct {
	OK               bool           `json:"ok"`
	Error            string         `json:"error"`
	Channels         []conversation `json:"channels"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// Client lists channels on behalf of a user
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// ListMemberChannels returns the public and private, non-archived channels
// the owner of accessToken is a member of. Result pages are followed until
// the cursor runs out.
func (c *Client) ListMemberChannels(ctx context.Context, accessToken string) ([]Channel, error) {
	out := []Channel{}
	cursor := ""
	for page := 0; page < maxPages; page++ {
		resp, err := c.list(ctx, accessToken, cursor)
		if err != nil {
			return nil, err
		}
		for _, ch := range resp.Channels {
			if !ch.IsMember {
				continue
			}
			out = append(out, toChannel(ch))
		}
		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return out, nil
		}
	}

	log.LogWarnWithFields("channels", "Stopped following channel pages", map[string]any{
		"pages":    maxPages,
		"channels": len(out),
	})
	return out, nil
}

func (c *Client) list(ctx context.Context, accessToken, cursor string) (*listResponse, error) {
	q := url.Values{}
	q.Set("types", "public_channel,private_channel")
	q.Set("exclude_archived", "true")
	q.Set("limit", fmt.Sprint(pageLimit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint, err := urlutil.JoinPath(c.baseURL, "api", "conversations.list")
	if err != nil {
		return nil, fmt.Errorf("build channels url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build channels request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.LogErrorWithFields("channels", "Channel listing failed", map[string]any{
			"status": resp.StatusCode,
			"body":   ioutil.Preview(resp.Body, 512),
		})
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	body, err := ioutil.ReadAtMost(resp.Body, maxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("read channels response: %w", err)
	}
	var out listResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode channels response: %w", err)
	}
	if !out.OK {
		code := out.Error
		if code == "" {
			code = "Slack API error"
		}
		return nil, &APIError{Code: code}
	}
	return &out, nil
}

func toChannel(c conversation) Channel {
	ch := Channel{
		ID:         c.ID,
		Name:       c.Name,
		IsPrivate:  c.IsPrivate,
		NumMembers: c.NumMembers,
	}
	if c.Topic != nil {
		ch.Topic = c.Topic.Value
	}
	if c.Purpose != nil {
		ch.Purpose = c.Purpose.Value
	}
	return ch
}
