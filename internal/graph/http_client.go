package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient talks to the platform's REST API. All calls that name a source
// pass through the per-source throttle first; the throttle may be nil when
// no Redis connection is configured.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	throttle   *Throttle
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, token string, throttle *Throttle, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		throttle: throttle,
		logger:   logger,
	}
}

func (c *HTTPClient) CreateSubscription(ctx context.Context, sub Subscription) (*Subscription, error) {
	var created Subscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", "", sub, &created); err != nil {
		return nil, fmt.Errorf("creating subscription: %w", err)
	}
	return &created, nil
}

func (c *HTTPClient) RenewSubscription(ctx context.Context, id string, expires time.Time) (*Subscription, error) {
	body := map[string]string{
		"expirationDateTime": expires.UTC().Format(time.RFC3339),
	}
	var renewed Subscription
	if err := c.do(ctx, http.MethodPatch, "/subscriptions/"+url.PathEscape(id), "", body, &renewed); err != nil {
		return nil, fmt.Errorf("renewing subscription %s: %w", id, err)
	}
	return &renewed, nil
}

func (c *HTTPClient) DeleteSubscription(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/subscriptions/"+url.PathEscape(id), "", nil, nil); err != nil {
		return fmt.Errorf("deleting subscription %s: %w", id, err)
	}
	return nil
}

func (c *HTTPClient) GetMessage(ctx context.Context, sourceID, messageID string) (*Message, error) {
	path := fmt.Sprintf("/users/%s/messages/%s", url.PathEscape(sourceID), url.PathEscape(messageID))
	var msg Message
	if err := c.do(ctx, http.MethodGet, path, sourceID, nil, &msg); err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", messageID, err)
	}
	return &msg, nil
}

func (c *HTTPClient) ListMessagesSince(ctx context.Context, sourceID string, since time.Time) ([]Message, error) {
	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("receivedDateTime gt %s", since.UTC().Format(time.RFC3339)))
	query.Set("$orderby", "receivedDateTime asc")
	query.Set("$top", "50")
	path := fmt.Sprintf("/users/%s/messages?%s", url.PathEscape(sourceID), query.Encode())

	var out struct {
		Value []Message `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, path, sourceID, nil, &out); err != nil {
		return nil, fmt.Errorf("listing messages for %s: %w", sourceID, err)
	}
	return out.Value, nil
}

func (c *HTTPClient) ListAttachments(ctx context.Context, sourceID, messageID string) ([]Attachment, error) {
	path := fmt.Sprintf("/users/%s/messages/%s/attachments", url.PathEscape(sourceID), url.PathEscape(messageID))
	var out struct {
		Value []Attachment `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, path, sourceID, nil, &out); err != nil {
		return nil, fmt.Errorf("listing attachments for %s: %w", messageID, err)
	}
	return out.Value, nil
}

// do executes one API call. sourceID is used for throttling and may be ""
// for subscription management calls, which are rare enough not to throttle.
func (c *HTTPClient) do(ctx context.Context, method, path, sourceID string, body, out interface{}) error {
	if c.throttle != nil && sourceID != "" {
		if !c.throttle.Allow(ctx, sourceID) {
			return ErrThrottled
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		// Limit error bodies the same way response bodies are limited.
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &apiError{Status: resp.StatusCode, Body: string(errBody)}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
