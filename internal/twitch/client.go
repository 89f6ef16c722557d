package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/holy-jesus/holynotifier/internal/domain"
	apperrors "github.com/holy-jesus/holynotifier/internal/errors"
	"github.com/holy-jesus/holynotifier/internal/metrics"
	"github.com/holy-jesus/holynotifier/internal/platform/retry"
)

const (
	defaultHelixURL = "https://api.twitch.tv/helix"

	helixRequestTimeout = 15 * time.Second

	// minRateLimitWait floors the 429 backoff even when the reset hint is in
	// the past.
	minRateLimitWait = time.Second
)

// tokenSource is the subset of AppTokenSource the client needs.
type tokenSource interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Client is the authenticated Helix wrapper for EventSub subscription CRUD
// and channel metadata lookups. Every call obtains a token first and runs
// through a two-attempt loop: a 401 forces one token refresh and one retry, a
// 429 sleeps until the provider's reset hint and retries once. Anything else
// is surfaced without retry.
type Client struct {
	tokens     tokenSource
	httpClient *http.Client
	clock      clockwork.Clock
	clientID   string
	helixURL   string // Helix base URL (configurable for testing)

	// Webhook transport parameters for subscription creation.
	callbackURL   string
	webhookSecret string
}

func NewClient(tokens tokenSource, clientID, callbackURL, webhookSecret string, clock clockwork.Clock) *Client {
	return &Client{
		tokens:        tokens,
		httpClient:    &http.Client{Timeout: helixRequestTimeout},
		clock:         clock,
		clientID:      clientID,
		helixURL:      defaultHelixURL,
		callbackURL:   callbackURL,
		webhookSecret: webhookSecret,
	}
}

// httpStatusError carries a non-2xx Helix response through the retry loop.
type httpStatusError struct {
	status     int
	body       string
	retryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("helix returned %d: %s", e.status, e.body)
}

// CreateSubscription registers a webhook EventSub subscription for the
// (channel, kind) pair and returns the new subscription id. A 409 conflict
// means the pair is already registered; it is treated as a no-op and the id
// arrives with the next reconciliation listing instead.
func (c *Client) CreateSubscription(ctx context.Context, kind domain.EventKind, channelID string) (string, error) {
	payload := map[string]any{
		"type":    kind.String(),
		"version": kind.Version(),
		"condition": map[string]string{
			"broadcaster_user_id": channelID,
		},
		"transport": map[string]string{
			"method":   "webhook",
			"callback": c.callbackURL,
			"secret":   c.webhookSecret,
		},
	}

	body, err := c.do(ctx, "create_subscription", http.MethodPost, "/eventsub/subscriptions", nil, payload)
	if err != nil {
		var structured *apperrors.Error
		if errors.As(err, &structured) && structured.Status == http.StatusConflict {
			return "", nil
		}
		return "", err
	}

	var result struct {
		Data []Subscription `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	if len(result.Data) == 0 {
		return "", apperrors.ProviderError("create returned no subscription", http.StatusAccepted)
	}
	return result.Data[0].ID, nil
}

// DeleteSubscription removes a subscription by id.
func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	query := url.Values{"id": {subscriptionID}}
	_, err := c.do(ctx, "delete_subscription", http.MethodDelete, "/eventsub/subscriptions", query, nil)
	return err
}

// ListEnabledSubscriptions returns every enabled subscription, following
// pagination cursors until the listing is exhausted.
func (c *Client) ListEnabledSubscriptions(ctx context.Context) ([]Subscription, error) {
	var all []Subscription
	cursor := ""
	for {
		query := url.Values{"status": {"enabled"}}
		if cursor != "" {
			query.Set("after", cursor)
		}

		body, err := c.do(ctx, "list_subscriptions", http.MethodGet, "/eventsub/subscriptions", query, nil)
		if err != nil {
			return nil, err
		}

		var page struct {
			Data       []Subscription `json:"data"`
			Pagination struct {
				Cursor string `json:"cursor"`
			} `json:"pagination"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to decode subscription listing: %w", err)
		}

		all = append(all, page.Data...)
		if page.Pagination.Cursor == "" {
			return all, nil
		}
		cursor = page.Pagination.Cursor
	}
}

// GetUsersByLogin resolves logins to user records.
func (c *Client) GetUsersByLogin(ctx context.Context, logins ...string) ([]User, error) {
	query := url.Values{"login": logins}
	body, err := c.do(ctx, "get_users", http.MethodGet, "/users", query, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data []User `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode users response: %w", err)
	}
	return result.Data, nil
}

// GetStreams returns live-stream records for the given channel ids; channels
// that are offline are simply absent from the result.
func (c *Client) GetStreams(ctx context.Context, channelIDs []string) ([]Stream, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}
	query := url.Values{"user_id": channelIDs}
	body, err := c.do(ctx, "get_streams", http.MethodGet, "/streams", query, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data []Stream `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode streams response: %w", err)
	}
	return result.Data, nil
}

// GetChannelInfo returns channel metadata for the given channel ids.
func (c *Client) GetChannelInfo(ctx context.Context, channelIDs []string) ([]ChannelInfo, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}
	query := url.Values{"broadcaster_id": channelIDs}
	body, err := c.do(ctx, "get_channels", http.MethodGet, "/channels", query, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data []ChannelInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode channels response: %w", err)
	}
	return result.Data, nil
}

// ChannelSnapshots combines Get Streams and Get Channel Information into
// fresh ChannelState records: live channels come from the streams listing,
// the rest from channel metadata.
func (c *Client) ChannelSnapshots(ctx context.Context, channelIDs []string) (map[string]domain.ChannelState, error) {
	snapshots := make(map[string]domain.ChannelState, len(channelIDs))

	streams, err := c.GetStreams(ctx, channelIDs)
	if err != nil {
		return nil, err
	}
	for _, stream := range streams {
		startedAt := stream.StartedAt
		categoryStartedAt := stream.StartedAt
		snapshots[stream.UserID] = domain.ChannelState{
			ChannelID:         stream.UserID,
			Login:             stream.UserLogin,
			DisplayName:       stream.UserName,
			IsLive:            true,
			Title:             stream.Title,
			Category:          stream.GameName,
			StartedAt:         &startedAt,
			CategoryStartedAt: &categoryStartedAt,
			CategoryTime:      map[string]time.Duration{},
		}
	}

	var offline []string
	for _, id := range channelIDs {
		if _, ok := snapshots[id]; !ok {
			offline = append(offline, id)
		}
	}

	channels, err := c.GetChannelInfo(ctx, offline)
	if err != nil {
		return nil, err
	}
	for _, ch := range channels {
		snapshots[ch.BroadcasterID] = domain.ChannelState{
			ChannelID:   ch.BroadcasterID,
			Login:       ch.BroadcasterLogin,
			DisplayName: ch.BroadcasterName,
			Title:       ch.Title,
			Category:    ch.GameName,
		}
	}

	return snapshots, nil
}

// do runs one authenticated Helix request through the bounded retry loop and
// returns the response body of a 2xx answer.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload any) ([]byte, error) {
	body, err := retry.Do(ctx, c.clock, retry.Policy{MaxAttempts: 2}, c.classify, func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, op, method, path, query, payload)
	})
	if err == nil {
		return body, nil
	}

	var statusErr *httpStatusError
	if !errors.As(err, &statusErr) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	switch statusErr.status {
	case http.StatusUnauthorized:
		return nil, apperrors.AuthFailedError(statusErr)
	case http.StatusTooManyRequests:
		return nil, apperrors.RateLimitedError(statusErr)
	default:
		return nil, apperrors.ProviderError(op, statusErr.status)
	}
}

func (c *Client) classify(err error) retry.Decision {
	var statusErr *httpStatusError
	if !errors.As(err, &statusErr) {
		return retry.Decision{Action: retry.Stop}
	}
	switch statusErr.status {
	case http.StatusUnauthorized:
		return retry.Decision{Action: retry.Retry, OnRetry: func(ctx context.Context) error {
			_, refreshErr := c.tokens.ForceRefresh(ctx)
			return refreshErr
		}}
	case http.StatusTooManyRequests:
		return retry.Decision{Action: retry.Retry, Delay: statusErr.retryAfter}
	default:
		return retry.Decision{Action: retry.Stop}
	}
}

func (c *Client) send(ctx context.Context, op, method, path string, query url.Values, payload any) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := c.helixURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.HelixRequests.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	metrics.HelixRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	statusErr := &httpStatusError{status: resp.StatusCode, body: string(body)}
	if resp.StatusCode == http.StatusTooManyRequests {
		statusErr.retryAfter = c.rateLimitWait(resp.Header.Get("Ratelimit-Reset"))
	}
	return nil, statusErr
}

// rateLimitWait converts the Ratelimit-Reset header (unix seconds) into a
// wait duration, floored at one second.
func (c *Client) rateLimitWait(resetHeader string) time.Duration {
	reset, err := strconv.ParseInt(resetHeader, 10, 64)
	if err != nil {
		return minRateLimitWait
	}
	wait := time.Unix(reset, 0).Sub(c.clock.Now())
	if wait < minRateLimitWait {
		return minRateLimitWait
	}
	return wait
}
