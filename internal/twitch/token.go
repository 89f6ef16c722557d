package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/holy-jesus/holynotifier/internal/domain"
	apperrors "github.com/holy-jesus/holynotifier/internal/errors"
	"github.com/holy-jesus/holynotifier/internal/metrics"
)

const (
	defaultTokenURL = "https://id.twitch.tv/oauth2/token"

	// tokenSafetyMargin keeps a token from being handed out so close to
	// expiry that it dies mid-call.
	tokenSafetyMargin = 30 * time.Second

	tokenRequestTimeout = 10 * time.Second
)

// AppTokenSource obtains, caches and refreshes the app access token via the
// client-credentials grant. The cache lives in the token store, so restarted
// instances reuse a still-valid token. Concurrent refreshes collapse onto one
// in-flight request.
type AppTokenSource struct {
	store        domain.TokenStore
	clientID     string
	clientSecret string
	tokenURL     string // OAuth token endpoint URL (configurable for testing)
	httpClient   *http.Client
	clock        clockwork.Clock
	group        singleflight.Group
}

func NewAppTokenSource(store domain.TokenStore, clientID, clientSecret string, clock clockwork.Clock) *AppTokenSource {
	return &AppTokenSource{
		store:        store,
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     defaultTokenURL,
		httpClient:   &http.Client{Timeout: tokenRequestTimeout},
		clock:        clock,
	}
}

// Token returns an access token guaranteed valid for at least the safety
// margin. It reads the persisted cache first and only hits the token endpoint
// when the cached token is absent or about to expire.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	cached, err := s.store.Get(ctx)
	if err != nil && !errors.Is(err, domain.ErrTokenNotFound) {
		return "", fmt.Errorf("failed to read cached token: %w", err)
	}
	if cached != nil && cached.Valid(s.clock.Now().Add(tokenSafetyMargin)) {
		return cached.AccessToken, nil
	}
	return s.refresh(ctx)
}

// ForceRefresh discards the cached token and issues a new one. Used when the
// provider rejects a token the cache still considers valid.
func (s *AppTokenSource) ForceRefresh(ctx context.Context) (string, error) {
	return s.refresh(ctx)
}

func (s *AppTokenSource) refresh(ctx context.Context) (string, error) {
	token, err, _ := s.group.Do("app_token", func() (any, error) {
		return s.requestToken(ctx)
	})
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	return token.(string), nil
}

func (s *AppTokenSource) requestToken(ctx context.Context) (string, error) {
	if s.clientID == "" || s.clientSecret == "" {
		return "", apperrors.CredentialsInvalidError(errors.New("client id or secret not configured"))
	}

	data := url.Values{}
	data.Set("client_id", s.clientID)
	data.Set("client_secret", s.clientSecret)
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", apperrors.CredentialsInvalidError(fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body)))
		}
		return "", apperrors.ProviderError("token request", resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if result.AccessToken == "" {
		return "", apperrors.CredentialsInvalidError(errors.New("token endpoint returned no access token"))
	}

	token := domain.AppToken{
		AccessToken: result.AccessToken,
		ExpiresAt:   s.clock.Now().Add(time.Duration(result.ExpiresIn)*time.Second - tokenSafetyMargin),
	}
	if err := s.store.Put(ctx, token); err != nil {
		// The token itself is good; failing to cache it costs a re-issue
		// later, not correctness.
		slog.WarnContext(ctx, "Failed to cache app token", "error", err)
	}
	return token.AccessToken, nil
}
