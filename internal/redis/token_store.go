package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/holy-jesus/holynotifier/internal/domain"
)

const appTokenKey = "app_token"

// TokenRepo persists the shared app access token so that restarted or
// concurrent instances reuse it instead of issuing a fresh one.
type TokenRepo struct {
	rdb *redis.Client
}

func NewTokenRepo(rdb *redis.Client) *TokenRepo {
	return &TokenRepo{rdb: rdb}
}

func (r *TokenRepo) Get(ctx context.Context) (*domain.AppToken, error) {
	raw, err := r.rdb.Get(ctx, appTokenKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app token: %w", err)
	}

	var token domain.AppToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("failed to decode app token: %w", err)
	}
	return &token, nil
}

func (r *TokenRepo) Put(ctx context.Context, token domain.AppToken) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode app token: %w", err)
	}
	if err := r.rdb.Set(ctx, appTokenKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to store app token: %w", err)
	}
	return nil
}
