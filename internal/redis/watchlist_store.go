package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/holy-jesus/holynotifier/internal/domain"
)

const watchlistKey = "watchlist"

// WatchlistRepo persists the desired subscription set as a redis set.
type WatchlistRepo struct {
	rdb *redis.Client
}

func NewWatchlistRepo(rdb *redis.Client) *WatchlistRepo {
	return &WatchlistRepo{rdb: rdb}
}

func (r *WatchlistRepo) All(ctx context.Context) (domain.WatchSet, error) {
	ids, err := r.rdb.SMembers(ctx, watchlistKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist: %w", err)
	}
	return domain.NewWatchSet(ids...), nil
}

func (r *WatchlistRepo) Add(ctx context.Context, channelID string) error {
	if err := r.rdb.SAdd(ctx, watchlistKey, channelID).Err(); err != nil {
		return fmt.Errorf("failed to add %s to watchlist: %w", channelID, err)
	}
	return nil
}

func (r *WatchlistRepo) Remove(ctx context.Context, channelID string) error {
	if err := r.rdb.SRem(ctx, watchlistKey, channelID).Err(); err != nil {
		return fmt.Errorf("failed to remove %s from watchlist: %w", channelID, err)
	}
	return nil
}
