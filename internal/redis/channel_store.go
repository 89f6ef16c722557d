package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/holy-jesus/holynotifier/internal/domain"
)

const channelKeyPrefix = "channel:"

// ChannelRepo persists ChannelState records as JSON values.
type ChannelRepo struct {
	rdb *redis.Client
}

func NewChannelRepo(rdb *redis.Client) *ChannelRepo {
	return &ChannelRepo{rdb: rdb}
}

func (r *ChannelRepo) Get(ctx context.Context, channelID string) (*domain.ChannelState, error) {
	raw, err := r.rdb.Get(ctx, channelKeyPrefix+channelID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel %s: %w", channelID, err)
	}

	var state domain.ChannelState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode channel %s: %w", channelID, err)
	}
	return &state, nil
}

func (r *ChannelRepo) Put(ctx context.Context, state *domain.ChannelState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode channel %s: %w", state.ChannelID, err)
	}
	if err := r.rdb.Set(ctx, channelKeyPrefix+state.ChannelID, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to store channel %s: %w", state.ChannelID, err)
	}
	return nil
}

func (r *ChannelRepo) Delete(ctx context.Context, channelID string) error {
	if err := r.rdb.Del(ctx, channelKeyPrefix+channelID).Err(); err != nil {
		return fmt.Errorf("failed to delete channel %s: %w", channelID, err)
	}
	return nil
}
