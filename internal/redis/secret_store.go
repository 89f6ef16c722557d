package redis

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/redis/go-redis/v9"
)

const (
	webhookSecretKey = "webhook_secret"
	secretLength     = 64
	secretAlphabet   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// SecretRepo stores the webhook signing secret. When no secret is configured
// one is generated on first boot and reused across restarts, so resubscribing
// is never needed just because the process bounced.
type SecretRepo struct {
	rdb *redis.Client
}

func NewSecretRepo(rdb *redis.Client) *SecretRepo {
	return &SecretRepo{rdb: rdb}
}

// LoadOrCreate returns the stored secret, generating and persisting a new one
// if none exists yet.
func (r *SecretRepo) LoadOrCreate(ctx context.Context) (string, error) {
	secret, err := r.rdb.Get(ctx, webhookSecretKey).Result()
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to read webhook secret: %w", err)
	}

	secret, err = generateSecret()
	if err != nil {
		return "", err
	}

	// SETNX so concurrent first boots agree on one secret.
	stored, err := r.rdb.SetNX(ctx, webhookSecretKey, secret, 0).Result()
	if err != nil {
		return "", fmt.Errorf("failed to store webhook secret: %w", err)
	}
	if !stored {
		return r.rdb.Get(ctx, webhookSecretKey).Result()
	}
	return secret, nil
}

func generateSecret() (string, error) {
	out := make([]byte, secretLength)
	max := big.NewInt(int64(len(secretAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate webhook secret: %w", err)
		}
		out[i] = secretAlphabet[n.Int64()]
	}
	return string(out), nil
}
