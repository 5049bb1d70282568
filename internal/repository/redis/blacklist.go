package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/brokeroffice/internal/repository"
)

const keyPrefix = "blacklist:"

// Blacklist keeps revoked jti in redis, so all instances of the service share it
type Blacklist struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewBlacklist(client redis.UniversalClient) *Blacklist {
	return &Blacklist{client: client, now: time.Now}
}

// Connect parses redis://... url and checks the server answers
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url. Err: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis is not reachable. Err: %w", err)
	}

	return client, nil
}

func (b *Blacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return errors.New("jti must not be empty")
	}

	ttl := repository.RevocationTTL(expiresAt, b.now())
	if err := b.client.Set(ctx, keyPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (b *Blacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return n > 0, nil
}
