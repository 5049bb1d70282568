package memory

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/nkiryanov/brokeroffice/internal/repository"
)

const (
	keyPrefix       = "blacklist:"
	cleanupInterval = time.Minute
)

// Blacklist keeps revoked jti in process memory.
// Fits single instance deployments, use redis.Blacklist when the service is scaled out
type Blacklist struct {
	cache *cache.Cache
	now   func() time.Time
}

func NewBlacklist() *Blacklist {
	return &Blacklist{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
		now:   time.Now,
	}
}

func (b *Blacklist) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return errors.New("jti must not be empty")
	}

	b.cache.Set(keyPrefix+jti, struct{}{}, repository.RevocationTTL(expiresAt, b.now()))
	return nil
}

func (b *Blacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, found := b.cache.Get(keyPrefix + jti)
	return found, nil
}
