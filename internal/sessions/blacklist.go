package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "blacklist:access:"

// Blacklist revokes access tokens before they expire. With a Redis client the
// entries are shared between instances; without one they live in process.
type Blacklist struct {
	client *redis.Client

	mu    sync.Mutex
	local map[string]time.Time
}

func NewBlacklist(client *redis.Client) *Blacklist {
	return &Blacklist{client: client, local: map[string]time.Time{}}
}

// Revoke blacklists token for ttl. Non-positive ttls are ignored.
func (b *Blacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if b.client != nil {
		return b.client.Set(ctx, blacklistPrefix+token, "1", ttl).Err()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	for k, until := range b.local {
		if now.After(until) {
			delete(b.local, k)
		}
	}
	b.local[token] = now.Add(ttl)
	return nil
}

// IsRevoked reports whether token has been blacklisted and not yet expired.
func (b *Blacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	if b.client != nil {
		n, err := b.client.Exists(ctx, blacklistPrefix+token).Result()
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	until, ok := b.local[token]
	return ok && time.Now().Before(until), nil
}
