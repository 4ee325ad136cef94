package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSessionPrefix = "labsite:session:"

// RedisRepository stores each session as JSON under "<prefix><refreshToken>" with
// a TTL matching its expiry, and indexes the tokens of one admin in the set
// "<prefix>sub:<sub>" so they can be revoked together.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis-based session repository. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) key(refresh string) string { return r.prefix + refresh }

func (r *RedisRepository) subKey(sub string) string { return r.prefix + "sub:" + sub }

func (r *RedisRepository) Create(ctx context.Context, s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	exp := time.Until(s.ExpiresAt)
	if exp <= 0 {
		exp = time.Second
	}
	idx := r.subKey(s.Sub)
	cur, err := r.client.TTL(ctx, idx).Result()
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.key(s.RefreshToken), b, exp)
		p.SAdd(ctx, idx, s.RefreshToken)
		// the index lives as long as its longest session
		if cur < exp {
			p.Expire(ctx, idx, exp)
		}
		return nil
	})
	return err
}

func (r *RedisRepository) load(ctx context.Context, refresh string) (*Session, error) {
	b, err := r.client.Get(ctx, r.key(refresh)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisRepository) GetByRefresh(ctx context.Context, refresh string) (*Session, error) {
	s, err := r.load(ctx, refresh)
	if err != nil || s == nil {
		return nil, err
	}
	if s.expired(time.Now().UTC()) {
		_ = r.DeleteByRefresh(ctx, refresh)
		return nil, nil
	}
	return s, nil
}

func (r *RedisRepository) DeleteByRefresh(ctx context.Context, refresh string) error {
	s, err := r.load(ctx, refresh)
	if err != nil {
		return err
	}
	if s != nil {
		if err := r.client.SRem(ctx, r.subKey(s.Sub), refresh).Err(); err != nil {
			return err
		}
	}
	return r.client.Del(ctx, r.key(refresh)).Err()
}

func (r *RedisRepository) DeleteBySub(ctx context.Context, sub string) (int, error) {
	idx := r.subKey(sub)
	tokens, err := r.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, err
	}
	n := int64(0)
	if len(tokens) > 0 {
		keys := make([]string, len(tokens))
		for i, t := range tokens {
			keys[i] = r.key(t)
		}
		// index entries of already expired sessions are not counted
		if n, err = r.client.Del(ctx, keys...).Result(); err != nil {
			return 0, err
		}
	}
	if err := r.client.Del(ctx, idx).Err(); err != nil {
		return 0, err
	}
	return int(n), nil
}
