package octoparse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Token is an access token together with its absolute expiry.
type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// usableAt reports whether the token can still be sent at now, keeping a
// refresh margin before the real expiry.
func (t Token) usableAt(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-refreshMargin))
}

// TokenCache stores the current access token.
type TokenCache interface {
	Get(ctx context.Context) (Token, bool, error)
	Set(ctx context.Context, tok Token) error
	Invalidate(ctx context.Context) error
}

type MemoryTokenCache struct {
	mu  sync.Mutex
	tok Token
	ok  bool
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{}
}

func (c *MemoryTokenCache) Get(_ context.Context) (Token, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tok, c.ok, nil
}

func (c *MemoryTokenCache) Set(_ context.Context, tok Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tok, c.ok = tok, true
	return nil
}

func (c *MemoryTokenCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tok, c.ok = Token{}, false
	return nil
}

const DefaultRedisTokenKey = "jobsync:octoparse:token"

// RedisTokenCache keeps the token in Redis so restarts reuse it.
// Entries expire together with the token.
type RedisTokenCache struct {
	rdb *redis.Client
	key string
}

func NewRedisTokenCache(rdb *redis.Client, key string) *RedisTokenCache {
	if key == "" {
		key = DefaultRedisTokenKey
	}
	return &RedisTokenCache{rdb: rdb, key: key}
}

func (c *RedisTokenCache) Get(ctx context.Context) (Token, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Token{}, false, nil
		}
		return Token{}, false, errors.Wrap(err, "redis get token")
	}
	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		// a corrupt entry is treated as a miss
		return Token{}, false, nil
	}
	return tok, true, nil
}

func (c *RedisTokenCache) Set(ctx context.Context, tok Token) error {
	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return errors.Wrap(err, "marshal token")
	}
	if err := c.rdb.Set(ctx, c.key, raw, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set token")
	}
	return nil
}

func (c *RedisTokenCache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
		return errors.Wrap(err, "redis del token")
	}
	return nil
}
