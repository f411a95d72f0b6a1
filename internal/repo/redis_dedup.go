package repo

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper claims message ids with SET NX and a TTL, so every replica of
// the service shares one view of which provider messages were accepted.
type RedisDeduper struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

// NewRedisDeduper connects to addr and pings it.
func NewRedisDeduper(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisDeduper, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &RedisDeduper{Client: c, TTL: ttl, Prefix: "orderbot:inbound:"}, nil
}

// Key builds the redis key for a receipt.
func (d *RedisDeduper) Key(tenantID, provider, key string) string {
	return d.Prefix + tenantID + ":" + provider + ":" + key
}

// Claim reports whether this caller set the key first.
func (d *RedisDeduper) Claim(ctx context.Context, tenantID, provider, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return true, nil
	}
	return d.Client.SetNX(ctx, d.Key(tenantID, provider, key), time.Now().UTC().Unix(), d.TTL).Result()
}

// Close releases the connection pool.
func (d *RedisDeduper) Close() error { return d.Client.Close() }
