package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store backs the per-user submission rate limit.
type Store struct {
	Client *redis.Client
	Prefix string
}

func New(ctx context.Context, addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Store{Client: client, Prefix: "genjobs:"}, nil
}

func (s *Store) Close() error { return s.Client.Close() }

// Allow counts one hit for key in a fixed window and reports whether the
// count is still within limit. The window starts at the first hit.
func (s *Store) Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, err error) {
	if limit <= 0 {
		return true, 0, nil
	}
	k := s.key(key)

	pipe := s.Client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	n := int(incr.Val())
	if n > limit {
		return false, 0, nil
	}
	return true, limit - n, nil
}

func (s *Store) key(k string) string { return s.Prefix + "ratelimit:" + k }
