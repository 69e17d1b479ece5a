// Package redis disponibiliza a implementação do storage baseada em Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/quatrix/rate-limit/internal/core/domain"
	"github.com/quatrix/rate-limit/internal/core/ports"
)

// releaseLua só apaga o lock se ele ainda pertence ao token.
const releaseLua = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`

type Storage struct {
	client        *redis.Client
	releaseScript *redis.Script
}

var (
	_ ports.Storage  = (*Storage)(nil)
	_ ports.Appender = (*Storage)(nil)
	_ ports.Locker   = (*Storage)(nil)
	_ ports.Clock    = (*Storage)(nil)
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

func New(cfg Config) (*Storage, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromClient(client), nil
}

// NewFromClient reaproveita um client já configurado.
func NewFromClient(client *redis.Client) *Storage {
	return &Storage{
		client:        client,
		releaseScript: redis.NewScript(releaseLua),
	}
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) Push(ctx context.Context, key string, timestamp float64) error {
	return s.client.LPush(ctx, key, formatTimestamp(timestamp)).Err()
}

func (s *Storage) Trim(ctx context.Context, key string, length int64) error {
	return s.client.LTrim(ctx, key, 0, length-1).Err()
}

func (s *Storage) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *Storage) Index(ctx context.Context, key string, index int64) (float64, bool, error) {
	raw, err := s.client.LIndex(ctx, key, index).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	ts, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid timestamp %q at %s[%d]: %w", raw, key, index, err)
	}
	return ts, true, nil
}

// Append envia push, trim e expire de todas as chaves num único pipeline.
// O pipeline não é transacional.
func (s *Storage) Append(ctx context.Context, entries []ports.WindowEntry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, e := range entries {
		pipe.LPush(ctx, e.Key, formatTimestamp(e.Timestamp))
		pipe.LTrim(ctx, e.Key, 0, e.Length-1)
		pipe.Expire(ctx, e.Key, e.TTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, token, ttl).Result()
}

func (s *Storage) Release(ctx context.Context, key, token string) error {
	deleted, err := s.releaseScript.Run(ctx, s.client, []string{key}, token).Int64()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return domain.ErrLockNotHeld
	}
	return nil
}

// Now usa o relógio do Redis, para que todas as instâncias compartilhem a mesma referência.
func (s *Storage) Now(ctx context.Context) (time.Time, error) {
	return s.client.Time(ctx).Result()
}

func formatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}
