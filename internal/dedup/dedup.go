package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store запоминает обработанные уведомления шлюза.
// Это только быстрый путь для повторных доставок: источник истины — статус заказа в БД.
type Store interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type RedisStore struct {
	rdb   redis.UniversalClient
	scope string
	ttl   time.Duration
}

func NewRedisStore(rdb redis.UniversalClient, scope string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, scope: scope, ttl: ttl}
}

// dedup:{scope}:{key}
func (s *RedisStore) key(k string) string {
	return "dedup:" + s.scope + ":" + k
}

func (s *RedisStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(key)).Result()
	return n > 0, err
}

func (s *RedisStore) Mark(ctx context.Context, key string) error {
	return s.rdb.Set(ctx, s.key(key), "1", s.ttl).Err()
}

// NopStore — Redis не настроен, каждое уведомление обрабатывается через БД
type NopStore struct{}

func (NopStore) Seen(context.Context, string) (bool, error) { return false, nil }
func (NopStore) Mark(context.Context, string) error         { return nil }
