package persist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"jentic/internal/domain"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
	// TTL expires the whole hash when nothing saves for that long. Zero
	// keeps it forever.
	TTL time.Duration
}

// RedisStore keeps metadata in one redis hash so agent processes on
// different hosts share what any of them loaded.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return newRedisStore(client, opts.Key, opts.TTL), nil
}

func newRedisStore(client *redis.Client, key string, ttl time.Duration) *RedisStore {
	if strings.TrimSpace(key) == "" {
		key = domain.DefaultRedisKey
	}
	return &RedisStore{client: client, key: key, ttl: ttl}
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return domain.E(domain.CodeUnavailable, "redis ping", "redis is unreachable", err)
	}
	return nil
}

// Save replaces the hash contents in one transaction.
func (s *RedisStore) Save(ctx context.Context, metas []domain.ExecutionMetadata) error {
	fields := make([]any, 0, len(metas)*2)
	for _, meta := range metas {
		data, err := encodeEntry(meta)
		if err != nil {
			return err
		}
		fields = append(fields, meta.ID.String(), data)
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.key, fields...)
			if s.ttl > 0 {
				pipe.Expire(ctx, s.key, s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return domain.E(domain.CodeUnavailable, "redis save", fmt.Sprintf("write %s", s.key), err)
	}
	return nil
}

// Load returns every entry in the hash, sorted by identifier.
func (s *RedisStore) Load(ctx context.Context) ([]domain.ExecutionMetadata, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, domain.E(domain.CodeUnavailable, "redis load", fmt.Sprintf("read %s", s.key), err)
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]domain.ExecutionMetadata, 0, len(keys))
	for _, key := range keys {
		meta, err := decodeEntry(key, []byte(values[key]))
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
