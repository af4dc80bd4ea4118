package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	cfg "github.com/sweetpotato0/gramflow/config"
	gferrors "github.com/sweetpotato0/gramflow/errors"
)

// RedisStore implements Store on Redis. Each record lives in its own key
// and a sorted set scored by start time keeps List cheap and ordered.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string        // Redis server address (e.g. "localhost:6379")
	Password string        // Redis password (if any)
	DB       int           // Redis database number
	Prefix   string        // Key prefix for namespacing
	TTL      time.Duration // Time-to-live for records (0 means keep forever)
}

// NewRedis creates a Redis-backed run store and verifies the connection.
func NewRedis(config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = RedisConfigFromEnv()
	}
	if err := cfg.ValidateRedisConfig(config.Addr, config.DB, config.Prefix); err != nil {
		return nil, fmt.Errorf("invalid Redis configuration: %w", err)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}, nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + "run:" + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

// Save stores the record under its ID and indexes it by start time.
func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store record in Redis: %w", err)
	}
	member := redis.Z{Score: float64(rec.StartedAt.UnixNano()), Member: rec.ID}
	if err := s.client.ZAdd(ctx, s.indexKey(), member).Err(); err != nil {
		return fmt.Errorf("failed to index record: %w", err)
	}
	return nil
}

// Load retrieves one record by ID.
func (s *RedisStore) Load(ctx context.Context, id string) (*Record, error) {
	data, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("run %s: %w", id, gferrors.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

// Delete removes one record and its index entry.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	deleted, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	s.client.ZRem(ctx, s.indexKey(), id)
	if deleted == 0 {
		return fmt.Errorf("run %s: %w", id, gferrors.ErrRecordNotFound)
	}
	return nil
}

// List returns records newest first. Entries whose keys expired under the
// TTL are dropped from the index as they are encountered.
func (s *RedisStore) List(ctx context.Context, limit int) ([]*Record, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list record index: %w", err)
	}
	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, s.key(id)).Result()
		if err != nil {
			if err == redis.Nil {
				s.client.ZRem(ctx, s.indexKey(), id)
				continue
			}
			return nil, fmt.Errorf("failed to get record: %w", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Count returns the number of indexed records.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	count, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(count), nil
}

// Exists reports whether the record's key is present.
func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check record: %w", err)
	}
	return n > 0, nil
}

// Clear removes every record and the index.
func (s *RedisStore) Clear(ctx context.Context) error {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list record index: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, s.indexKey())
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close(ctx context.Context) error {
	return s.client.Close()
}

// Ping checks if the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
