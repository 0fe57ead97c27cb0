package dedupe

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/michaelpento.lv/flashscan/types"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection parameters for the Redis backend
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	TLSEnabled bool
	KeyPrefix  string
}

// RedisStore shares fingerprints between several scanner processes. Reserve
// is SET NX with the TTL; Finalize is SET XX KEEPTTL.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection with a ping
func NewRedisStore(ctx context.Context, cfg RedisConfig, ttl time.Duration) (*RedisStore, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "flashscan:seen:"
	}

	return &RedisStore{rdb: rdb, ttl: ttl, prefix: prefix}, nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Reserve(ctx context.Context, id string, rec *types.SubmissionRecord) (bool, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to encode record: %w", err)
	}

	ok, err := r.rdb.SetNX(ctx, r.key(id), payload, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: reserve %s: %v", types.ErrStoreUnavailable, id, err)
	}
	return ok, nil
}

func (r *RedisStore) Finalize(ctx context.Context, id string, rec *types.SubmissionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	err = r.rdb.SetArgs(ctx, r.key(id), payload, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: finalize %s: %v", types.ErrStoreUnavailable, id, err)
	}
	return nil
}

func (r *RedisStore) Lookup(ctx context.Context, id string) (*types.SubmissionRecord, bool, error) {
	payload, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: lookup %s: %v", types.ErrStoreUnavailable, id, err)
	}

	var rec types.SubmissionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, false, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, true, nil
}

var _ Store = (*RedisStore)(nil)
