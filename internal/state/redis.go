package state

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"

	"scalper/pkg/exception"
)

const (
	redisKeyPrefix = "scalper:snapshot:"
	redisTTL       = 7 * 24 * time.Hour
)

// RedisStore keeps snapshots in Redis so a standby process can resume them.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore parses url and returns a store. The connection is established lazily.
func NewRedisStore(url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return &RedisStore{client: redis.NewClient(opt), ttl: redisTTL}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: redisTTL}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(symbol string) string {
	return redisKeyPrefix + symbol
}

// Save overwrites the snapshot for its symbol.
func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := sonic.ConfigStd.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	if err := s.client.Set(ctx, s.key(snap.Symbol), data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set snapshot").With("symbol", snap.Symbol)
	}
	return nil
}

// Load reads the snapshot for symbol.
func (s *RedisStore) Load(ctx context.Context, symbol string) (Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(symbol)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Snapshot{}, exception.ErrStorageNotFound
		}
		return Snapshot{}, errors.Wrap(err, "redis get snapshot").With("symbol", symbol)
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "unmarshal snapshot").With("symbol", symbol)
	}
	if snap.State.LastAccepted == nil {
		snap.State.LastAccepted = make(map[string]time.Time)
	}
	return snap, nil
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
