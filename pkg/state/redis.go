package state

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/json"
	"github.com/Matatika/tap-shopify/pkg/singer"
)

// RedisStore keeps state as a JSON string under a single key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to the configured Redis server.
func NewRedisStore(ctx context.Context, cfg config.StateConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword.Reveal(),
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close() //nolint:errcheck,gosec
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to redis").
			WithDetail("addr", cfg.RedisAddr)
	}

	return NewRedisStoreWithClient(client, cfg.Key), nil
}

// NewRedisStoreWithClient creates a store on an existing client.
func NewRedisStoreWithClient(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (*singer.State, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return singer.NewState(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to load state from redis").
			WithDetail("key", r.key)
	}
	return decode(data)
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, s *singer.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to encode state")
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to save state to redis").
			WithDetail("key", r.key)
	}
	return nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
