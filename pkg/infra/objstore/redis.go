package objstore

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository"
)

const redisKeyPrefix = "obj:"

// RedisBackend stores objects in Redis or KeyDB. SETNX matches the
// write-once contract: the first writer wins and identical late writers
// are no-ops.
type RedisBackend struct {
	client *redis.Client
}

var _ Backend = (*RedisBackend)(nil)

// RedisConfig defines connection settings for the Redis object backend.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	Database int
}

func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.Database,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, goerr.Wrap(err, "connecting to redis", goerr.V("addr", addr))
	}

	return &RedisBackend{client: client}, nil
}

// NewRedisBackendWithClient wraps an existing client, used by tests.
func NewRedisBackendWithClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (x *RedisBackend) Put(ctx context.Context, id types.ObjectID, data []byte) error {
	if err := x.client.SetNX(ctx, redisKeyPrefix+string(id), data, 0).Err(); err != nil {
		return goerr.Wrap(err, "storing object in redis", goerr.V("id", id))
	}
	return nil
}

func (x *RedisBackend) Get(ctx context.Context, id types.ObjectID) ([]byte, error) {
	data, err := x.client.Get(ctx, redisKeyPrefix+string(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, goerr.Wrap(repository.ErrNotFound, "object not found",
			goerr.V("id", id),
		)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "fetching object from redis", goerr.V("id", id))
	}
	return data, nil
}

func (x *RedisBackend) Has(ctx context.Context, id types.ObjectID) (bool, error) {
	n, err := x.client.Exists(ctx, redisKeyPrefix+string(id)).Result()
	if err != nil {
		return false, goerr.Wrap(err, "checking object in redis", goerr.V("id", id))
	}
	return n > 0, nil
}
