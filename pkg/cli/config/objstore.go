package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/infra/objstore"
	"github.com/urfave/cli/v3"
)

// ObjectStore selects the git object backend and the in-memory cache bound.
type ObjectStore struct {
	backend    string
	cacheBytes int64

	fsRoot string

	gcsBucket string
	gcsPrefix string

	redisAddr     string
	redisUsername string
	redisPassword string
	redisDatabase int64
}

func (x *ObjectStore) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "objstore-backend",
			Usage:       "Object storage backend [fs|memory|gcs|redis]",
			Category:    "Object store",
			Value:       "fs",
			Sources:     cli.EnvVars("SOLOFORGE_OBJSTORE_BACKEND"),
			Destination: &x.backend,
		},
		&cli.Int64Flag{
			Name:        "objstore-cache-bytes",
			Usage:       "In-memory object cache size in bytes (0 to disable)",
			Category:    "Object store",
			Value:       64 << 20,
			Sources:     cli.EnvVars("SOLOFORGE_OBJSTORE_CACHE_BYTES"),
			Destination: &x.cacheBytes,
		},
		&cli.StringFlag{
			Name:        "objstore-fs-root",
			Usage:       "Root directory for the fs backend",
			Category:    "Object store",
			Value:       "./objects",
			Sources:     cli.EnvVars("SOLOFORGE_OBJSTORE_FS_ROOT"),
			Destination: &x.fsRoot,
		},
		&cli.StringFlag{
			Name:        "objstore-gcs-bucket",
			Usage:       "Bucket name for the gcs backend",
			Category:    "Object store",
			Sources:     cli.EnvVars("SOLOFORGE_OBJSTORE_GCS_BUCKET"),
			Destination: &x.gcsBucket,
		},
		&cli.StringFlag{
			Name:        "objstore-gcs-prefix",
			Usage:       "Object name prefix for the gcs backend",
			Category:    "Object store",
			Sources:     cli.EnvVars("SOLOFORGE_OBJSTORE_GCS_PREFIX"),
			Destination: &x.gcsPrefix,
		},
		&cli.StringFlag{
			Name:        "objstore-redis-addr",
			Usage:       "Address for the redis backend",
			Category:    "Object store",
			Sources:     cli.EnvVars("SOLOFORGE_OBJSTORE_REDIS_ADDR"),
			Destination: &x.redisAddr,
		},
		&cli.StringFlag{
			Name:        "objstore-redis-username",
			Usage:       "Username for the redis backend",
			Category:    "Object store",
			Sources:     cli.EnvVars("SOLOFORGE_OBJSTORE_REDIS_USERNAME"),
			Destination: &x.redisUsername,
		},
		&cli.StringFlag{
			Name:        "objstore-redis-password",
			Usage:       "Password for the redis backend",
			Category:    "Object store",
			Sources:     cli.EnvVars("SOLOFORGE_OBJSTORE_REDIS_PASSWORD"),
			Destination: &x.redisPassword,
		},
		&cli.Int64Flag{
			Name:        "objstore-redis-db",
			Usage:       "Database number for the redis backend",
			Category:    "Object store",
			Sources:     cli.EnvVars("SOLOFORGE_OBJSTORE_REDIS_DB"),
			Destination: &x.redisDatabase,
		},
	}
}

func (x *ObjectStore) NewStore(ctx context.Context) (*objstore.Store, error) {
	var backend objstore.Backend
	switch x.backend {
	case "memory":
		backend = objstore.NewMemoryBackend()

	case "fs":
		fs, err := objstore.NewFSBackend(x.fsRoot)
		if err != nil {
			return nil, err
		}
		backend = fs

	case "gcs":
		if x.gcsBucket == "" {
			return nil, goerr.New("gcs backend requires a bucket name")
		}
		gcs, err := objstore.NewGCSBackend(ctx, x.gcsBucket, x.gcsPrefix)
		if err != nil {
			return nil, err
		}
		backend = gcs

	case "redis":
		rd, err := objstore.NewRedisBackend(ctx, objstore.RedisConfig{
			Addr:     x.redisAddr,
			Username: x.redisUsername,
			Password: x.redisPassword,
			Database: int(x.redisDatabase),
		})
		if err != nil {
			return nil, err
		}
		backend = rd

	default:
		return nil, goerr.New("unknown object storage backend", goerr.V("backend", x.backend))
	}

	return objstore.New(backend, objstore.WithCacheBytes(x.cacheBytes)), nil
}

func (x *ObjectStore) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("backend", x.backend),
		slog.Any("cacheBytes", x.cacheBytes),
		slog.Any("fsRoot", x.fsRoot),
		slog.Any("gcsBucket", x.gcsBucket),
		slog.Any("redisAddr", x.redisAddr),
	)
}
