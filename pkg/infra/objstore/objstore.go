// Package objstore is the content-addressable object store: a bounded
// in-memory cache in front of a durable backend. The backend is
// authoritative; eviction only affects latency, never durability.
package objstore

import (
	"bytes"
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/interfaces"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/gitobj"
)

// Backend is durable storage of canonical object bytes keyed by ID.
// Backends never overwrite differing content for the same ID; the store
// verifies content before and after the backend boundary.
type Backend interface {
	Put(ctx context.Context, id types.ObjectID, data []byte) error
	Get(ctx context.Context, id types.ObjectID) ([]byte, error)
	Has(ctx context.Context, id types.ObjectID) (bool, error)
}

// DefaultCacheBytes bounds the cache to 64 MiB unless configured.
const DefaultCacheBytes = 64 << 20

type Store struct {
	backend Backend
	cache   *lruCache
}

var _ interfaces.ObjectStore = (*Store)(nil)

type Option func(*Store)

// WithCacheBytes bounds the in-memory cache size. Zero disables caching.
func WithCacheBytes(n int64) Option {
	return func(s *Store) {
		s.cache = newLRUCache(n)
	}
}

func New(backend Backend, options ...Option) *Store {
	store := &Store{
		backend: backend,
		cache:   newLRUCache(DefaultCacheBytes),
	}
	for _, opt := range options {
		opt(store)
	}
	return store
}

// Put stores canonical object bytes and returns their content address.
// Writing identical content twice is a no-op; concurrent writers of the
// same content race harmlessly because both produce the same ID.
func (x *Store) Put(ctx context.Context, data []byte) (types.ObjectID, error) {
	if _, _, err := gitobj.Decode(data); err != nil {
		return "", err
	}
	id := gitobj.Sum(data)

	if cached, ok := x.cache.get(id); ok {
		if !bytes.Equal(cached, data) {
			// Content addressing makes this unreachable short of a
			// broken hash; treat it as corruption.
			return "", goerr.Wrap(types.ErrObjectCorrupt, "cache content mismatch",
				goerr.V("id", id),
			)
		}
		return id, nil
	}

	if err := x.backend.Put(ctx, id, data); err != nil {
		return "", err
	}
	x.cache.put(id, data)
	return id, nil
}

// Get returns the canonical object bytes for an ID, verifying the content
// hash on the way out so backend tampering surfaces as ErrObjectCorrupt.
func (x *Store) Get(ctx context.Context, id types.ObjectID) ([]byte, error) {
	if data, ok := x.cache.get(id); ok {
		return data, nil
	}

	data, err := x.backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if gitobj.Sum(data) != id {
		return nil, goerr.Wrap(types.ErrObjectCorrupt, "stored content does not match its address",
			goerr.V("id", id),
		)
	}

	x.cache.put(id, data)
	return data, nil
}

// Has reports whether an object exists without fetching its content.
func (x *Store) Has(ctx context.Context, id types.ObjectID) (bool, error) {
	if _, ok := x.cache.get(id); ok {
		return true, nil
	}
	return x.backend.Has(ctx, id)
}
