package objstore

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository"
)

// MemoryBackend keeps objects in a map. Used by tests and development.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[types.ObjectID][]byte
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		objects: make(map[types.ObjectID][]byte),
	}
}

func (x *MemoryBackend) Put(ctx context.Context, id types.ObjectID, data []byte) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, exists := x.objects[id]; exists {
		return nil
	}
	cpy := make([]byte, len(data))
	copy(cpy, data)
	x.objects[id] = cpy
	return nil
}

func (x *MemoryBackend) Get(ctx context.Context, id types.ObjectID) ([]byte, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	data, exists := x.objects[id]
	if !exists {
		return nil, goerr.Wrap(repository.ErrNotFound, "object not found",
			goerr.V("id", id),
		)
	}
	cpy := make([]byte, len(data))
	copy(cpy, data)
	return cpy, nil
}

func (x *MemoryBackend) Has(ctx context.Context, id types.ObjectID) (bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	_, exists := x.objects[id]
	return exists, nil
}

// Delete removes an object, used by tests simulating backend loss.
func (x *MemoryBackend) Delete(id types.ObjectID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.objects, id)
}

// Len returns the number of stored objects, used by dedup tests.
func (x *MemoryBackend) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.objects)
}
