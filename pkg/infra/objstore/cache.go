package objstore

import (
	"container/list"
	"sync"

	"github.com/soloforge/soloforge/pkg/domain/types"
)

// lruCache is a byte-bounded recency cache. Objects are immutable, so
// entries are never invalidated, only evicted.
type lruCache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	order    *list.List
	entries  map[types.ObjectID]*list.Element
}

type cacheEntry struct {
	id   types.ObjectID
	data []byte
}

func newLRUCache(maxBytes int64) *lruCache {
	return &lruCache{
		maxBytes: maxBytes,
		order:    list.New(),
		entries:  make(map[types.ObjectID]*list.Element),
	}
}

func (x *lruCache) get(id types.ObjectID) ([]byte, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	elem, ok := x.entries[id]
	if !ok {
		return nil, false
	}
	x.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).data, true
}

func (x *lruCache) put(id types.ObjectID, data []byte) {
	if x.maxBytes <= 0 || int64(len(data)) > x.maxBytes {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if elem, ok := x.entries[id]; ok {
		x.order.MoveToFront(elem)
		return
	}

	x.entries[id] = x.order.PushFront(&cacheEntry{id: id, data: data})
	x.curBytes += int64(len(data))

	for x.curBytes > x.maxBytes {
		oldest := x.order.Back()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*cacheEntry)
		x.order.Remove(oldest)
		delete(x.entries, entry.id)
		x.curBytes -= int64(len(entry.data))
	}
}

func (x *lruCache) len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}
