package objstore

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/soloforge/soloforge/pkg/domain/types"
)

func TestLRUCacheEvictsOldest(t *testing.T) {
	cache := newLRUCache(30)

	cache.put(types.ObjectID("a"), make([]byte, 10))
	cache.put(types.ObjectID("b"), make([]byte, 10))
	cache.put(types.ObjectID("c"), make([]byte, 10))
	gt.Equal(t, cache.len(), 3)

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := cache.get(types.ObjectID("a"))
	gt.True(t, ok)

	cache.put(types.ObjectID("d"), make([]byte, 10))
	gt.Equal(t, cache.len(), 3)

	_, ok = cache.get(types.ObjectID("b"))
	gt.False(t, ok)
	_, ok = cache.get(types.ObjectID("a"))
	gt.True(t, ok)
}

func TestLRUCacheSkipsOversizedEntries(t *testing.T) {
	cache := newLRUCache(5)
	cache.put(types.ObjectID("big"), make([]byte, 10))
	gt.Equal(t, cache.len(), 0)
}

func TestLRUCacheDisabled(t *testing.T) {
	cache := newLRUCache(0)
	cache.put(types.ObjectID("a"), make([]byte, 1))
	_, ok := cache.get(types.ObjectID("a"))
	gt.False(t, ok)
}
