// Package blobcache implements a simple cache. It is backed by a store, so it
// can be entirely in memory or disk-backed.
//
// folio uses it to keep the last good copy of every manifest and bundle body
// it has served, so a reader can still be answered while the object store
// is unavailable.
//
// While the cached contents are kept in the store, the list recording usage
// information is kept only in memory. On startup the items in the store are
// enumerated and taken to populate the cache list in an undetermined order.
//
// The cache uses an LRU item replacement policy.
package blobcache

import (
	"container/list"
	"context"
	"errors"
	"sync"

	"github.com/ndlib/folio/store"
)

// A Cache holds whole bodies under string keys, together with the ETag
// they were served with.
type Cache interface {
	// Get returns the body saved under id. A miss returns a nil slice and
	// no error.
	Get(ctx context.Context, id string) ([]byte, string, error)
	// Put saves data under id, replacing anything there.
	Put(ctx context.Context, id string, data []byte, etag string) error
}

// T is an LRU Cache.
type T struct {
	// this is the place where cached items are stored
	s store.Store

	m sync.Mutex // protects everything below

	// total size used to store items in cache.
	size int64

	maxSize int64 // The maximum amount of space we may use

	// front of list is MRU, tail is LRU.
	lru   *list.List
	index map[string]*list.Element
}

var _ Cache = &T{}

type entry struct {
	id   string
	size int64
	etag string
}

// New creates and initializes a new cache structure. The given store
// may already have items in it. Call Scan() either inline or in a goroutine
// to scan the store and add the items inside it to the LRU list.
func New(s store.Store, maxSize int64) *T {
	return &T{
		s:       s,
		maxSize: maxSize,
		lru:     list.New(),
		index:   make(map[string]*list.Element),
	}
}

// Scan enumerates the items in the given store and adds them to the LRU
// list. Blocks until it is completely finished.
func (t *T) Scan(ctx context.Context) error {
	keys, err := t.s.List(ctx, "")
	if err != nil {
		return err
	}
	for _, key := range keys {
		if t.Contains(key) {
			continue
		}
		m, err := t.s.Head(ctx, key)
		if err != nil {
			continue
		}
		t.m.Lock()
		evicted, err := t.reserve(m.Size)
		if err == nil {
			t.index[key] = t.lru.PushBack(entry{id: key, size: m.Size, etag: m.ETag})
		}
		t.m.Unlock()
		t.remove(ctx, evicted)
		if err != nil {
			// this item is too big for the cache.
			t.s.Delete(ctx, key)
		}
	}
	return nil
}

// Contains returns true if the given item is in the cache. It does not
// update the LRU status, and does not guarantee the item will be in the
// cache when Get() is called.
func (t *T) Contains(id string) bool {
	t.m.Lock()
	defer t.m.Unlock()
	_, ok := t.index[id]
	return ok
}

// Size returns the number of bytes held by the cache.
func (t *T) Size() int64 {
	t.m.Lock()
	defer t.m.Unlock()
	return t.size
}

// Get returns the body for the given item and moves it to the front of the
// LRU list. (NOTE: it is not an error for an item to not be in the cache.
// Check the returned slice to see.)
func (t *T) Get(ctx context.Context, id string) ([]byte, string, error) {
	t.m.Lock()
	e, ok := t.index[id]
	var etag string
	if ok {
		t.lru.MoveToFront(e)
		etag = e.Value.(entry).etag
	}
	t.m.Unlock()
	if !ok {
		return nil, "", nil
	}
	data, err := t.s.Get(ctx, id)
	if store.IsNotExist(err) {
		t.forget(id)
		return nil, "", nil
	} else if err != nil {
		return nil, "", err
	}
	return data, etag, nil
}

// Put saves data in the cache under id, evicting other items if needed.
// An item larger than the whole cache returns ErrCacheFull. Putting the
// body the cache already holds for id, going by a non-empty etag, only
// refreshes its place in the LRU list.
//
// The store is written without holding the lock.
func (t *T) Put(ctx context.Context, id string, data []byte, etag string) error {
	size := int64(len(data))
	t.m.Lock()
	if e, ok := t.index[id]; ok {
		old := e.Value.(entry)
		if etag != "" && old.etag == etag && old.size == size {
			t.lru.MoveToFront(e)
			t.m.Unlock()
			return nil
		}
		t.size -= old.size
		t.lru.Remove(e)
		delete(t.index, id)
	}
	evicted, err := t.reserve(size)
	t.m.Unlock()
	t.remove(ctx, evicted)
	if err != nil {
		t.s.Delete(ctx, id)
		return err
	}

	err = t.s.Put(ctx, id, data, &store.Metadata{ETag: etag})

	t.m.Lock()
	defer t.m.Unlock()
	if err != nil {
		t.size -= size
		return err
	}
	if e, ok := t.index[id]; ok {
		// another Put of id finished while we were writing
		t.size -= e.Value.(entry).size
		t.lru.Remove(e)
	}
	t.index[id] = t.lru.PushFront(entry{id: id, size: size, etag: etag})
	return nil
}

var (
	ErrCacheFull = errors.New("Cache is full and no more items can be removed")
)

// reserve space for the passed in size, evicting items if necessary to stay
// under maxSize. Nothing is reserved if there is an error. The ids of the
// evicted items are returned so their bodies can be deleted once t.m is
// released. t.m must be held.
func (t *T) reserve(size int64) ([]string, error) {
	var evicted []string
	t.size += size
	for t.size > t.maxSize {
		// LRU eviction
		e := t.lru.Back()
		if e == nil {
			t.size -= size
			return evicted, ErrCacheFull
		}
		entry := t.lru.Remove(e).(entry)
		delete(t.index, entry.id)
		t.size -= entry.size
		evicted = append(evicted, entry.id)
	}
	return evicted, nil
}

// remove deletes the bodies of evicted items.
func (t *T) remove(ctx context.Context, ids []string) {
	for _, id := range ids {
		t.s.Delete(ctx, id)
	}
}

// forget drops id from the list after its body went missing.
func (t *T) forget(id string) {
	t.m.Lock()
	defer t.m.Unlock()
	if e, ok := t.index[id]; ok {
		t.size -= e.Value.(entry).size
		t.lru.Remove(e)
		delete(t.index, id)
	}
}
