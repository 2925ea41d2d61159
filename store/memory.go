package store

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory implements a simple in-memory version of a store. It is intended
// mainly for testing.
type Memory struct {
	m     sync.RWMutex
	store map[string]object
}

type object struct {
	data []byte
	meta Metadata
}

var (
	// ensure Memory satisfies the Store interface
	_ Store = &Memory{}
)

// NewMemory returns a new, empty memory store.
func NewMemory() *Memory {
	return &Memory{store: make(map[string]object)}
}

// Get returns a copy of the object stored under key.
func (ms *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	ms.m.RLock()
	v, ok := ms.store[key]
	ms.m.RUnlock()
	if !ok {
		return nil, ErrNotExist
	}
	out := make([]byte, len(v.data))
	copy(out, v.data)
	return out, nil
}

// Put saves data under key, replacing anything already there.
func (ms *Memory) Put(ctx context.Context, key string, data []byte, meta *Metadata) error {
	if key == "" {
		return ErrInvalidKey
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	obj := object{data: buf, meta: fillMetadata(buf, meta, time.Now())}
	ms.m.Lock()
	ms.store[key] = obj
	ms.m.Unlock()
	return nil
}

// Delete the given key from the store. It is not an error if the item does
// not exist in the store.
func (ms *Memory) Delete(ctx context.Context, key string) error {
	ms.m.Lock()
	delete(ms.store, key)
	ms.m.Unlock()
	return nil
}

// List returns all the keys which begin with the given prefix.
func (ms *Memory) List(ctx context.Context, prefix string) ([]string, error) {
	var result []string
	ms.m.RLock()
	for k := range ms.store {
		if strings.HasPrefix(k, prefix) {
			result = append(result, k)
		}
	}
	ms.m.RUnlock()
	sort.Strings(result)
	return result, nil
}

// Head returns the metadata for key.
func (ms *Memory) Head(ctx context.Context, key string) (Metadata, error) {
	ms.m.RLock()
	v, ok := ms.store[key]
	ms.m.RUnlock()
	if !ok {
		return Metadata{}, ErrNotExist
	}
	return v.meta, nil
}

// Len returns the number of objects in the store.
func (ms *Memory) Len() int {
	ms.m.RLock()
	defer ms.m.RUnlock()
	return len(ms.store)
}

// Dump writes a listing of the contents of the store to the given writer.
// This is intended for testing and debugging.
func (ms *Memory) Dump(w io.Writer) {
	ms.m.RLock()
	keys := make([]string, 0, len(ms.store))
	for k := range ms.store {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s := ms.store[k].data
		if len(s) > 300 {
			s = s[:50]
		}
		fmt.Fprintf(w, "%s: %s\n", k, string(s))
	}
	ms.m.RUnlock()
}
