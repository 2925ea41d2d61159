package blobcache

import "context"

// An EmptyCache always misses. It contains nothing and saves nothing.
type EmptyCache struct{}

var _ Cache = EmptyCache{}

// Get always returns a cache miss.
func (EmptyCache) Get(ctx context.Context, id string) ([]byte, string, error) {
	return nil, "", nil
}

// Put discards its input.
func (EmptyCache) Put(ctx context.Context, id string, data []byte, etag string) error {
	return nil
}
