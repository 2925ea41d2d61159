package store

import (
	"context"
	"strings"
)

// NewWithPrefix wraps the store s by one which will prefix all its keys by
// prefix. This provides a way to namespace the keys, and to share the same
// underlying store among a group of users.
func NewWithPrefix(s Store, prefix string) Store {
	return prefixstore{s: s, p: prefix}
}

type prefixstore struct {
	s Store  // the store being wrapped
	p string // the prefix for our keys
}

func (ps prefixstore) Get(ctx context.Context, key string) ([]byte, error) {
	return ps.s.Get(ctx, ps.p+key)
}

func (ps prefixstore) Put(ctx context.Context, key string, data []byte, meta *Metadata) error {
	return ps.s.Put(ctx, ps.p+key, data, meta)
}

func (ps prefixstore) Delete(ctx context.Context, key string) error {
	return ps.s.Delete(ctx, ps.p+key)
}

func (ps prefixstore) List(ctx context.Context, prefix string) ([]string, error) {
	var plen = len(ps.p)
	var result []string
	keys, err := ps.s.List(ctx, ps.p+prefix)
	for _, key := range keys {
		if strings.HasPrefix(key, ps.p) {
			result = append(result, key[plen:])
		}
	}
	return result, err
}

func (ps prefixstore) Head(ctx context.Context, key string) (Metadata, error) {
	return ps.s.Head(ctx, ps.p+key)
}
