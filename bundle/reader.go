package bundle

import (
	"context"
	"encoding/json"

	"github.com/golang/groupcache/singleflight"
	"go.uber.org/zap"

	"github.com/ndlib/folio/blobcache"
	"github.com/ndlib/folio/failure"
	"github.com/ndlib/folio/keys"
	"github.com/ndlib/folio/scope"
	"github.com/ndlib/folio/store"
)

// Reader serves manifests and bundles. Concurrent reads of the same object
// share one fetch. Every body read from the store is kept in the cache, and
// when the store fails the cached body is served instead.
type Reader struct {
	Log *zap.Logger

	b     *Builder
	s     store.Store
	cache blobcache.Cache
	table singleflight.Group // keyed by object key
}

// NewReader returns a Reader for objects written by b into s. cache may be
// nil to disable the fallback.
func NewReader(b *Builder, s store.Store, cache blobcache.Cache) *Reader {
	if cache == nil {
		cache = blobcache.EmptyCache{}
	}
	return &Reader{Log: zap.NewNop(), b: b, s: s, cache: cache}
}

// Manifest returns the manifest for sc, building it if it does not exist.
func (r *Reader) Manifest(ctx context.Context, sc scope.Scope) (*Manifest, error) {
	var m Manifest
	err := r.load(ctx, keys.Manifest(sc), "manifest", &m, func() (interface{}, error) {
		return r.b.BuildManifest(ctx, sc)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Bundle returns the bundle of one type for sc, building it if it does not
// exist.
func (r *Reader) Bundle(ctx context.Context, typeID string, sc scope.Scope) (*Bundle, error) {
	if !keys.ValidID(typeID) {
		return nil, failure.NotFound.New("entity type %q", typeID)
	}
	var bun Bundle
	err := r.load(ctx, keys.Bundle(sc, typeID), "bundle", &bun, func() (interface{}, error) {
		return r.b.BuildBundle(ctx, typeID, sc)
	})
	if err != nil {
		return nil, err
	}
	return &bun, nil
}

// load reads the object at key into value. A missing object is built with
// build. A storage failure is answered from the cache if possible.
func (r *Reader) load(ctx context.Context, key, kind string, value interface{}, build func() (interface{}, error)) error {
	v, err := r.table.Do(key, func() (interface{}, error) {
		data, err := r.s.Get(ctx, key)
		if store.IsNotExist(err) {
			var built interface{}
			built, err = build()
			if err == nil {
				data, err = json.Marshal(built)
			}
		}
		if err == nil {
			r.remember(ctx, key, data)
			return data, nil
		}
		if failure.Recoverable(err) {
			return nil, err
		}
		return r.fallback(ctx, key, kind, err)
	})
	if err != nil {
		return err
	}
	err = json.Unmarshal(v.([]byte), value)
	if err != nil {
		return failure.StorageUnavailable.Wrap(err)
	}
	return nil
}

func (r *Reader) remember(ctx context.Context, key string, data []byte) {
	err := r.cache.Put(ctx, key, data, store.ContentHash(data))
	if err != nil {
		r.Log.Warn("caching body", zap.String("key", key), zap.Error(err))
	}
}

func (r *Reader) fallback(ctx context.Context, key, kind string, cause error) (interface{}, error) {
	data, _, err := r.cache.Get(ctx, key)
	if err != nil || data == nil {
		FallbackReads.WithLabelValues(kind, "miss").Inc()
		r.Log.Error("reading "+kind, zap.String("key", key), zap.Error(cause))
		if failure.CodeOf(cause) == failure.CodeInternal {
			cause = failure.StorageUnavailable.Wrap(cause)
		}
		return nil, cause
	}
	FallbackReads.WithLabelValues(kind, "hit").Inc()
	r.Log.Warn("serving cached "+kind, zap.String("key", key), zap.Error(cause))
	return data, nil
}
