package store

import (
	"context"

	"go.uber.org/zap"
)

// Logger wraps a Store and logs every call at debug level.
type Logger struct {
	log   *zap.Logger
	store Store
}

var _ Store = &Logger{}

// NewLogger returns s wrapped so each operation is logged to log.
func NewLogger(log *zap.Logger, s Store) *Logger {
	return &Logger{log: log.Named("store"), store: s}
}

// Get gets a value from the store
func (l *Logger) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := l.store.Get(ctx, key)
	l.log.Debug("Get", zap.String("key", key), zap.Int("size", len(data)), zap.Error(err))
	return data, err
}

// Put adds a value to the store
func (l *Logger) Put(ctx context.Context, key string, data []byte, meta *Metadata) error {
	err := l.store.Put(ctx, key, data, meta)
	l.log.Debug("Put", zap.String("key", key), zap.Int("size", len(data)), zap.Error(err))
	return err
}

// Delete deletes key and the value
func (l *Logger) Delete(ctx context.Context, key string) error {
	err := l.store.Delete(ctx, key)
	l.log.Debug("Delete", zap.String("key", key), zap.Error(err))
	return err
}

// List lists the keys beginning with prefix
func (l *Logger) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := l.store.List(ctx, prefix)
	l.log.Debug("List", zap.String("prefix", prefix), zap.Int("count", len(keys)), zap.Error(err))
	return keys, err
}

// Head gets the metadata for key
func (l *Logger) Head(ctx context.Context, key string) (Metadata, error) {
	m, err := l.store.Head(ctx, key)
	l.log.Debug("Head", zap.String("key", key), zap.String("etag", m.ETag), zap.Error(err))
	return m, err
}
