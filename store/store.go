// Package store provides a simple, goroutine safe object store interface.
// Values are whole byte slices addressed by string keys. There are no
// transactions, no indices and no compare-and-swap: a single Put is atomic
// for its key and that is the only guarantee the rest of folio builds on.
//
// The S3 store is the one used in production. The FileSystem and Bolt
// stores are for single node installs, and Memory is useful for testing.
package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

// Metadata describes a stored object. User holds arbitrary string pairs
// which are saved along with the object.
type Metadata struct {
	Size        int64
	ETag        string
	ContentType string
	Modified    time.Time
	User        map[string]string
}

// Store defines the basic object store. Keys may contain '/' to form a
// hierarchy, but the hierarchy only matters to List.
//
// Get and Head return ErrNotExist when there is no object for the key.
// Delete of a missing key is not an error. List returns the full keys
// beginning with prefix, sorted.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, meta *Metadata) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Head(ctx context.Context, key string) (Metadata, error)
}

var (
	// ErrNotExist is returned when a key has no object.
	ErrNotExist = errors.New("key does not exist")

	// ErrInvalidKey means the key cannot be stored by a backend.
	ErrInvalidKey = errors.New("invalid key")
)

// IsNotExist reports whether err means a key was missing.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

// ContentHash returns the hash used as the default ETag of a stored object.
func ContentHash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// fillMetadata returns the metadata to record for data, starting from the
// caller supplied values.
func fillMetadata(data []byte, meta *Metadata, now time.Time) Metadata {
	var m Metadata
	if meta != nil {
		m = *meta
		if meta.User != nil {
			m.User = make(map[string]string, len(meta.User))
			for k, v := range meta.User {
				m.User[k] = v
			}
		}
	}
	m.Size = int64(len(data))
	m.Modified = now
	if m.ETag == "" {
		m.ETag = ContentHash(data)
	}
	return m
}

// GetJSON reads the object at key and unserializes it into value.
func GetJSON(ctx context.Context, s Store, key string, value interface{}) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	err = json.Unmarshal(data, value)
	if err != nil {
		return errors.Wrapf(err, "decoding %s", key)
	}
	return nil
}

// PutJSON serializes value as JSON and saves it under key, replacing any
// existing object.
func PutJSON(ctx context.Context, s Store, key string, value interface{}, meta *Metadata) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	var m Metadata
	if meta != nil {
		m = *meta
	}
	if m.ContentType == "" {
		m.ContentType = "application/json"
	}
	return s.Put(ctx, key, data, &m)
}
