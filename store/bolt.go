package store

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Bolt keeps objects inside a single bbolt database file. It is meant for
// single node installs where running an S3 service is not worth it.
type Bolt struct {
	db *bolt.DB
}

var (
	_ Store = &Bolt{}

	boltData = []byte("data")
	boltMeta = []byte("meta")
)

const (
	// fileMode sets permissions so owner can read and write
	fileMode = 0600

	defaultBoltTimeout = 1 * time.Second
)

// NewBolt opens, creating if needed, the database file at path.
func NewBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: defaultBoltTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltData); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(boltMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating buckets")
	}
	return &Bolt{db: db}, nil
}

// Close closes the database file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Get returns a copy of the stored value.
func (b *Bolt) Get(ctx context.Context, key string) ([]byte, error) {
	var result []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltData).Get([]byte(key))
		if v == nil {
			return ErrNotExist
		}
		// values are only valid for the life of the transaction
		result = append([]byte{}, v...)
		return nil
	})
	return result, err
}

// Put saves the value and its metadata in one bolt transaction.
func (b *Bolt) Put(ctx context.Context, key string, data []byte, meta *Metadata) error {
	if key == "" {
		return ErrInvalidKey
	}
	m := fillMetadata(data, meta, time.Now())
	mdata, err := json.Marshal(m)
	if err != nil {
		return errors.Wrapf(err, "encoding metadata for %s", key)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(boltData).Put([]byte(key), data); err != nil {
			return err
		}
		return tx.Bucket(boltMeta).Put([]byte(key), mdata)
	})
	return errors.Wrapf(err, "bolt put %s", key)
}

// Delete removes key. It is not an error if the key doesn't exist.
func (b *Bolt) Delete(ctx context.Context, key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(boltData).Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(boltMeta).Delete([]byte(key))
	})
	return errors.Wrapf(err, "bolt delete %s", key)
}

// List scans the keys beginning with prefix. Bolt keeps keys sorted, so the
// result is already in order.
func (b *Bolt) List(ctx context.Context, prefix string) ([]string, error) {
	var result []string
	p := []byte(prefix)
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltData).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			result = append(result, string(k))
		}
		return nil
	})
	return result, errors.Wrapf(err, "bolt list %s", prefix)
}

// Head returns the metadata saved with key.
func (b *Bolt) Head(ctx context.Context, key string) (Metadata, error) {
	var m Metadata
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltMeta).Get([]byte(key))
		if v == nil {
			return ErrNotExist
		}
		return json.Unmarshal(v, &m)
	})
	return m, err
}
