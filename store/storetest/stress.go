// storetest provides functions for facilitating the testing of anything
// implementing the Store interface.
package storetest

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/ndlib/folio/store"
)

// Conformance runs the behaviour every Store must share. s should be empty.
func Conformance(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "missing/key.json")
	if !store.IsNotExist(err) {
		t.Errorf("Get of missing key returned %v, expected ErrNotExist", err)
	}
	_, err = s.Head(ctx, "missing/key.json")
	if !store.IsNotExist(err) {
		t.Errorf("Head of missing key returned %v, expected ErrNotExist", err)
	}
	if err = s.Delete(ctx, "missing/key.json"); err != nil {
		t.Errorf("Delete of missing key returned %v", err)
	}

	var items = []struct{ key, value string }{
		{"a/b/one.json", `{"n":1}`},
		{"a/b/two.json", `{"n":2}`},
		{"a/c/three.json", `{"n":3}`},
		{"b/four.json", `{"n":4}`},
	}
	for _, item := range items {
		err := s.Put(ctx, item.key, []byte(item.value), &store.Metadata{
			ContentType: "application/json",
			User:        map[string]string{"Kind": "test"},
		})
		if err != nil {
			t.Fatalf("Put %s: %s", item.key, err)
		}
	}
	for _, item := range items {
		data, err := s.Get(ctx, item.key)
		if err != nil {
			t.Errorf("Get %s: %s", item.key, err)
			continue
		}
		if string(data) != item.value {
			t.Errorf("Get %s returned %q, expected %q", item.key, data, item.value)
		}
		m, err := s.Head(ctx, item.key)
		if err != nil {
			t.Errorf("Head %s: %s", item.key, err)
			continue
		}
		if m.Size != int64(len(item.value)) {
			t.Errorf("Head %s size %d, expected %d", item.key, m.Size, len(item.value))
		}
		if m.ETag != store.ContentHash([]byte(item.value)) {
			t.Errorf("Head %s etag %q, expected content hash", item.key, m.ETag)
		}
	}

	var lists = []struct {
		prefix   string
		expected []string
	}{
		{"", []string{"a/b/one.json", "a/b/two.json", "a/c/three.json", "b/four.json"}},
		{"a/", []string{"a/b/one.json", "a/b/two.json", "a/c/three.json"}},
		{"a/b/", []string{"a/b/one.json", "a/b/two.json"}},
		{"a/b/t", []string{"a/b/two.json"}},
		{"c/", nil},
	}
	for _, l := range lists {
		keys, err := s.List(ctx, l.prefix)
		if err != nil {
			t.Errorf("List %q: %s", l.prefix, err)
			continue
		}
		if !equal(keys, l.expected) {
			t.Errorf("List %q returned %v, expected %v", l.prefix, keys, l.expected)
		}
	}

	// an overwrite replaces the value and the etag
	err = s.Put(ctx, "a/b/one.json", []byte(`{"n":11}`), &store.Metadata{ETag: "custom"})
	if err != nil {
		t.Fatalf("Put overwrite: %s", err)
	}
	data, _ := s.Get(ctx, "a/b/one.json")
	if string(data) != `{"n":11}` {
		t.Errorf("overwrite returned %q", data)
	}
	m, _ := s.Head(ctx, "a/b/one.json")
	if m.ETag != "custom" {
		t.Errorf("overwrite etag %q, expected custom", m.ETag)
	}

	if err = s.Delete(ctx, "a/b/one.json"); err != nil {
		t.Errorf("Delete: %s", err)
	}
	if _, err = s.Get(ctx, "a/b/one.json"); !store.IsNotExist(err) {
		t.Errorf("Get after delete returned %v", err)
	}
	keys, _ := s.List(ctx, "a/b/")
	if !equal(keys, []string{"a/b/two.json"}) {
		t.Errorf("List after delete returned %v", keys)
	}
}

// Stress will spawn a given number of goroutines to simultaneously
// try reading and writing to the given store. It is a good test to run
// with the -race flag to try to find race conditions.
//
// Each goroutine writes, reads back and deletes its own keys, and every
// goroutine also overwrites one shared key to make sure a reader only
// ever sees one complete value.
func Stress(t *testing.T, s store.Store, workers int, rounds int) {
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(n)))
			for j := 0; j < rounds; j++ {
				key := fmt.Sprintf("stress/%d/%d", n, j)
				value := make([]byte, 1+r.Intn(4096))
				r.Read(value)
				if err := s.Put(ctx, key, value, nil); err != nil {
					t.Error(err)
					continue
				}
				got, err := s.Get(ctx, key)
				if err != nil {
					t.Error(err)
					continue
				}
				if !bytes.Equal(got, value) {
					t.Errorf("%s: read back different contents", key)
				}
				shared := bytes.Repeat([]byte{byte('a' + n%26)}, 512)
				if err := s.Put(ctx, "stress/shared", shared, nil); err != nil {
					t.Error(err)
				}
				got, err = s.Get(ctx, "stress/shared")
				if err == nil && !uniform(got) {
					t.Errorf("shared key holds a mixed value")
				}
				if r.Intn(2) == 0 {
					if err := s.Delete(ctx, key); err != nil {
						t.Error(err)
					}
				}
			}
		}(i)
	}
	wg.Wait()
}

func uniform(b []byte) bool {
	for i := range b {
		if b[i] != b[0] {
			return false
		}
	}
	return len(b) == 512
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
