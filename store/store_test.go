package store_test

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/ndlib/folio/store"
	"github.com/ndlib/folio/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Conformance(t, store.NewMemory())
}

func TestMemoryStress(t *testing.T) {
	storetest.Stress(t, store.NewMemory(), 8, 50)
}

func TestFileSystem(t *testing.T) {
	dir, err := ioutil.TempDir("", "folio")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	storetest.Conformance(t, store.NewFileSystem(dir))
}

func TestFileSystemStress(t *testing.T) {
	dir, err := ioutil.TempDir("", "folio")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	storetest.Stress(t, store.NewFileSystem(dir), 4, 20)
}

func TestBolt(t *testing.T) {
	dir, err := ioutil.TempDir("", "folio")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	s, err := store.NewBolt(filepath.Join(dir, "folio.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	storetest.Conformance(t, s)
	storetest.Stress(t, s, 4, 20)
}

func TestLogger(t *testing.T) {
	storetest.Conformance(t, store.NewLogger(zap.NewNop(), store.NewMemory()))
}

func TestPrefixed(t *testing.T) {
	m := store.NewMemory()
	storetest.Conformance(t, store.NewWithPrefix(m, "tenant/"))
	keys, _ := m.List(context.Background(), "")
	for _, k := range keys {
		if k[:7] != "tenant/" {
			t.Errorf("key %s was not prefixed", k)
		}
	}
}
