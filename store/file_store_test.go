package store

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestKeyValid(t *testing.T) {
	var table = []struct {
		key string
		ok  bool
	}{
		{"stubs/abc1234.json", true},
		{"orgs/o1/entities/t/abc1234/v1.json", true},
		{"a", true},
		{"", false},
		{"/abs", false},
		{"a//b", false},
		{"a/../b", false},
		{"a/./b", false},
		{"trailing/", false},
		{"has space", false},
		{"tab\there", false},
		{"bad\xffutf8", false},
	}
	for _, s := range table {
		err := isKeyValid(s.key)
		if (err == nil) != s.ok {
			t.Errorf("isKeyValid(%q) = %v, expected ok=%v", s.key, err, s.ok)
		}
	}
}

func TestFileLayout(t *testing.T) {
	dir, err := ioutil.TempDir("", "folio")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	s := NewFileSystem(dir)
	ctx := context.Background()
	err = s.Put(ctx, "bundles/public/event.json", []byte("{}"), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{
		"data/bundles/public/event.json",
		"meta/bundles/public/event.json.json",
	} {
		if _, err := os.Stat(filepath.Join(dir, p)); err != nil {
			t.Errorf("expected file %s: %s", p, err)
		}
	}
	// scratch files never show up in a listing
	keys, err := s.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if !equal(keys, []string{"bundles/public/event.json"}) {
		t.Errorf("Got %v", keys)
	}
}
