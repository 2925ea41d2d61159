package store

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"
)

// FileSystem implements the simple file system based store.
// Object contents are kept under root/data and their metadata under
// root/meta, both mirroring the key hierarchy. A key "a/b/c.json" is saved
// as the file root/data/a/b/c.json.
//
// Puts are written to a scratch file first and then renamed into place, so
// a reader never sees a partially written object.
type FileSystem struct {
	root string
}

const (
	// the subdir to store files while they are being written to.
	scratchdir = "scratch"
	datadir    = "data"
	metadir    = "meta"
)

var (
	// make sure it implements the Store interface
	_ Store = &FileSystem{}

	// ErrKeyContainsNonUnicode means the key provided contains a Non Unicode Rune
	ErrKeyContainsNonUnicode = errors.Wrap(ErrInvalidKey, "key contains non-unicode character")

	// ErrKeyContainsWhiteSpace  means the key provided contains WhiteSpace
	ErrKeyContainsWhiteSpace = errors.Wrap(ErrInvalidKey, "key contains white space")

	// ErrKeyContainsControlChar  means the key provided contains Control Characters
	ErrKeyContainsControlChar = errors.Wrap(ErrInvalidKey, "key contains control characters")

	// ErrKeyEscapes means the key would name a file outside the store
	ErrKeyEscapes = errors.Wrap(ErrInvalidKey, "key has an empty or relative path element")
)

// NewFileSystem creates a new FileSystem store based at the given root path.
func NewFileSystem(root string) *FileSystem {
	return &FileSystem{root}
}

// Get returns the contents of the file for key.
func (s *FileSystem) Get(ctx context.Context, key string) ([]byte, error) {
	if err := isKeyValid(key); err != nil {
		return nil, err
	}
	data, err := ioutil.ReadFile(s.path(datadir, key))
	if os.IsNotExist(err) {
		return nil, ErrNotExist
	} else if err != nil {
		return nil, errors.Wrapf(err, "reading %s", key)
	}
	return data, nil
}

// Put writes data to a scratch file and then moves it to the key's location.
// The metadata file is written before the data file is moved, so a visible
// object always has metadata.
func (s *FileSystem) Put(ctx context.Context, key string, data []byte, meta *Metadata) error {
	if err := isKeyValid(key); err != nil {
		return err
	}
	m := fillMetadata(data, meta, time.Now())
	mdata, err := json.Marshal(m)
	if err != nil {
		return errors.Wrapf(err, "encoding metadata for %s", key)
	}
	if err = s.writeFile(s.path(metadir, key)+".json", mdata); err != nil {
		return err
	}
	return s.writeFile(s.path(datadir, key), data)
}

// writeFile saves data into target by way of a file in the scratch directory.
func (s *FileSystem) writeFile(target string, data []byte) error {
	scratch := filepath.Join(s.root, scratchdir)
	if err := os.MkdirAll(scratch, 0775); err != nil {
		return errors.Wrap(err, "making scratch directory")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0775); err != nil {
		return errors.Wrap(err, "making directory")
	}
	f, err := ioutil.TempFile(scratch, "put-")
	if err != nil {
		return errors.Wrap(err, "making scratch file")
	}
	temp := f.Name()
	_, err = f.Write(data)
	err2 := f.Close()
	if err == nil {
		err = err2
	}
	if err == nil {
		err = os.Rename(temp, target)
	}
	if err != nil {
		os.Remove(temp)
		raven.CaptureError(err, map[string]string{"Target": target})
		return errors.Wrapf(err, "writing %s", target)
	}
	return nil
}

// Delete the given key from the store. It is not an error if the key doesn't
// exist.
func (s *FileSystem) Delete(ctx context.Context, key string) error {
	if err := isKeyValid(key); err != nil {
		return err
	}
	err := os.Remove(s.path(datadir, key))
	// don't report a missing file as an error
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "deleting %s", key)
	}
	err = os.Remove(s.path(metadir, key) + ".json")
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "deleting metadata %s", key)
	}
	return nil
}

// List returns the keys beginning with prefix. Only the directories which
// could hold matching keys are walked.
func (s *FileSystem) List(ctx context.Context, prefix string) ([]string, error) {
	base := filepath.Join(s.root, datadir)
	start := base
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		start = filepath.Join(base, filepath.FromSlash(prefix[:i]))
	}
	var result []string
	err := filepath.Walk(start, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			result = append(result, key)
		}
		return nil
	})
	if err != nil {
		raven.CaptureError(err, map[string]string{"Prefix": prefix})
		return nil, errors.Wrapf(err, "listing %s", prefix)
	}
	sort.Strings(result)
	return result, nil
}

// Head returns the saved metadata for key.
func (s *FileSystem) Head(ctx context.Context, key string) (Metadata, error) {
	var m Metadata
	if err := isKeyValid(key); err != nil {
		return m, err
	}
	if _, err := os.Stat(s.path(datadir, key)); os.IsNotExist(err) {
		return m, ErrNotExist
	}
	mdata, err := ioutil.ReadFile(s.path(metadir, key) + ".json")
	if os.IsNotExist(err) {
		return m, ErrNotExist
	} else if err != nil {
		return m, errors.Wrapf(err, "reading metadata %s", key)
	}
	err = json.Unmarshal(mdata, &m)
	if err != nil {
		return m, errors.Wrapf(err, "decoding metadata %s", key)
	}
	return m, nil
}

func (s *FileSystem) path(subdir, key string) string {
	return filepath.Join(s.root, subdir, filepath.FromSlash(key))
}

// Some Simple Item Key Validations
func isKeyValid(key string) error {
	if !utf8.ValidString(key) {
		return ErrKeyContainsNonUnicode
	}

	for _, piece := range strings.Split(key, "/") {
		if piece == "" || piece == "." || piece == ".." {
			return ErrKeyEscapes
		}
	}

	for _, rune := range key {
		if unicode.IsSpace(rune) {
			return ErrKeyContainsWhiteSpace
		}
		if unicode.IsControl(rune) {
			return ErrKeyContainsControlChar
		}
	}
	return nil
}
