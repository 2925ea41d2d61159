// Package config reads the folio server configuration file.
//
// The file is TOML. Every key is optional and a missing file name gives the
// defaults. An unknown key is an error, so a misspelled setting is not
// silently ignored.
package config

import (
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

// Config holds the server settings.
type Config struct {
	// Listen is the address the REST API listens on.
	Listen string `toml:"listen"`

	// Location says where the object store is. Empty keeps everything in
	// memory. Otherwise it is a path, or a URL with the scheme file:, s3:
	// or bolt:.
	Location string `toml:"location"`

	// CacheDir holds the last-known-good copies of bundles and manifests.
	// Empty keeps them in memory.
	CacheDir  string `toml:"cache_dir"`
	CacheSize int64  `toml:"cache_size"` // in bytes. 0 disables the cache.

	// Tokens names a file of API tokens. Empty means every request is
	// anonymous.
	Tokens string `toml:"tokens"`

	SentryDSN  string   `toml:"sentry_dsn"`
	LogLevel   string   `toml:"log_level"`
	DebugStore bool     `toml:"debug_store"`
	CORS       []string `toml:"cors_origins"`

	// MaxRebuilds is the number of rebuild requests handled at once.
	MaxRebuilds int `toml:"max_rebuilds"`
}

// Default returns the configuration used for anything not set in a file.
func Default() Config {
	return Config{
		Listen:      ":14000",
		CacheSize:   64 << 20,
		LogLevel:    "info",
		CORS:        []string{"*"},
		MaxRebuilds: 2,
	}
}

// Load reads the configuration in path on top of the defaults. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return c, errors.Wrapf(err, "reading %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		var names []string
		for _, k := range undecoded {
			names = append(names, k.String())
		}
		sort.Strings(names)
		return c, errors.Errorf("%s: unknown keys %s", path, strings.Join(names, ", "))
	}
	return c, c.Check()
}

// Check verifies the values are sensible.
func (c Config) Check() error {
	if c.Listen == "" {
		return errors.New("listen address is empty")
	}
	if c.CacheSize < 0 {
		return errors.Errorf("cache_size %d is negative", c.CacheSize)
	}
	if c.MaxRebuilds < 1 {
		return errors.Errorf("max_rebuilds must be at least 1, not %d", c.MaxRebuilds)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the zap logging level named by LogLevel.
func (c Config) Level() (zapcore.Level, error) {
	var l zapcore.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	if err != nil {
		return l, errors.Wrapf(err, "log_level %q", c.LogLevel)
	}
	return l, nil
}
